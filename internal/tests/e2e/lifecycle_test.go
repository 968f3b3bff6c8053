//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/solodesign/apiserver/config"
	"github.com/solodesign/apiserver/internal/db"
	"github.com/solodesign/apiserver/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	serverPort    = 18080
	adminPassword = "e2e-password"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "postgres", "redis"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}
	down := func() { _ = dockerCompose(context.Background(), root, "down") }

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		down()
		os.Exit(1)
	}

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		down()
		os.Exit(1)
	}

	if err := runMigrations(root, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		down()
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		down()
		os.Exit(1)
	}
	go func() { _ = srv.Start() }()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	if err := waitForHealth(ctx, baseURL+"/api/health"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		shutdown()
		down()
		os.Exit(1)
	}

	code := m.Run()

	shutdown()
	down()
	os.Exit(code)
}

func TestAdminManagesProfilesProjectsAndMedia(t *testing.T) {
	client := adminClient(t)
	userID := fmt.Sprintf("user-%d", time.Now().UnixNano())

	resp := doJSON(t, client, http.MethodPut, "/api/profiles/"+userID, `{"full_name":"E2E Admin","role":"admin"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, client, http.MethodGet, "/api/profiles/"+userID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile struct {
		Role string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	_ = resp.Body.Close()
	assert.Equal(t, "admin", profile.Role)

	resp = doJSON(t, client, http.MethodPost, "/api/projects", `{"title":"E2E Project","customFields":{"budget":100}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var project struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
	_ = resp.Body.Close()
	assert.Equal(t, "e2e-project", project.Slug)

	fileURL := uploadPNG(t, client, project.ID)

	resp, err := http.Get(baseURL + fileURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	_ = resp.Body.Close()

	resp = doJSON(t, client, http.MethodDelete, "/api/projects/"+project.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAnonymousMutationsAreRejected(t *testing.T) {
	resp := doJSON(t, http.DefaultClient, http.MethodPost, "/api/projects", `{"title":"nope"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func adminClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	resp := doJSON(t, client, http.MethodPost, "/api/auth/login", fmt.Sprintf(`{"password":%q}`, adminPassword))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return client
}

func doJSON(t *testing.T, client *http.Client, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func uploadPNG(t *testing.T, client *http.Client, projectID string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("projectId", projectID))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="pixel.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var uploaded struct {
		File struct {
			URL string `json:"url"`
		} `json:"file"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	return uploaded.File.URL
}

func loadConfig() (config.Config, error) {
	tmp, err := os.MkdirTemp("", "solodesign-e2e-")
	if err != nil {
		return config.Config{}, err
	}
	env := map[string]string{
		"SERVER_PORT":        fmt.Sprintf("%d", serverPort),
		"DB_HOST":            "localhost",
		"DB_PORT":            "5432",
		"DB_USER":            "solodesign",
		"DB_PASSWORD":        "solodesign",
		"DB_NAME":            "solodesign",
		"DB_USE_SSL":         "false",
		"REDIS_ADDR":         "localhost:6379",
		"ADMIN_PASSWORD":     adminPassword,
		"ADMIN_TOKEN_SECRET": "e2e-secret",
		"MEDIA_DATA_DIR":     filepath.Join(tmp, "data"),
		"MEDIA_UPLOAD_DIR":   filepath.Join(tmp, "uploads"),
	}
	for k, v := range env {
		_ = os.Setenv(k, v)
	}
	return config.LoadConfig()
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		conn, err := db.Open(ctx, cfg.Database)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string, cfg config.Config) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")
	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
