package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solodesign/apiserver/config"
	"github.com/solodesign/apiserver/internal/auth"
	"github.com/solodesign/apiserver/internal/cache"
	"github.com/solodesign/apiserver/internal/db"
	"github.com/solodesign/apiserver/internal/diagnostics"
	"github.com/solodesign/apiserver/internal/events"
	"github.com/solodesign/apiserver/internal/identity"
	"github.com/solodesign/apiserver/internal/media"
	"github.com/solodesign/apiserver/internal/mq"
	"github.com/solodesign/apiserver/internal/observability"
	"github.com/solodesign/apiserver/internal/services"
	"github.com/solodesign/apiserver/internal/storage"
	"github.com/solodesign/apiserver/internal/store"
	"go.uber.org/zap"
)

const forwarderDrainTimeout = 5 * time.Second

// Server wraps the HTTP server and the infrastructure it owns.
type Server struct {
	httpServer *http.Server
	router     http.Handler
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	queue      *mq.MQ
	broker     *events.Broker
	stopEvents context.CancelFunc
	forwarding chan struct{}
}

// New connects the configured backends and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.closeResources()
		}
	}()

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = dbConn

	var profileCache services.ProfileCache
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		s.redis = client
		profileCache = cache.NewProfileCache(client, cfg.Redis.ProfileTTL)
	}

	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := store.NewFileStore(cfg.Media.DataDir)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	s.broker = events.NewBroker(logger, metrics, cfg.Events.Buffer)

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.queue = queue

	projects := store.NewProjectRepository(files)
	deps := Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Profiles: services.NewProfileService(store.NewProfileRepository(dbConn), profileCache, logger),
		Projects: services.NewProjectService(projects, s.broker),
		Media: media.NewService(
			objects,
			store.NewMediaRepository(files),
			projects,
			s.broker,
			metrics,
			logger,
		),
		Broker:   s.broker,
		Identity: identity.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, nil),
		Checker:  newChecker(cfg, files, objects),
	}
	s.router = NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if queue != nil {
		s.startForwarder(queue)
	}
	ok = true
	return s, nil
}

func newChecker(cfg config.Config, files *store.FileStore, objects *storage.Storage) *diagnostics.Checker {
	dirs := []diagnostics.Directory{{Name: "data", Path: files.Dir()}}
	if objects.Name() == "local" {
		dirs = append(dirs, diagnostics.Directory{Name: "uploads", Path: cfg.Media.UploadDir})
	}
	return diagnostics.NewChecker(files.Dir(), store.DataFiles, dirs...)
}

func (s *Server) startForwarder(queue *mq.MQ) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopEvents = cancel
	s.forwarding = make(chan struct{})
	forwarder := events.NewForwarder(s.broker, queue, s.logger)
	go func() {
		defer close(s.forwarding)
		if err := forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("event forwarder stopped", zap.Error(err))
		}
	}()
	s.logger.Info("forwarding events", zap.String("backend", queue.Name()), zap.String("channel", queue.Channel()))
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	// Closing the broker lets the forwarder drain what is already buffered.
	if s.broker != nil {
		s.broker.Close()
	}
	if s.stopEvents != nil {
		select {
		case <-s.forwarding:
		case <-time.After(forwarderDrainTimeout):
			s.logger.Warn("event forwarder did not drain in time")
		}
		s.stopEvents()
		<-s.forwarding
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Dependencies are the services the router is built from.
type Dependencies struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Profiles *services.ProfileService
	Projects *services.ProjectService
	Media    *media.Service
	Broker   *events.Broker
	Identity *identity.Client
	Checker  *diagnostics.Checker
}

// legacyVerifier backs the admin dashboard guard and honours
// ADMIN_STRICT_SIGNATURE.
func (d Dependencies) legacyVerifier() *auth.LegacyVerifier {
	return auth.NewLegacyVerifier(d.Config.Admin.TokenSecret, d.Config.Admin.StrictSignature)
}

// adminAPIVerifier always checks the HS256 signature. API mutations never
// accept a claims-only legacy token.
func (d Dependencies) adminAPIVerifier() *auth.LegacyVerifier {
	return auth.NewLegacyVerifier(d.Config.Admin.TokenSecret, true)
}

func (d Dependencies) providerVerifier() *auth.ProviderVerifier {
	var lookup auth.UserLookup
	if d.Identity != nil {
		lookup = d.Identity
	}
	return auth.NewProviderVerifier(d.Config.Supabase.JWTSecret, lookup)
}
