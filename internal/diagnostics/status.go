// Package diagnostics reports on the health of the on-disk data the server
// depends on. It only reports; nothing is repaired.
package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type Health string

const (
	Healthy  Health = "healthy"
	Warning  Health = "warning"
	Critical Health = "critical"
)

type DirectoryStatus struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Writable bool   `json:"writable"`
}

type FileStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Health          Health            `json:"health"`
	Directories     []DirectoryStatus `json:"directories"`
	Files           []FileStatus      `json:"files"`
	Recommendations []string          `json:"recommendations"`
	CheckedAt       time.Time         `json:"checkedAt"`
}

// Directory names a directory to check. Path is reported as configured.
type Directory struct {
	Name string
	Path string
}

// Checker inspects directories and the JSON documents of one data directory.
type Checker struct {
	dirs    []Directory
	dataDir string
	files   []string
	now     func() time.Time
}

func NewChecker(dataDir string, files []string, dirs ...Directory) *Checker {
	return &Checker{dirs: dirs, dataDir: dataDir, files: files, now: time.Now}
}

// Check builds a fresh report. Missing or unwritable directories are
// critical; unreadable JSON documents are a warning.
func (c *Checker) Check() Report {
	report := Report{
		Health:          Healthy,
		Directories:     make([]DirectoryStatus, 0, len(c.dirs)),
		Files:           make([]FileStatus, 0, len(c.files)),
		Recommendations: []string{},
		CheckedAt:       c.now().UTC(),
	}

	for _, dir := range c.dirs {
		status := checkDirectory(dir)
		report.Directories = append(report.Directories, status)
		switch {
		case !status.Exists:
			report.escalate(Critical)
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Create the %s directory (%s).", dir.Name, dir.Path))
		case !status.Writable:
			report.escalate(Critical)
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Grant the server write access to the %s directory (%s).", dir.Name, dir.Path))
		}
	}

	for _, name := range c.files {
		status := checkJSONFile(filepath.Join(c.dataDir, name))
		status.Name = name
		report.Files = append(report.Files, status)
		if status.Exists && !status.Valid {
			report.escalate(Warning)
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("Restore %s from a backup or fix its JSON syntax.", name))
		}
	}
	return report
}

func (r *Report) escalate(h Health) {
	if rank(h) > rank(r.Health) {
		r.Health = h
	}
}

func rank(h Health) int {
	switch h {
	case Critical:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}

func checkDirectory(dir Directory) DirectoryStatus {
	status := DirectoryStatus{Name: dir.Name, Path: dir.Path}
	info, err := os.Stat(dir.Path)
	if err != nil || !info.IsDir() {
		return status
	}
	status.Exists = true

	tmp, err := os.CreateTemp(dir.Path, ".write-check-*")
	if err != nil {
		return status
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	status.Writable = true
	return status
}

func checkJSONFile(path string) FileStatus {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileStatus{Valid: true}
		}
		return FileStatus{Exists: true, Error: "unreadable"}
	}
	status := FileStatus{Exists: true}
	if len(data) == 0 || json.Valid(data) {
		status.Valid = true
		return status
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		status.Error = err.Error()
	}
	return status
}
