package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/solodesign/apiserver/internal/diagnostics"
)

// SystemHandler serves the liveness and diagnostics endpoints.
type SystemHandler struct {
	version     string
	environment string
	started     time.Time
	checker     *diagnostics.Checker
}

func NewSystemHandler(version, environment string, checker *diagnostics.Checker) *SystemHandler {
	return &SystemHandler{
		version:     version,
		environment: environment,
		started:     time.Now(),
		checker:     checker,
	}
}

type HealthResponse struct {
	Status      string       `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	Version     string       `json:"version"`
	Environment string       `json:"environment"`
	Uptime      float64      `json:"uptime"`
	Memory      MemoryReport `json:"memory"`
}

// MemoryReport is in bytes.
type MemoryReport struct {
	Alloc      uint64 `json:"alloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	Sys        uint64 `json:"sys"`
	Goroutines int    `json:"goroutines"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Version:     h.version,
		Environment: h.environment,
		Uptime:      time.Since(h.started).Seconds(),
		Memory: MemoryReport{
			Alloc:      stats.Alloc,
			HeapInuse:  stats.HeapInuse,
			Sys:        stats.Sys,
			Goroutines: runtime.NumGoroutine(),
		},
	})
}

// Status reports data-directory health. It answers 200 even when critical;
// the verdict is in the body.
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.checker.Check())
}
