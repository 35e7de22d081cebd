package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/internal/scheduler"
)

var startTime = time.Now()

// SchedulerStatus reports the deferred publish loop.
type SchedulerStatus interface {
	State() scheduler.State
	LastPoll() time.Time
	LastError() string
	Pending() []domain.ScheduledPost
}

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	scheduler SchedulerStatus
	store     Pinger
	dataDir   string
}

// NewHealthHandler creates a new health handler. store may be nil when
// saved posts are disabled.
func NewHealthHandler(s SchedulerStatus, store Pinger, dataDir string) *HealthHandler {
	return &HealthHandler{
		scheduler: s,
		store:     store,
		dataDir:   dataDir,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Scheduler *SchedulerReport `json:"scheduler,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// SchedulerReport summarizes the scheduler for probes and stats.
type SchedulerReport struct {
	State     string `json:"state"`
	Pending   int    `json:"pending"`
	LastPoll  string `json:"last_poll,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (h *HealthHandler) schedulerReport() *SchedulerReport {
	rep := &SchedulerReport{
		State:     string(h.scheduler.State()),
		Pending:   len(h.scheduler.Pending()),
		LastError: h.scheduler.LastError(),
	}
	if t := h.scheduler.LastPoll(); !t.IsZero() {
		rep.LastPoll = t.UTC().Format(time.RFC3339)
	}
	return rep
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Scheduler: h.schedulerReport(),
	}

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "error"
			resp.Error = "saved posts store unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ping handles GET /ping - keep-alive for free hosting tiers.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// SystemStats contains process and scheduler statistics.
type SystemStats struct {
	Uptime         int64            `json:"uptime_seconds"`
	UptimeHuman    string           `json:"uptime_human"`
	MemAllocMB     int64            `json:"mem_alloc_mb"`
	MemSysMB       int64            `json:"mem_sys_mb"`
	NumGoroutines  int              `json:"num_goroutines"`
	NumCPU         int              `json:"num_cpu"`
	DiskFreeBytes  int64            `json:"disk_free_bytes"`
	DiskTotalBytes int64            `json:"disk_total_bytes"`
	DiskUsedPct    float64          `json:"disk_used_pct"`
	DataDir        string           `json:"data_dir"`
	Scheduler      *SchedulerReport `json:"scheduler"`
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	total, free, _, usedPct := getDiskStats(h.dataDir)

	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:         int64(uptime.Seconds()),
		UptimeHuman:    formatUptime(uptime),
		MemAllocMB:     int64(m.Alloc / 1024 / 1024),
		MemSysMB:       int64(m.Sys / 1024 / 1024),
		NumGoroutines:  runtime.NumGoroutine(),
		NumCPU:         runtime.NumCPU(),
		DiskFreeBytes:  free,
		DiskTotalBytes: total,
		DiskUsedPct:    usedPct,
		DataDir:        h.dataDir,
		Scheduler:      h.schedulerReport(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
