package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// QueueDepth is the relocation worker pool as seen by the health check.
type QueueDepth interface {
	Pending() int
	Capacity() int
}

type componentCheck func(ctx context.Context) CheckEntry

type HealthHandler struct {
	checks map[string]componentCheck
}

func NewHealthHandler(db *sql.DB, queue QueueDepth) *HealthHandler {
	h := &HealthHandler{checks: map[string]componentCheck{
		"postgres": databaseCheck(db),
	}}
	if queue != nil {
		h.checks["relocation_queue"] = queueCheck(queue)
	}
	return h
}

func databaseCheck(db *sql.DB) componentCheck {
	return func(ctx context.Context) CheckEntry {
		if err := db.PingContext(ctx); err != nil {
			return CheckEntry{Status: HealthUnhealthy, Message: err.Error()}
		}
		return CheckEntry{Status: HealthHealthy}
	}
}

// queueCheck reports degraded once the queue is full: new approvals then
// wait for the sweeper instead of relocating right away.
func queueCheck(queue QueueDepth) componentCheck {
	return func(ctx context.Context) CheckEntry {
		pending, capacity := queue.Pending(), queue.Capacity()
		entry := CheckEntry{
			Status:  HealthHealthy,
			Details: map[string]any{"pending": pending, "capacity": capacity},
		}
		if capacity > 0 && pending >= capacity {
			entry.Status = HealthDegraded
			entry.Message = "relocation queue full"
		}
		return entry
	}
}

// pingHandler is the liveness probe.
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

// healthCheckHandler is the readiness probe. Only an unhealthy component
// fails it; a degraded one is reported with 200.
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthHealthy,
		CheckedAt:  time.Now().UTC(),
		Components: make(map[string]CheckEntry, len(h.checks)),
	}
	for name, check := range h.checks {
		start := time.Now()
		entry := check(ctx)
		entry.DurationMs = time.Since(start).Milliseconds()
		resp.Components[name] = entry

		switch {
		case entry.Status == HealthUnhealthy:
			resp.Status = HealthUnhealthy
		case entry.Status == HealthDegraded && resp.Status == HealthHealthy:
			resp.Status = HealthDegraded
		}
	}

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
