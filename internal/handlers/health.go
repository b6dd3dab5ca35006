package handlers

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services,omitempty"`
}

type ServiceStatus struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// HealthHandler reports whether the database answers. It needs no auth.
type HealthHandler struct {
	DB      Pinger
	Timeout time.Duration
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  map[string]ServiceStatus{"database": {Status: "up"}},
	}
	code := http.StatusOK
	if err := h.DB.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Services["database"] = ServiceStatus{Status: "down", Details: err.Error()}
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
