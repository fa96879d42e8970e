package handler

import (
	"context"
	"net/http"
	"time"

	"subfeed/internal/container"
	"subfeed/internal/session"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
	Storage   string    `json:"storage"`
	Session   string    `json:"session"`
}

// Check handles GET /health. An irrecoverable session or unreachable Redis
// reports degraded with 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	log := h.container.GetLogger()
	log.Debug("Health check requested")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "subfeed",
		Storage:   h.container.GetConfig().StorageBackend,
		Session:   modeName(h.container.GetFeedService().View()),
	}
	status := http.StatusOK

	if h.container.HasRedis() {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.container.GetRedisClient().Health(ctx); err != nil {
			log.WithError(err).Warn("Redis health check failed")
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if response.Session == "irrecoverable" {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, log, status, response)
}

func modeName(sess session.Session) string {
	switch sess.Mode.(type) {
	case session.Overview:
		return "overview"
	case session.Watching:
		return "watching"
	case session.Irrecoverable:
		return "irrecoverable"
	}
	return "stopped"
}
