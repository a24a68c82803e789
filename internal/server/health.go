package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type StoragePinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	storage StoragePinger
	log     *slog.Logger
}

func NewHealthChecker(storage StoragePinger, log *slog.Logger) *HealthChecker {
	return &HealthChecker{
		storage: storage,
		log:     log,
	}
}

func (h *HealthChecker) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	h.log.DebugContext(req.Context(), "Performing health checks...")

	status := make(map[string]string)
	overallStatus := http.StatusOK

	if err := h.storage.Ping(req.Context()); err != nil {
		status["storage"] = "unavailable"
		overallStatus = http.StatusServiceUnavailable
		h.log.WarnContext(req.Context(), "Health check failed: jar storage", "error", err)
	} else {
		status["storage"] = "ok"
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(overallStatus)
	if err := json.NewEncoder(writer).Encode(status); err != nil {
		h.log.ErrorContext(req.Context(), "Failed to write health check response", "error", err)
	}

	h.log.DebugContext(req.Context(), "Health checks completed", "status", overallStatus)
}
