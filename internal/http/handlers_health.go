package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandlers answers liveness and readiness probes.
type HealthHandlers struct {
	// Ping checks the job store backend. Nil reports ready unconditionally.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

// Live always answers 200 while the process serves requests.
func (h *HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, http.StatusOK, "ok")
}

// Ready answers 503 while the job store is unreachable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			if h.Logger != nil {
				h.Logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			}
			writeHealth(w, r, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeHealth(w, r, http.StatusOK, "ok")
}

func writeHealth(w http.ResponseWriter, r *http.Request, code int, status string) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, map[string]string{"status": status})
}
