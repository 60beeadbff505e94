package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/varden/recover/pkg/httpx"
	"github.com/varden/recover/pkg/slogx"
)

// handleReadyz verifies the shared store is reachable. Without it neither
// nonces nor the rate limiter work, so the instance must not take traffic.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if err := r.kv.Ping(ctx); err != nil {
		slogx.FromContext(ctx).Error("store unreachable", slog.String("error", err.Error()))
		httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Uptime:  time.Since(r.startTime).String(),
			Version: r.version,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(r.startTime).String(),
		Version: r.version,
	})
}
