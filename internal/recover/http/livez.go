package http

import (
	"net/http"
	"time"

	"github.com/varden/recover/pkg/httpx"
)

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// handleLivez answers 200 whenever the process is up.
func (r *Router) handleLivez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(r.startTime).String(),
		Version: r.version,
	})
}
