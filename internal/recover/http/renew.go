package http

import (
	"net/http"

	"github.com/varden/recover/pkg/httpx"
)

// handleRenew re-issues the presented capability with a fresh validity
// window. Namespace, identity and jti carry over; the caller stays exactly
// where it was in the workflow, just with more time.
func (r *Router) handleRenew(w http.ResponseWriter, req *http.Request) {
	raw, _, err := r.tokens.Renew(req.Context(), currentToken(req.Context()))
	if err != nil {
		r.writeError(w, ErrServiceUnavailable)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: raw})
}
