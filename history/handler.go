package history

import (
	"net/http"

	"vidtube/apperr"
	"vidtube/auth"
	"vidtube/httputil"
)

// Handler serves the caller's watch history.
type Handler struct {
	History *Store
}

// HandleList lists the caller's watched videos, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	entries, err := h.History.List(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(r.Context(), w, apperr.Internal("failed to list history", err))
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, entries, "watch history fetched successfully")
}
