package subscriptions

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtube/auth"
	"vidtube/httputil"
)

// Handler exposes subscription endpoints.
type Handler struct {
	Subscriptions *Service
}

// HandleSubscribe subscribes the caller to the channel in the path.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	sub, err := h.Subscriptions.Subscribe(r.Context(), p.UserID, chi.URLParam(r, "channelId"))
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, sub, "subscribed successfully")
}

// HandleChannelDetails returns ?username=<name> with subscription counts.
func (h *Handler) HandleChannelDetails(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	ch, err := h.Subscriptions.ChannelDetails(r.Context(), f["username"], p.UserID)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, ch, "channel details fetched successfully")
}
