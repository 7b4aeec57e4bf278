package search

import (
	"net/http"

	"vidtube/auth"
	"vidtube/httputil"
)

// Handler exposes search and recommendations.
type Handler struct {
	Search *Service
}

// HandleSearch searches with the "search" field ("term" is accepted too).
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	term := f["search"]
	if term == "" {
		term = f["term"]
	}

	res, err := h.Search.Search(r.Context(), p.UserID, term)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res.Videos, res.Message)
}

// HandleRecommend returns videos based on the caller's search history.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	list, err := h.Search.Recommend(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, list, "recommended videos fetched successfully")
}
