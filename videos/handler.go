package videos

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtube/auth"
	"vidtube/httputil"
)

// Handler exposes the catalog endpoints.
type Handler struct {
	Videos    *Service
	UploadDir string
}

// HandleUpload accepts a multipart form with title, description, videoFile
// and thumbnail.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	spool, err := httputil.SpoolFiles(r, h.UploadDir, "videoFile", "thumbnail")
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	defer spool.Cleanup()

	v, err := h.Videos.Upload(r.Context(), p.UserID, UploadInput{
		Title:         f["title"],
		Description:   f["description"],
		VideoPath:     spool.Path("videoFile"),
		ThumbnailPath: spool.Path("thumbnail"),
	})
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{"videoDetails": v}, "video uploaded successfully")
}

// HandleListMine lists the caller's uploads.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	list, err := h.Videos.ListByOwner(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{"allVideos": list}, "uploaded videos fetched successfully")
}

// HandleListAll lists every video, oldest first.
func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	list, err := h.Videos.ListAll(r.Context())
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, list, "all videos fetched successfully")
}

// HandleDetail returns one video and records the view. An optional
// activity (Like, DisLike, Comment) with content may come from the body or
// the query string.
func (h *Handler) HandleDetail(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}

	d, err := h.Videos.GetDetail(r.Context(), chi.URLParam(r, "id"), p.UserID, f["activity"], f["content"])
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, d, "video fetched successfully")
}
