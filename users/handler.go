package users

import (
	"net/http"

	"vidtube/auth"
	"vidtube/httputil"
)

// Handler exposes the account endpoints.
type Handler struct {
	Users     *Service
	Tokens    *auth.Tokens
	UploadDir string
}

// HandleRegister creates an account from a multipart form with an avatar
// and an optional cover image.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	spool, err := httputil.SpoolFiles(r, h.UploadDir, "avatar", "coverImage")
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	defer spool.Cleanup()

	user, err := h.Users.Register(r.Context(), RegisterInput{
		Username:   f["username"],
		Email:      f["email"],
		Fullname:   f["fullname"],
		Password:   f["password"],
		AvatarPath: spool.Path("avatar"),
		CoverPath:  spool.Path("coverImage"),
	})
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, user, "user registered successfully")
}

// HandleLogin authenticates by username or email and sets token cookies.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}

	res, err := h.Users.Login(r.Context(), f["username"], f["email"], f["password"])
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	h.Tokens.SetCookies(w, auth.Pair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
	httputil.WriteSuccess(w, http.StatusOK, res, "user logged in successfully")
}

// HandleRefresh rotates the token pair. The refresh token comes from its
// cookie or the request body.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var token string
	if c, err := r.Cookie(auth.RefreshCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		f, err := httputil.Fields(r)
		if err != nil {
			httputil.WriteError(r.Context(), w, err)
			return
		}
		token = f["refreshToken"]
	}

	pair, err := h.Users.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	h.Tokens.SetCookies(w, pair)
	httputil.WriteSuccess(w, http.StatusOK, pair, "access token refreshed")
}

// HandleLogout forgets the refresh token and clears both cookies.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if err := h.Users.Logout(r.Context(), p.UserID); err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	h.Tokens.ClearCookies(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "user logged out successfully")
}

// HandleChangePassword replaces the caller's password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	if err := h.Users.ChangePassword(r.Context(), p.UserID, f["oldPassword"], f["newPassword"]); err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, nil, "password changed successfully")
}

// HandleProfile returns the caller's account.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	user, err := h.Users.Profile(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": user}, "user fetched successfully")
}

// HandleUpdate changes profile fields and images.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	f, err := httputil.Fields(r)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	spool, err := httputil.SpoolFiles(r, h.UploadDir, "avatar", "coverImage")
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	defer spool.Cleanup()

	in := UpdateInput{AvatarPath: spool.Path("avatar"), CoverPath: spool.Path("coverImage")}
	if v, ok := f["fullname"]; ok {
		in.Fullname = &v
	}
	if v, ok := f["email"]; ok {
		in.Email = &v
	}
	if v, ok := f["username"]; ok {
		in.Username = &v
	}

	user, err := h.Users.UpdateProfile(r.Context(), p.UserID, in)
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": user}, "user updated successfully")
}
