package users

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"vidtube/auth"
)

func newTestHandler(t *testing.T) (*Handler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return &Handler{Users: env.svc, Tokens: env.svc.Tokens, UploadDir: t.TempDir()}, env
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func registerRequest(t *testing.T, fields map[string]string, withAvatar bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if withAvatar {
		fw, _ := mw.CreateFormFile("avatar", "me.png")
		fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	}
	mw.Close()
	req := httptest.NewRequest("POST", "/api/v1/users/register", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleRegister(t *testing.T) {
	h, _ := newTestHandler(t)
	req := registerRequest(t, map[string]string{
		"username": "alice", "email": "alice@x.com", "fullname": "Alice", "password": "Secret123!",
	}, true)
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	raw := rec.Body.String()
	if strings.Contains(raw, "password") || strings.Contains(raw, "refreshToken") {
		t.Fatalf("response leaks credentials: %s", raw)
	}
	body := decodeJSON(t, rec)
	data := body["data"].(map[string]interface{})
	if data["username"] != "alice" {
		t.Fatalf("unexpected user: %v", data)
	}

	entries, _ := os.ReadDir(h.UploadDir)
	if len(entries) != 0 {
		t.Fatalf("upload dir not cleaned: %d entries", len(entries))
	}
}

func TestHandleRegister_MissingAvatarCleansUp(t *testing.T) {
	h, _ := newTestHandler(t)
	req := registerRequest(t, map[string]string{
		"username": "alice", "email": "alice@x.com", "fullname": "Alice", "password": "Secret123!",
	}, false)
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeJSON(t, rec); body["message"] != "avatar file is required" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}

func TestHandleLoginAndRefresh(t *testing.T) {
	h, env := newTestHandler(t)
	env.register(t, "alice", "alice@x.com")

	req := httptest.NewRequest("POST", "/api/v1/users/login", strings.NewReader(`{"username":"alice","password":"Secret123!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	if cookies[auth.AccessCookie] == nil || cookies[auth.RefreshCookie] == nil {
		t.Fatalf("expected both token cookies, got %v", rec.Result().Cookies())
	}
	if !cookies[auth.AccessCookie].HttpOnly {
		t.Error("access cookie must be HttpOnly")
	}

	refreshReq := httptest.NewRequest("POST", "/api/v1/users/refreshToken", nil)
	refreshReq.AddCookie(cookies[auth.RefreshCookie])
	refreshRec := httptest.NewRecorder()
	h.HandleRefresh(refreshRec, refreshReq)
	if refreshRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d: %s", refreshRec.Code, refreshRec.Body.String())
	}

	// The original refresh token is now stale.
	replay := httptest.NewRequest("POST", "/api/v1/users/refreshToken",
		strings.NewReader(`{"refreshToken":"`+cookies[auth.RefreshCookie].Value+`"}`))
	replay.Header.Set("Content-Type", "application/json")
	replayRec := httptest.NewRecorder()
	h.HandleRefresh(replayRec, replay)
	if replayRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replay, got %d", replayRec.Code)
	}
}

func TestHandleLogout(t *testing.T) {
	h, env := newTestHandler(t)
	alice := env.register(t, "alice", "alice@x.com")

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest("POST", "/api/v1/users/logout", nil), auth.Principal{UserID: alice.ID, Username: "alice"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s not cleared", c.Name)
		}
	}
}
