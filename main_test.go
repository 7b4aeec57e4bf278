package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vidtube/auth"
	"vidtube/config"
	"vidtube/db/dbtest"
	"vidtube/media/mediatest"
	"vidtube/ratelimit"
)

// --- helpers ---

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{
		CORSOrigin:         "*",
		AccessTokenSecret:  "test-access",
		AccessTokenTTL:     time.Hour,
		RefreshTokenSecret: "test-refresh",
		RefreshTokenTTL:    24 * time.Hour,
		UploadDir:          t.TempDir(),
		MaxUploadBytes:     16 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := newApp(cfg, dbtest.New(t), &mediatest.Uploader{}, ratelimit.NewLocal(1000, 1000), logger)
	return app.router()
}

type response struct {
	Code    int
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Cookies []*http.Cookie
}

func do(t *testing.T, h http.Handler, req *http.Request) response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, rec.Body.String(), err)
	}
	resp.Code = rec.Code
	resp.Cookies = rec.Result().Cookies()
	return resp
}

func (r response) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

func multipartReq(t *testing.T, method, url, token string, fields, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte("bytes of " + name))
	}
	mw.Close()
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func jsonReq(method, url, token, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func registerAndLogin(t *testing.T, h http.Handler, username string) (userID, access string, cookies []*http.Cookie) {
	t.Helper()
	resp := do(t, h, multipartReq(t, "POST", "/api/v1/users/register", "", map[string]string{
		"username": username, "email": username + "@test.com", "fullname": strings.ToUpper(username), "password": "Secret123!",
	}, map[string]string{"avatar": "me.png"}))
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, resp.Code, resp.Message)
	}
	if bytes.Contains(resp.Data, []byte("password")) {
		t.Fatalf("register response leaks password: %s", resp.Data)
	}

	resp = do(t, h, jsonReq("POST", "/api/v1/users/login", "", `{"username":"`+username+`","password":"Secret123!"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, resp.Code, resp.Message)
	}
	var login struct {
		User        struct{ ID string } `json:"user"`
		AccessToken string              `json:"accessToken"`
	}
	resp.decode(t, &login)
	return login.User.ID, login.AccessToken, resp.Cookies
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type videoJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ViewCount int64  `json:"viewCount"`
	Owner     struct {
		Username string `json:"username"`
	} `json:"owner"`
}

// --- scenarios ---

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestServer(t)
	for _, path := range []string{"/api/v1/users/profile", "/api/v1/video/allVideos", "/api/v1/users/watchHistory"} {
		resp := do(t, h, jsonReq("GET", path, "", ""))
		if resp.Code != http.StatusUnauthorized || resp.Message != "authentication failed" {
			t.Errorf("%s: %d %q", path, resp.Code, resp.Message)
		}
	}
}

func TestLoginSetsCookiesUsableForAuth(t *testing.T) {
	h := newTestServer(t)
	_, _, cookies := registerAndLogin(t, h, "alice")

	access := cookieNamed(cookies, auth.AccessCookie)
	if access == nil || !access.HttpOnly {
		t.Fatalf("expected HttpOnly access cookie, got %v", cookies)
	}
	req := jsonReq("GET", "/api/v1/users/profile", "", "")
	req.AddCookie(access)
	resp := do(t, h, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("profile via cookie: %d %s", resp.Code, resp.Message)
	}
	var body struct {
		User struct{ Username string } `json:"user"`
	}
	resp.decode(t, &body)
	if body.User.Username != "alice" {
		t.Fatalf("unexpected profile: %s", resp.Data)
	}
}

func TestRefreshRotationRejectsReplay(t *testing.T) {
	h := newTestServer(t)
	_, _, cookies := registerAndLogin(t, h, "alice")
	refresh := cookieNamed(cookies, auth.RefreshCookie)

	req := jsonReq("POST", "/api/v1/users/refreshToken", "", "")
	req.AddCookie(refresh)
	if resp := do(t, h, req); resp.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.Code, resp.Message)
	}

	replay := jsonReq("POST", "/api/v1/users/refreshToken", "", "")
	replay.AddCookie(refresh)
	if resp := do(t, h, replay); resp.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token: expected 401, got %d", resp.Code)
	}
}

func TestVideoLifecycle(t *testing.T) {
	h := newTestServer(t)
	_, aliceTok, _ := registerAndLogin(t, h, "alice")
	_, bobTok, _ := registerAndLogin(t, h, "bob")

	resp := do(t, h, multipartReq(t, "POST", "/api/v1/video/upload", aliceTok,
		map[string]string{"title": "Cats", "description": "cats being cats"},
		map[string]string{"videoFile": "cats.mp4", "thumbnail": "cats.png"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", resp.Code, resp.Message)
	}
	var uploaded struct {
		VideoDetails videoJSON `json:"videoDetails"`
	}
	resp.decode(t, &uploaded)
	video := uploaded.VideoDetails
	if video.Title != "Cats" || video.ViewCount != 0 {
		t.Fatalf("unexpected upload: %s", resp.Data)
	}

	// Bob likes and comments while viewing.
	resp = do(t, h, jsonReq("GET", "/api/v1/video/content/"+video.ID+"?activity=Like", bobTok, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("detail: %d %s", resp.Code, resp.Message)
	}
	resp = do(t, h, jsonReq("POST", "/api/v1/video/content/"+video.ID, bobTok, `{"activity":"Comment","content":"so fluffy"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("comment: %d %s", resp.Code, resp.Message)
	}
	var detail struct {
		VideoDetails  videoJSON `json:"videoDetails"`
		VideoStatus   struct{ Like, DisLike, Comment int64 }
		VideoComments []struct {
			Content string `json:"content"`
			User    struct {
				Username string `json:"username"`
			} `json:"user"`
		} `json:"videoComments"`
	}
	resp.decode(t, &detail)
	if detail.VideoDetails.ViewCount != 2 || detail.VideoDetails.Owner.Username != "alice" {
		t.Fatalf("unexpected detail: %s", resp.Data)
	}
	if detail.VideoStatus.Like != 1 || detail.VideoStatus.Comment != 1 {
		t.Fatalf("unexpected stats: %+v", detail.VideoStatus)
	}
	if len(detail.VideoComments) != 1 || detail.VideoComments[0].User.Username != "bob" {
		t.Fatalf("unexpected comments: %s", resp.Data)
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/video/content/does-not-exist", bobTok, ""))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing video: expected 404, got %d", resp.Code)
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/users/watchHistory", bobTok, ""))
	var hist []struct {
		Video struct{ ID string } `json:"video"`
	}
	resp.decode(t, &hist)
	if len(hist) != 2 || hist[0].Video.ID != video.ID {
		t.Fatalf("unexpected history: %s", resp.Data)
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/video/getUploadedVideos", aliceTok, ""))
	var mine struct {
		AllVideos []videoJSON `json:"allVideos"`
	}
	resp.decode(t, &mine)
	if len(mine.AllVideos) != 1 {
		t.Fatalf("unexpected uploads: %s", resp.Data)
	}
}

func TestConcurrentViewsAreAllCounted(t *testing.T) {
	h := newTestServer(t)
	_, tok, _ := registerAndLogin(t, h, "alice")

	resp := do(t, h, multipartReq(t, "POST", "/api/v1/video/upload", tok,
		map[string]string{"title": "Dogs", "description": "good dogs"},
		map[string]string{"videoFile": "dogs.mp4", "thumbnail": "dogs.png"}))
	var uploaded struct {
		VideoDetails videoJSON `json:"videoDetails"`
	}
	resp.decode(t, &uploaded)
	id := uploaded.VideoDetails.ID

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, jsonReq("GET", "/api/v1/video/content/"+id, tok, ""))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()
	for i, c := range codes {
		if c != http.StatusOK {
			t.Fatalf("view %d: status %d", i, c)
		}
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/video/allVideos", tok, ""))
	var all []videoJSON
	resp.decode(t, &all)
	if len(all) != 1 || all[0].ViewCount != n {
		t.Fatalf("expected view count %d, got %s", n, resp.Data)
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/users/watchHistory", tok, ""))
	var hist []json.RawMessage
	resp.decode(t, &hist)
	if len(hist) != n {
		t.Fatalf("expected %d history rows, got %d", n, len(hist))
	}
}

func TestSubscribeAndChannelDetails(t *testing.T) {
	h := newTestServer(t)
	aliceID, aliceTok, _ := registerAndLogin(t, h, "alice")
	_, bobTok, _ := registerAndLogin(t, h, "bob")

	if resp := do(t, h, jsonReq("POST", "/api/v1/users/subscribe/"+aliceID, bobTok, "")); resp.Code != http.StatusOK {
		t.Fatalf("subscribe: %d %s", resp.Code, resp.Message)
	}
	if resp := do(t, h, jsonReq("POST", "/api/v1/users/subscribe/"+aliceID, bobTok, "")); resp.Code != http.StatusConflict {
		t.Fatalf("duplicate subscribe: expected 409, got %d", resp.Code)
	}
	if resp := do(t, h, jsonReq("POST", "/api/v1/users/subscribe/"+aliceID, aliceTok, "")); resp.Code != http.StatusBadRequest {
		t.Fatalf("self subscribe: expected 400, got %d", resp.Code)
	}

	resp := do(t, h, jsonReq("GET", "/api/v1/users/channelDetails?username=alice", bobTok, ""))
	var ch struct {
		SubscriberCount int64 `json:"subscriberCount"`
		IsSubscribed    bool  `json:"isSubscribed"`
	}
	resp.decode(t, &ch)
	if ch.SubscriberCount != 1 || !ch.IsSubscribed {
		t.Fatalf("unexpected channel: %s", resp.Data)
	}
}

func TestSearch(t *testing.T) {
	h := newTestServer(t)
	_, tok, _ := registerAndLogin(t, h, "alice")
	do(t, h, multipartReq(t, "POST", "/api/v1/video/upload", tok,
		map[string]string{"title": "Funny Cats", "description": "compilation"},
		map[string]string{"videoFile": "cats.mp4", "thumbnail": "cats.png"}))

	resp := do(t, h, jsonReq("POST", "/api/v1/users/search", tok, `{"search":"CATS"}`))
	var found []videoJSON
	resp.decode(t, &found)
	if resp.Code != http.StatusOK || len(found) != 1 || resp.Message != "videos found" {
		t.Fatalf("search: %d %q %s", resp.Code, resp.Message, resp.Data)
	}

	resp = do(t, h, jsonReq("POST", "/api/v1/users/search", tok, `{"term":"zebras"}`))
	if resp.Code != http.StatusOK || resp.Message != "no videos found" {
		t.Fatalf("empty search: %d %q", resp.Code, resp.Message)
	}

	resp = do(t, h, jsonReq("GET", "/api/v1/users/recommanded", tok, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("recommend: %d %s", resp.Code, resp.Message)
	}
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	cfg := config.Config{
		AccessTokenSecret: "a", AccessTokenTTL: time.Hour,
		RefreshTokenSecret: "r", RefreshTokenTTL: time.Hour,
		UploadDir: t.TempDir(), MaxUploadBytes: 1 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newApp(cfg, dbtest.New(t), &mediatest.Uploader{}, ratelimit.NewLocal(0.001, 2), logger).router()

	var last response
	for i := 0; i < 3; i++ {
		last = do(t, h, jsonReq("POST", "/api/v1/users/login", "", `{"username":"nobody","password":"x"}`))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last.Code)
	}
}
