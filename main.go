package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"vidtube/auth"
	"vidtube/config"
	"vidtube/db"
	"vidtube/engagement"
	"vidtube/history"
	"vidtube/httputil"
	"vidtube/logging"
	"vidtube/media"
	"vidtube/ratelimit"
	"vidtube/search"
	"vidtube/subscriptions"
	"vidtube/users"
	"vidtube/videos"
)

// App holds the wired services behind the HTTP router.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	limiter ratelimit.Limiter

	tokens   *auth.Tokens
	users    *users.Service
	videos   *videos.Service
	subs     *subscriptions.Service
	search   *search.Service
	history  *history.Store
	userRepo *users.Store
}

// newApp builds every store and service on top of an open, migrated
// database.
func newApp(cfg config.Config, d *db.CompatDB, uploader media.Uploader, limiter ratelimit.Limiter, logger *slog.Logger) *App {
	tokens := auth.NewTokens(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.CookieSecure)

	userStore := &users.Store{DB: d}
	videoStore := &videos.Store{DB: d}
	hist := history.NewStore(d)

	return &App{
		cfg:      cfg,
		logger:   logger,
		limiter:  limiter,
		tokens:   tokens,
		users:    users.NewService(userStore, tokens, uploader),
		videos:   videos.NewService(videoStore, engagement.NewStore(d), hist, uploader),
		subs:     subscriptions.NewService(d, userStore),
		search:   search.NewService(d, videoStore),
		history:  hist,
		userRepo: userStore,
	}
}

func (a *App) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(a.cfg.MaxUploadBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(a.cfg.CORSOrigin),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mw := &auth.Middleware{Tokens: a.tokens, Users: a.userRepo}
	uh := &users.Handler{Users: a.users, Tokens: a.tokens, UploadDir: a.cfg.UploadDir}
	vh := &videos.Handler{Videos: a.videos, UploadDir: a.cfg.UploadDir}
	sh := &subscriptions.Handler{Subscriptions: a.subs}
	qh := &search.Handler{Search: a.search}
	hh := &history.Handler{History: a.history}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(a.limiter))
			r.Post("/users/register", uh.HandleRegister)
			r.Post("/users/login", uh.HandleLogin)
			r.Post("/users/refreshToken", uh.HandleRefresh)
		})

		r.Post("/users/logout", mw.Require(uh.HandleLogout))
		r.Post("/users/changePassword", mw.Require(uh.HandleChangePassword))
		r.Get("/users/profile", mw.Require(uh.HandleProfile))
		r.Patch("/users/update", mw.Require(uh.HandleUpdate))
		r.Get("/users/channelDetails", mw.Require(sh.HandleChannelDetails))
		r.Post("/users/search", mw.Require(qh.HandleSearch))
		r.Get("/users/recommanded", mw.Require(qh.HandleRecommend))
		r.Post("/users/subscribe/{channelId}", mw.Require(sh.HandleSubscribe))
		r.Get("/users/watchHistory", mw.Require(hh.HandleList))

		r.Post("/video/upload", mw.Require(vh.HandleUpload))
		r.Get("/video/getUploadedVideos", mw.Require(vh.HandleListMine))
		r.Get("/video/allVideos", mw.Require(vh.HandleListAll))
		r.Get("/video/content/{id}", mw.Require(vh.HandleDetail))
		r.Post("/video/content/{id}", mw.Require(vh.HandleDetail))
	})

	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// newLimiter shares the auth rate limit through Redis when REDIS_ADDR is
// set and reachable, and keeps it in process otherwise.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocal(cfg.RateLimitRPS, cfg.RateLimitBurst), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-process rate limit", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return ratelimit.NewLocal(cfg.RateLimitRPS, cfg.RateLimitBurst), func() {}
	}
	logger.Info("rate limit backed by redis", "addr", cfg.RedisAddr)
	return ratelimit.NewRedis(client, "vidtube:ratelimit:", cfg.AuthRateLimit, cfg.AuthRateWindow), func() { client.Close() }
}

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := logging.WithLogger(context.Background(), logger)

	d, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBName)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	if err := db.RunMigrations(ctx, d); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store, err := media.NewStore(ctx, cfg.Media)
	if err != nil {
		logger.Error("failed to connect to object storage", "backend", cfg.Media.Backend, "error", err)
		os.Exit(1)
	}
	uploader := media.NewAdapter(store, media.NewFFprobe(cfg.Media.FFprobePath), cfg.Media.Bucket, cfg.Media.PublicBaseURL)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Error("failed to create upload dir", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	app := newApp(cfg, d, uploader, limiter, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("vidtube API listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server shut down")
}
