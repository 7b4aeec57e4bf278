package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration, loaded once in main and passed
// to constructors.
type Config struct {
	Port       string
	CORSOrigin string
	LogLevel   string

	DatabaseURL string
	DBName      string

	AccessTokenSecret  string
	AccessTokenTTL     time.Duration
	RefreshTokenSecret string
	RefreshTokenTTL    time.Duration
	CookieSecure       bool

	Media MediaConfig

	UploadDir      string
	MaxUploadBytes int64

	RedisAddr      string
	RedisPassword  string
	RateLimitRPS   float64
	RateLimitBurst int
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// MediaConfig describes the object store that hosts uploaded media.
type MediaConfig struct {
	Backend       string // "minio" or "s3"
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	FFprobePath   string
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	return Config{
		Port:       getString("PORT", "8000"),
		CORSOrigin: getString("CORS_ORIGIN", "*"),
		LogLevel:   getString("LOG_LEVEL", "info"),

		DatabaseURL: getString("DATABASE_URL", "sqlite:/data/"),
		DBName:      getString("DB_NAME", "vidtube"),

		AccessTokenSecret:  getString("ACCESS_TOKEN_SECRET", "change-me-access"),
		AccessTokenTTL:     getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenSecret: getString("REFRESH_TOKEN_SECRET", "change-me-refresh"),
		RefreshTokenTTL:    getDuration("REFRESH_TOKEN_TTL", 240*time.Hour),
		CookieSecure:       getBool("COOKIE_SECURE", true),

		Media: MediaConfig{
			Backend:       strings.ToLower(getString("MEDIA_BACKEND", "minio")),
			Endpoint:      getString("MEDIA_ENDPOINT", "localhost:9000"),
			AccessKey:     getString("MEDIA_ACCESS_KEY", "vidtube"),
			SecretKey:     getString("MEDIA_SECRET_KEY", "changeme123"),
			Bucket:        getString("MEDIA_BUCKET", "media"),
			Region:        getString("MEDIA_REGION", "us-east-1"),
			UseSSL:        getBool("MEDIA_USE_SSL", false),
			PublicBaseURL: getString("MEDIA_PUBLIC_BASE_URL", ""),
			FFprobePath:   getString("FFPROBE_PATH", "ffprobe"),
		},

		UploadDir:      getString("UPLOAD_DIR", os.TempDir()),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 512<<20)),

		RedisAddr:      getString("REDIS_ADDR", ""),
		RedisPassword:  getString("REDIS_PASSWORD", ""),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 40),
		AuthRateLimit:  getInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: getDuration("AUTH_RATE_WINDOW", time.Minute),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
