package config

import (
	"testing"
	"time"
)

func TestGetString(t *testing.T) {
	if got := getString("VIDTUBE_NONEXISTENT_VAR_12345", "fallback"); got != "fallback" {
		t.Errorf("getString returned %q, want %q", got, "fallback")
	}

	t.Setenv("VIDTUBE_TEST_VAR", "real_value")
	if got := getString("VIDTUBE_TEST_VAR", "fallback"); got != "real_value" {
		t.Errorf("getString returned %q, want %q", got, "real_value")
	}
}

func TestTypedGetters_FallBackOnGarbage(t *testing.T) {
	t.Setenv("VIDTUBE_INT", "abc")
	t.Setenv("VIDTUBE_BOOL", "maybe")
	t.Setenv("VIDTUBE_DUR", "soon")

	if got := getInt("VIDTUBE_INT", 7); got != 7 {
		t.Errorf("getInt = %d, want 7", got)
	}
	if got := getBool("VIDTUBE_BOOL", true); !got {
		t.Error("getBool should fall back to true")
	}
	if got := getDuration("VIDTUBE_DUR", time.Second); got != time.Second {
		t.Errorf("getDuration = %v, want 1s", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("MEDIA_BACKEND", "S3")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false")
	}
	if cfg.Media.Backend != "s3" {
		t.Errorf("Media.Backend = %q, want s3", cfg.Media.Backend)
	}
}
