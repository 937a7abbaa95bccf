package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INTERVIEWD_APP_ENV", "development")
	t.Setenv("INTERVIEWD_REDIS_URL", "redis://localhost:6379")
	t.Setenv("INTERVIEWD_JWT_SECRET", "test-secret")
	t.Setenv("INTERVIEWD_ROOMS_BASE_URL", "http://localhost:7880")
	t.Setenv("INTERVIEWD_ROOMS_API_KEY", "key")
	t.Setenv("INTERVIEWD_ROOMS_API_SECRET", "secret")
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INTERVIEWD_DB_HOST", "localhost")
	t.Setenv("INTERVIEWD_DB_USER", "interviewd")
	t.Setenv("INTERVIEWD_DB_PASSWORD", "pw")
	t.Setenv("INTERVIEWD_DB_NAME", "interviewd")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := "host=localhost port=5432 user=interviewd password=pw dbname=interviewd sslmode=disable"
	if cfg.DB.DSN != want {
		t.Fatalf("unexpected DSN %q", cfg.DB.DSN)
	}
}

func TestLoadPrefersExplicitDSN(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INTERVIEWD_DB_DSN", "host=db port=5432 user=u dbname=d")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DB.DSN != "host=db port=5432 user=u dbname=d" {
		t.Fatalf("explicit DSN overridden: %q", cfg.DB.DSN)
	}
}

func TestLoadFailsWithoutDatabase(t *testing.T) {
	setBaseEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when no DSN and no host/user/name")
	}
}

func TestQuotaDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INTERVIEWD_DB_DSN", "host=db user=u dbname=d")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Quota.MinBillableSeconds != 60 {
		t.Fatalf("expected 60s billing floor, got %d", cfg.Quota.MinBillableSeconds)
	}
	if cfg.Quota.LinkTTL != 168*time.Hour {
		t.Fatalf("expected 7 day link TTL, got %s", cfg.Quota.LinkTTL)
	}
	if !cfg.App.IsDev() || cfg.App.IsProd() {
		t.Fatal("env helpers disagree with INTERVIEWD_APP_ENV")
	}
}
