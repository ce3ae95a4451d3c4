package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_ENV", "development")
	t.Setenv("MUNINN_DJ_TIMEOUT_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.DJTimeout != 2*time.Minute {
		t.Fatalf("unexpected DJ timeout: %v", cfg.DJTimeout)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail without a DSN")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file::memory:")
	t.Setenv("MUNINN_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for unknown backend")
	}
}

func TestLoadProductionRequiresRelayURL(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("MUNINN_ENV", "production")
	t.Setenv("MUNINN_RELAY_ALL_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a relay URL")
	}

	t.Setenv("MUNINN_RELAY_ALL_URL", "http://nginx:8080/pub")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with relay URL to succeed: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file::memory:")
	t.Setenv("MUNINN_DB_BACKEND", "sqlite")
	t.Setenv("MUNINN_ICECAST_MOUNTS", "/vinyl.ogg, /live.mp3 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.IcecastMounts) != 2 || cfg.IcecastMounts[0] != "/vinyl.ogg" || cfg.IcecastMounts[1] != "/live.mp3" {
		t.Fatalf("unexpected mounts: %#v", cfg.IcecastMounts)
	}
}
