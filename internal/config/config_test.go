package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "taskboard.db" {
		t.Fatalf("unexpected default database url %q", cfg.Database.URL)
	}
	if cfg.Server.Addr != "127.0.0.1:3001" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Sync.SendBuffer != 64 {
		t.Fatalf("unexpected send buffer %d", cfg.Sync.SendBuffer)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := `database:
  url: postgres://localhost/board
server:
  addr: 0.0.0.0:8080
  cors_origins:
    - "*"
`
	if err := os.WriteFile(filepath.Join(dir, "taskboard.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/board" {
		t.Fatalf("file value not applied: %q", cfg.Database.URL)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Fatalf("file value not applied: %q", cfg.Server.Addr)
	}
	// untouched sections keep their defaults
	if cfg.Sync.SendBuffer != 64 {
		t.Fatalf("default lost on partial file: %d", cfg.Sync.SendBuffer)
	}
}

func TestValidateRejectsBadOrigin(t *testing.T) {
	cfg := Default()
	cfg.Server.CORSOrigins = []string{"not a url"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for malformed origin")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PORT", "4000")
	t.Setenv("CORS_ORIGIN", "http://a.example,http://b.example")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Database.URL != "postgres://env/db" {
		t.Fatalf("DATABASE_URL not applied: %q", cfg.Database.URL)
	}
	if cfg.Server.Addr != "127.0.0.1:4000" {
		t.Fatalf("PORT not applied: %q", cfg.Server.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.example" {
		t.Fatalf("CORS_ORIGIN not applied: %v", cfg.Server.CORSOrigins)
	}
}
