package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRuntimeConfigExample(t *testing.T) {
	cfg, err := loadRuntimeConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "bridgectl.local" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.Addr != "127.0.0.1:9200" {
		t.Fatalf("unexpected addr: %q", cfg.Addr)
	}
	if len(cfg.CorsOrigins) != 2 || cfg.CorsOrigins[1] != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.AdminToken != "dev-token" {
		t.Fatalf("unexpected admin token: %q", cfg.AdminToken)
	}
	if cfg.StoreDir != ".bridgectl/state" {
		t.Fatalf("unexpected store dir: %q", cfg.StoreDir)
	}
	if cfg.Deployment != "cmd/bridgectl/deployment.toml" {
		t.Fatalf("unexpected deployment: %q", cfg.Deployment)
	}
	if cfg.MaxReasonBytes != 120 {
		t.Fatalf("unexpected max reason bytes: %d", cfg.MaxReasonBytes)
	}
}

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	cfg, err := loadRuntimeConfig(writeConfig(t, `admin_token = "x"`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := defaultRuntimeConfig()
	if cfg.Name != def.Name || cfg.Addr != def.Addr || cfg.Deployment != def.Deployment {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.MaxReasonBytes != 150 {
		t.Fatalf("unexpected max reason bytes: %d", cfg.MaxReasonBytes)
	}
	if cfg.StoreDir != "" {
		t.Fatalf("expected memory store by default, got %q", cfg.StoreDir)
	}
}

func TestLoadRuntimeConfigRejectsBadValues(t *testing.T) {
	for _, content := range []string{
		`max_reason_bytes = 0`,
		`deployment = "  "`,
		`addr = [1, 2]`,
	} {
		if _, err := loadRuntimeConfig(writeConfig(t, content)); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}
