package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type runtimeConfig struct {
	Name           string
	Addr           string
	CorsOrigins    []string
	AdminToken     string
	StoreDir       string
	Deployment     string
	MaxReasonBytes int
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Name:           "bridgectl",
		Addr:           ":9200",
		CorsOrigins:    []string{"http://localhost:3000"},
		Deployment:     "cmd/bridgectl/deployment.toml",
		MaxReasonBytes: 150,
	}
}

type fileConfig struct {
	Name           string   `toml:"name"`
	Addr           string   `toml:"addr"`
	CorsOrigins    []string `toml:"cors_origins"`
	AdminToken     string   `toml:"admin_token"`
	StoreDir       string   `toml:"store_dir"`
	Deployment     string   `toml:"deployment"`
	MaxReasonBytes int      `toml:"max_reason_bytes"`
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load bridgectl config: %w", err)
	}

	if meta.IsDefined("name") {
		if v := strings.TrimSpace(raw.Name); v != "" {
			cfg.Name = v
		}
	}
	if meta.IsDefined("addr") {
		if v := strings.TrimSpace(raw.Addr); v != "" {
			cfg.Addr = v
		}
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("store_dir") {
		cfg.StoreDir = strings.TrimSpace(raw.StoreDir)
	}
	if meta.IsDefined("deployment") {
		v := strings.TrimSpace(raw.Deployment)
		if v == "" {
			return runtimeConfig{}, fmt.Errorf("deployment path is empty")
		}
		cfg.Deployment = v
	}
	if meta.IsDefined("max_reason_bytes") {
		if raw.MaxReasonBytes <= 0 {
			return runtimeConfig{}, fmt.Errorf("max_reason_bytes must be positive, got %d", raw.MaxReasonBytes)
		}
		cfg.MaxReasonBytes = raw.MaxReasonBytes
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
