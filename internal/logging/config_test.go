package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{raw: "", want: zerolog.InfoLevel, ok: false},
		{raw: " DEBUG ", want: zerolog.DebugLevel, ok: true},
		{raw: "warning", want: zerolog.WarnLevel, ok: true},
		{raw: "off", want: zerolog.Disabled, ok: true},
		{raw: "loud", want: zerolog.InfoLevel, ok: false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLevel(%q) = (%v,%v), want (%v,%v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEnvOverridesProfileDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")

	cfg := defaultConfig(ProfileTest)
	if cfg.Level != zerolog.DebugLevel || cfg.Timestamp {
		t.Fatalf("unexpected test profile defaults: %+v", cfg)
	}
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv(EnvLogLevel, "loud")
	t.Setenv(EnvLogNoColor, "maybe")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.InfoLevel || cfg.NoColor {
		t.Fatalf("garbage env should be ignored: %+v", cfg)
	}
}
