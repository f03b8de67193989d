package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STUDIO_CONFIG", "DATABASE_URL", "NATS_URL", "STORAGE_BACKEND", "WORKER_CONCURRENCY",
		"TTS_ENGINE_URL", "STALL_TIMEOUT_SECONDS", "CORS_ORIGINS", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.UsesMemoryStore() {
		t.Fatalf("expected memory store without DATABASE_URL")
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.StallTimeout != 10*time.Minute {
		t.Fatalf("StallTimeout mismatch: got %s", cfg.StallTimeout)
	}
	if cfg.Worker.Concurrency != 1 || cfg.Worker.ContextTokens != 64000 || cfg.Worker.FillRatio != 0.8 {
		t.Fatalf("worker defaults mismatch: %#v", cfg.Worker)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.CORSOrigins)
	}
}

func TestLoadConfigFileOverlayAndEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "studio.toml")
	body := `
[worker]
concurrency = 3
engine_url = "http://tts.internal:9000"
engine_timeout_seconds = 120
fill_ratio = 0.5

[watchdog]
stall_timeout_seconds = 900
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUDIO_CONFIG", path)
	t.Setenv("WORKER_CONCURRENCY", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Worker.Concurrency != 5 {
		t.Fatalf("env should win over file: got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.EngineURL != "http://tts.internal:9000" {
		t.Fatalf("EngineURL mismatch: got %q", cfg.Worker.EngineURL)
	}
	if cfg.Worker.EngineTimeout != 2*time.Minute {
		t.Fatalf("EngineTimeout mismatch: got %s", cfg.Worker.EngineTimeout)
	}
	if cfg.Worker.FillRatio != 0.5 {
		t.Fatalf("FillRatio mismatch: got %g", cfg.Worker.FillRatio)
	}
	if cfg.StallTimeout != 15*time.Minute {
		t.Fatalf("StallTimeout mismatch: got %s", cfg.StallTimeout)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "nats storage without url", env: map[string]string{"STORAGE_BACKEND": "nats"}},
		{name: "unknown storage", env: map[string]string{"STORAGE_BACKEND": "s3"}},
		{name: "zero concurrency", env: map[string]string{"WORKER_CONCURRENCY": "0"}},
		{name: "negative stall timeout", env: map[string]string{"STALL_TIMEOUT_SECONDS": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STUDIO_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
