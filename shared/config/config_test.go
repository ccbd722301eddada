package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ImageDir != "./images" {
		t.Errorf("ImageDir = %q, want %q", cfg.ImageDir, "./images")
	}
	if cfg.ImageCacheMaxAge != 24*time.Hour {
		t.Errorf("ImageCacheMaxAge = %v, want 24h", cfg.ImageCacheMaxAge)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 10<<20)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IMAGE_DIR", "/var/lib/stations/images")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.ImageDir != "/var/lib/stations/images" {
		t.Errorf("ImageDir = %q", cfg.ImageDir)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.SweepInterval)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty = false, want true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port out of range", key: "PORT", value: "70000"},
		{name: "unparseable port", key: "PORT", value: "eighty"},
		{name: "zero upload limit", key: "MAX_UPLOAD_BYTES", value: "0"},
		{name: "unknown gin mode", key: "GIN_MODE", value: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}
