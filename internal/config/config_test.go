package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
port: "8080"
databaseURL: "postgres://localhost/app"
tokenSecret: "secret"
localStorage: "/tmp/uploads"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" || cfg.DatabaseURL != "postgres://localhost/app" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/app")
	t.Setenv("EMBEDDING_DIM", "768")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://override/app" {
		t.Fatalf("databaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.EmbeddingDim != 768 {
		t.Fatalf("embeddingDim = %d, want 768", cfg.EmbeddingDim)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing port", strings.Replace(validConfig, `port: "8080"`, "", 1), "port is required"},
		{"missing secret", strings.Replace(validConfig, `tokenSecret: "secret"`, "", 1), "tokenSecret is required"},
		{"bad embedding backend", validConfig + "\nembeddingBackend: openai\n", "unknown embeddingBackend"},
		{"missing storage", strings.Replace(validConfig, `localStorage: "/tmp/uploads"`, "", 1), "minioEndpoint or localStorage"},
	}
	for _, tt := range tests {
		_, err := Load(writeConfig(t, tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() should fail on missing file")
	}
}
