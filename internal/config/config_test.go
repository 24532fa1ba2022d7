package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.Engine.WorkerThreads != 4 {
		t.Errorf("expected 4 worker threads, got %d", cfg.Engine.WorkerThreads)
	}
	if cfg.Engine.MaxTransitionPasses != 10 {
		t.Errorf("expected 10 transition passes, got %d", cfg.Engine.MaxTransitionPasses)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.API.Port)
	}
	if cfg.MQTT.Enabled || cfg.Postgres.Enabled || cfg.Tracing.Enabled {
		t.Error("expected optional integrations disabled by default")
	}
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "animgraph.yaml")
	doc := `
engine:
  worker_threads: 8
  fps: 30
assets:
  graph: graphs/character.yaml
mqtt:
  enabled: true
log:
  format: json
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("ANIMGRAPH_API_PORT", "9090")
	t.Setenv("ANIMGRAPH_POSTGRES_PASSWORD_FILE", writeSecret(t, "pgsecret\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Engine.WorkerThreads != 8 {
		t.Errorf("expected 8 worker threads, got %d", cfg.Engine.WorkerThreads)
	}
	if got := cfg.Engine.FrameInterval(); got != 1.0/30 {
		t.Errorf("expected frame interval 1/30, got %v", got)
	}
	if cfg.Assets.Graph != "graphs/character.yaml" {
		t.Errorf("expected graph path, got %q", cfg.Assets.Graph)
	}
	if !cfg.MQTT.Enabled {
		t.Error("expected mqtt enabled from file")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected port 9090 from env, got %d", cfg.API.Port)
	}
	if cfg.Postgres.Password != "pgsecret" {
		t.Errorf("expected password from secret file, got %q", cfg.Postgres.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := &Config{
		Engine:  EngineConfig{WorkerThreads: 0, FPS: 0, MaxTransitionPasses: 0},
		Tracing: TracingConfig{Enabled: true},
		API:     APIConfig{AdminUser: "admin", TLSCert: "cert.pem"},
		Log:     LogConfig{Format: "xml"},
	}
	if got := len(cfg.Validate()); got != 7 {
		t.Errorf("expected 7 warnings, got %d: %v", got, cfg.Validate())
	}
}

func TestLogLevel(t *testing.T) {
	if got := (LogConfig{Level: "debug"}).SlogLevel(); got != slog.LevelDebug {
		t.Errorf("expected debug, got %v", got)
	}
	if got := (LogConfig{Level: "nonsense"}).SlogLevel(); got != slog.LevelInfo {
		t.Errorf("expected info fallback, got %v", got)
	}
}
