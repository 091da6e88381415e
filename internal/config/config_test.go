package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Transcriber.ChunkSize != 1024 {
		t.Fatalf("expected default chunk size, got %d", cfg.Transcriber.ChunkSize)
	}
	if cfg.Speech.ModelsDir != "./models" {
		t.Fatalf("expected default models dir, got %s", cfg.Speech.ModelsDir)
	}
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "phrased.yaml")
	body := `
speech:
  models_dir: /opt/speech/models
  train_dir: /opt/speech/train
  tools_dir: /opt/speech/tools
  custom_sentences_dirs:
    - /etc/phrased/sentences
transcriber:
  mode: exec
  chunk_size: 2048
history:
  retention_mode: ephemeral
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.ModelsDir != "/opt/speech/models" {
		t.Fatalf("expected models dir from file, got %s", cfg.Speech.ModelsDir)
	}
	if len(cfg.Speech.CustomSentencesDirs) != 1 {
		t.Fatalf("expected custom sentences dir, got %v", cfg.Speech.CustomSentencesDirs)
	}
	if cfg.Transcriber.ChunkSize != 2048 {
		t.Fatalf("expected chunk size override, got %d", cfg.Transcriber.ChunkSize)
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention mode override, got %s", cfg.History.RetentionMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PHRASED_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PHRASED_BUS_USERNAME", "alice")
	t.Setenv("PHRASED_BUS_PASSWORD", "secret")
	t.Setenv("PHRASED_SPEECH_MODELS_DIR", "/srv/models")
	t.Setenv("PHRASED_SPEECH_CUSTOM_SENTENCES_DIRS", "/srv/sentences/a, /srv/sentences/b")
	t.Setenv("PHRASED_SPEECH_RETRAIN_ON_CONNECT", "true")
	t.Setenv("PHRASED_TRANSCRIBER_MODE", "mock")
	t.Setenv("PHRASED_TRANSCRIBER_CHUNK_SIZE", "512")
	t.Setenv("PHRASED_HISTORY_PATH", "./tmp.db")
	t.Setenv("PHRASED_HISTORY_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Speech.ModelsDir != "/srv/models" {
		t.Fatalf("expected models dir override, got %s", cfg.Speech.ModelsDir)
	}
	if len(cfg.Speech.CustomSentencesDirs) != 2 {
		t.Fatalf("expected 2 custom sentences dirs, got %v", cfg.Speech.CustomSentencesDirs)
	}
	if !cfg.Speech.RetrainOnConnect {
		t.Fatal("expected retrain on connect override true")
	}
	if cfg.Transcriber.Mode != "mock" {
		t.Fatalf("expected transcriber mode override, got %s", cfg.Transcriber.Mode)
	}
	if cfg.Transcriber.ChunkSize != 512 {
		t.Fatalf("expected chunk size 512, got %d", cfg.Transcriber.ChunkSize)
	}
	if cfg.History.Path != "./tmp.db" {
		t.Fatalf("expected history path override")
	}
	if cfg.History.RetentionDays != 7 {
		t.Fatalf("expected history retention days override")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	t.Setenv("PHRASED_TRANSCRIBER_MODE", "quantum")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown transcriber mode")
	}
}
