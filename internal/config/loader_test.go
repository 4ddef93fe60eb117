package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/tavernworks/parley/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
  api_key: "secret"
  reject_unbound: true
  breaker:
    max_failures: 3
    reset_timeout: 15s
playback:
  tick_interval: 20ms
  min_frame_bytes: 64
  encoding: opus
  sample_rate: 48000
  channels: 1
capture:
  sample_rate: 16000
transcripts:
  postgres_dsn: "postgres://localhost/parley"
characters:
  - id: npc-grimjaw
    name: Grimjaw the Blacksmith
    voice: gravel
  - id: npc-elara
    name: Elara
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Dialogue.Breaker.ResetTimeout != 15*time.Second {
		t.Errorf("reset_timeout = %s, want 15s", cfg.Dialogue.Breaker.ResetTimeout)
	}
	if cfg.Playback.TickInterval != 20*time.Millisecond {
		t.Errorf("tick_interval = %s, want 20ms", cfg.Playback.TickInterval)
	}
	if cfg.Playback.Encoding != config.EncodingOpus {
		t.Errorf("encoding = %q, want opus", cfg.Playback.Encoding)
	}
	if len(cfg.Characters) != 2 {
		t.Fatalf("len(characters) = %d, want 2", len(cfg.Characters))
	}
	if cfg.Characters[0].Voice != "gravel" {
		t.Errorf("characters[0].voice = %q, want gravel", cfg.Characters[0].Voice)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Playback.Encoding != config.EncodingWAV {
		t.Errorf("encoding = %q, want wav", cfg.Playback.Encoding)
	}
	if !cfg.Capture.Enabled {
		t.Error("capture should default to enabled")
	}
}

func TestLoadFromReader_UnknownKeyIsError(t *testing.T) {
	t.Parallel()
	yaml := `
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
  endpoint: "typo"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestValidate_MissingDialogueURL(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server: {listen_addr: ':8080'}"))
	if err == nil {
		t.Fatal("expected error for missing dialogue url, got nil")
	}
	if !strings.Contains(err.Error(), "dialogue.url") {
		t.Errorf("error should mention dialogue.url, got: %v", err)
	}
}

func TestValidate_DuplicateCharacterIDs(t *testing.T) {
	t.Parallel()
	yaml := `
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
characters:
  - id: npc-grimjaw
    name: Grimjaw
  - id: npc-grimjaw
    name: Also Grimjaw
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate character ids, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_TickIntervalOutOfRange(t *testing.T) {
	t.Parallel()
	for _, tick := range []string{"100us", "2s"} {
		yaml := `
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
playback:
  tick_interval: ` + tick + `
`
		_, err := config.LoadFromReader(strings.NewReader(yaml))
		if err == nil {
			t.Fatalf("expected error for tick_interval %s, got nil", tick)
		}
		if !strings.Contains(err.Error(), "tick_interval") {
			t.Errorf("error should mention tick_interval, got: %v", err)
		}
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidEncoding(t *testing.T) {
	t.Parallel()
	yaml := `
dialogue:
  url: "wss://dialogue.example.com/v1/stream"
playback:
  encoding: mp3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid encoding, got nil")
	}
	if !strings.Contains(err.Error(), "encoding") {
		t.Errorf("error should mention encoding, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
characters:
  - id: npc-a
    name: A
  - id: npc-a
    name: B
  - id: ""
    name: C
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "dialogue.url", "duplicate", "id must not be empty"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}
