package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/config"
	"github.com/MrWong99/voxlink/pkg/live"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info
  log_format: json

provider:
  api_key: test-key
  model: gemini-2.0-flash-live-001

session:
  voice: Puck
  language_code: en-US
  modalities: [audio, text]
  instructions: You are a helpful assistant.
  greeting: Hello there!
  output_transcription: true
  timings:
    protection_window: 5s
    retry_internal: 4s
    max_reconnects: 5

audio:
  input_rate: 16000
  device_input_rate: 48000
  output_rate: 24000
  frame_ms: 50
  encoder_workers: 2
  idle_suspend: 30s
  input_device: USB Mic
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server.log_format: got %q", cfg.Server.LogFormat)
	}
	if cfg.Session.Voice != "Puck" {
		t.Errorf("session.voice: got %q", cfg.Session.Voice)
	}
	if cfg.Session.Timings.ProtectionWindow != 5*time.Second {
		t.Errorf("session.timings.protection_window: got %v, want 5s", cfg.Session.Timings.ProtectionWindow)
	}
	if cfg.Session.Timings.ReadyFallback != live.DefaultReadyFallback {
		t.Errorf("session.timings.ready_fallback: got %v, want default", cfg.Session.Timings.ReadyFallback)
	}
	if cfg.Audio.FrameDuration() != 50*time.Millisecond {
		t.Errorf("audio.frame_ms: got %v", cfg.Audio.FrameDuration())
	}
	if cfg.Audio.IdleSuspend != 30*time.Second {
		t.Errorf("audio.idle_suspend: got %v", cfg.Audio.IdleSuspend)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("provider:\n  api_key: k\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q", cfg.Server.LogLevel)
	}
	if cfg.Provider.Model != live.DefaultModel {
		t.Errorf("model default: got %q", cfg.Provider.Model)
	}
	if len(cfg.Session.Modalities) != 1 || cfg.Session.Modalities[0] != "AUDIO" {
		t.Errorf("modalities default: got %v", cfg.Session.Modalities)
	}
	if cfg.Session.Timings.MaxReconnects != live.DefaultMaxReconnects {
		t.Errorf("max_reconnects default: got %d", cfg.Session.Timings.MaxReconnects)
	}
	if cfg.Audio.InputRate != 16000 || cfg.Audio.OutputRate != 24000 {
		t.Errorf("rates default: got %d/%d", cfg.Audio.InputRate, cfg.Audio.OutputRate)
	}
	if cfg.Audio.FrameMS != 100 || cfg.Audio.EncoderWorkers != 4 {
		t.Errorf("frame_ms/workers default: got %d/%d", cfg.Audio.FrameMS, cfg.Audio.EncoderWorkers)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("provider:\n  api_key: k\n  apikey: typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "from-env")
	cfg, err := config.LoadFromReader(strings.NewReader("provider:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api_key: got %q, want from-env", cfg.Provider.APIKey)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected error for missing api_key, got nil")
	}
	if !strings.Contains(err.Error(), config.EnvAPIKey) {
		t.Errorf("error should mention %s, got: %v", config.EnvAPIKey, err)
	}
}

func TestLoad_InstructionsFileRelativeToConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "persona.txt"), "  Speak like a pirate.\n")
	cfgPath := filepath.Join(dir, "voxlink.yaml")
	writeFile(t, cfgPath, "provider:\n  api_key: k\nsession:\n  instructions_file: persona.txt\n")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.Instructions != "Speak like a pirate." {
		t.Errorf("instructions: got %q", cfg.Session.Instructions)
	}
}

func TestLoad_InstructionsExclusive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "persona.txt"), "x")
	cfgPath := filepath.Join(dir, "voxlink.yaml")
	writeFile(t, cfgPath, "provider:\n  api_key: k\nsession:\n  instructions: y\n  instructions_file: persona.txt\n")

	if _, err := config.Load(cfgPath); err == nil {
		t.Fatal("expected error when both instructions and instructions_file are set")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load error = %v; want os.ErrNotExist", err)
	}
}

// ── session conversion ───────────────────────────────────────────────────────

func TestLiveSession(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sc, err := cfg.LiveSession()
	if err != nil {
		t.Fatalf("LiveSession: %v", err)
	}
	if !sc.HasModality(live.ModalityAudio) || !sc.HasModality(live.ModalityText) {
		t.Errorf("modalities: got %v", sc.Modalities)
	}
	if !sc.OutputTranscription || sc.InputTranscription {
		t.Errorf("transcription flags: in=%v out=%v", sc.InputTranscription, sc.OutputTranscription)
	}
	if sc.LanguageCode != "en-US" {
		t.Errorf("language_code: got %q", sc.LanguageCode)
	}
	if n := len(cfg.LiveOptions()); n == 0 {
		t.Error("LiveOptions returned no options")
	}
}
