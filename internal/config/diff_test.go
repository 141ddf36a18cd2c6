package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":9090"},
		Provider: config.ProviderConfig{APIKey: "k", Model: "m"},
		Session: config.SessionConfig{
			Voice:      "Puck",
			Modalities: []string{"AUDIO"},
			Greeting:   "hi",
			Timings:    config.TimingsConfig{ProtectionWindow: 3 * time.Second},
		},
		Audio: config.AudioConfig{InputRate: 16000, OutputRate: 24000},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require restart: %v", d.RestartRequired)
	}
}

func TestDiff_SessionFields(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Session.Voice = "Kore"
	new.Session.Modalities = []string{"AUDIO", "TEXT"}
	new.Session.Timings.ProtectionWindow = time.Second

	d := config.Diff(old, new)
	if !d.SessionChanged {
		t.Fatal("expected SessionChanged=true")
	}
	want := []string{"voice", "modalities", "timings"}
	if !slices.Equal(d.SessionFields, want) {
		t.Errorf("SessionFields = %v; want %v", d.SessionFields, want)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Provider.Model = "other"
	new.Audio.OutputRate = 48000

	d := config.Diff(old, new)
	want := []string{"provider", "audio"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v; want %v", d.RestartRequired, want)
	}
	if d.SessionChanged {
		t.Error("session should be unchanged")
	}
}

func TestDiff_FallbackURLsRequireRestart(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Provider.FallbackURLs = []string{"wss://backup.example.com"}

	d := config.Diff(old, new)
	if !slices.Equal(d.RestartRequired, []string{"provider"}) {
		t.Errorf("RestartRequired = %v; want [provider]", d.RestartRequired)
	}
}
