package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxlink/pkg/audio/capture"
	"github.com/MrWong99/voxlink/pkg/audio/playback"
	"github.com/MrWong99/voxlink/pkg/live"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// A relative session.instructions_file is resolved against the directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := load(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies the environment
// override and defaults, and validates the result. A relative
// instructions_file is resolved against the working directory.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, ".")
}

func load(r io.Reader, dir string) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := resolveInstructions(cfg, dir); err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func resolveInstructions(cfg *Config, dir string) error {
	path := cfg.Session.InstructionsFile
	if path == "" {
		return nil
	}
	if cfg.Session.Instructions != "" {
		return errors.New("config: session.instructions and session.instructions_file are mutually exclusive")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: session.instructions_file: %w", err)
	}
	cfg.Session.Instructions = strings.TrimSpace(string(data))
	return nil
}

// ApplyEnv overrides credentials from the environment.
func ApplyEnv(cfg *Config) {
	if key, ok := os.LookupEnv(EnvAPIKey); ok && key != "" {
		cfg.Provider.APIKey = key
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = live.DefaultModel
	}
	if len(cfg.Session.Modalities) == 0 {
		cfg.Session.Modalities = []string{string(live.ModalityAudio)}
	}

	t := &cfg.Session.Timings
	if t.DialTimeout == 0 {
		t.DialTimeout = live.DefaultDialTimeout
	}
	if t.ProtectionWindow == 0 {
		t.ProtectionWindow = live.DefaultProtectionWindow
	}
	if t.ReadyFallback == 0 {
		t.ReadyFallback = live.DefaultReadyFallback
	}
	if t.RetryInternal == 0 {
		t.RetryInternal = live.DefaultRetryInternal
	}
	if t.RetryTransient == 0 {
		t.RetryTransient = live.DefaultRetryTransient
	}
	if t.MaxReconnects == 0 {
		t.MaxReconnects = live.DefaultMaxReconnects
	}

	a := &cfg.Audio
	if a.InputRate == 0 {
		a.InputRate = capture.DefaultSampleRate
	}
	if a.OutputRate == 0 {
		a.OutputRate = playback.DefaultSampleRate
	}
	if a.FrameMS == 0 {
		a.FrameMS = int(capture.DefaultFrameDuration.Milliseconds())
	}
	if a.EncoderWorkers == 0 {
		a.EncoderWorkers = capture.DefaultWorkers
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Provider
	if cfg.Provider.APIKey == "" {
		errs = append(errs, fmt.Errorf("provider.api_key is required (or set %s)", EnvAPIKey))
	}
	if strings.HasPrefix(cfg.Provider.Model, "models/") {
		errs = append(errs, fmt.Errorf("provider.model %q must not carry the models/ prefix", cfg.Provider.Model))
	}
	if u := cfg.Provider.BaseURL; u != "" && !isWebSocketURL(u) {
		errs = append(errs, fmt.Errorf("provider.base_url %q must use ws:// or wss://", u))
	}
	for i, u := range cfg.Provider.FallbackURLs {
		if !isWebSocketURL(u) {
			errs = append(errs, fmt.Errorf("provider.fallback_base_urls[%d] %q must use ws:// or wss://", i, u))
		}
	}
	if b := cfg.Provider.Breaker; b.MaxFailures < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("provider.breaker values must not be negative"))
	}

	// Session
	if _, err := cfg.LiveSession(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}

	t := cfg.Session.Timings
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"dial_timeout", t.DialTimeout},
		{"protection_window", t.ProtectionWindow},
		{"ready_fallback", t.ReadyFallback},
		{"retry_internal", t.RetryInternal},
		{"retry_transient", t.RetryTransient},
	} {
		if f.d < 0 {
			errs = append(errs, fmt.Errorf("session.timings.%s must not be negative", f.name))
		}
	}
	if t.MaxReconnects < 0 || t.MaxReconnects > 255 {
		errs = append(errs, fmt.Errorf("session.timings.max_reconnects %d is out of range [0, 255]", t.MaxReconnects))
	}

	// Audio
	a := cfg.Audio
	for _, f := range []struct {
		name string
		hz   int
	}{
		{"input_rate", a.InputRate},
		{"device_input_rate", a.DeviceInputRate},
		{"output_rate", a.OutputRate},
	} {
		if f.hz < 0 || (f.hz > 0 && (f.hz < 8000 || f.hz > 192000)) {
			errs = append(errs, fmt.Errorf("audio.%s %d is out of range [8000, 192000]", f.name, f.hz))
		}
	}
	if a.FrameMS < 0 || a.FrameMS > 1000 || (a.FrameMS > 0 && a.FrameMS < 10) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is out of range [10, 1000]", a.FrameMS))
	}
	if a.EncoderWorkers < 0 {
		errs = append(errs, fmt.Errorf("audio.encoder_workers %d must not be negative", a.EncoderWorkers))
	}
	if a.IdleSuspend < 0 {
		errs = append(errs, errors.New("audio.idle_suspend must not be negative"))
	}

	return errors.Join(errs...)
}

func isWebSocketURL(u string) bool {
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
}
