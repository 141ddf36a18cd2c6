// Package config provides the configuration schema, loader, and file watcher
// for the voxlink live audio client.
package config

import "time"

// LogLevel controls log verbosity for the voxlink process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used by the binary.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// EnvAPIKey names the environment variable that overrides provider.api_key.
const EnvAPIKey = "VOXLINK_API_KEY"

// Config is the root configuration structure for voxlink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Session  SessionConfig  `yaml:"session"`
	Audio    AudioConfig    `yaml:"audio"`
}

// ServerConfig holds the admin HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`
}

// ProviderConfig selects the Gemini Live endpoint and its credential.
type ProviderConfig struct {
	// APIKey authenticates the WebSocket upgrade. The VOXLINK_API_KEY
	// environment variable takes precedence when set.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the WebSocket root. Leave empty for the public
	// endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the model name without the "models/" prefix.
	Model string `yaml:"model"`

	// FallbackURLs are WebSocket roots tried in order when the primary
	// endpoint fails to dial or its breaker is open.
	FallbackURLs []string `yaml:"fallback_base_urls"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-endpoint dial circuit breaker. Zero values
// select the breaker defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// SessionConfig is the template for every session the client opens.
type SessionConfig struct {
	// Voice is the prebuilt voice name (e.g., "Puck").
	Voice string `yaml:"voice"`

	// LanguageCode is a BCP-47 tag for speech output.
	LanguageCode string `yaml:"language_code"`

	// Modalities lists response modalities: AUDIO, TEXT or both.
	Modalities []string `yaml:"modalities"`

	// Instructions is the system instruction text. Mutually exclusive with
	// InstructionsFile.
	Instructions string `yaml:"instructions"`

	// InstructionsFile is read at load time, relative to the config file.
	InstructionsFile string `yaml:"instructions_file"`

	// Greeting is sent as a complete user turn on the first Ready of a
	// connection that is not a resumption. Empty sends nothing.
	Greeting string `yaml:"greeting"`

	// InputTranscription and OutputTranscription request transcripts of
	// the user's and the model's speech.
	InputTranscription  bool `yaml:"input_transcription"`
	OutputTranscription bool `yaml:"output_transcription"`

	Timings TimingsConfig `yaml:"timings"`
}

// TimingsConfig tunes the session state machine. Zero values fall back to
// the defaults applied by [ApplyDefaults].
type TimingsConfig struct {
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ProtectionWindow time.Duration `yaml:"protection_window"`
	ReadyFallback    time.Duration `yaml:"ready_fallback"`
	RetryInternal    time.Duration `yaml:"retry_internal"`
	RetryTransient   time.Duration `yaml:"retry_transient"`
	MaxReconnects    int           `yaml:"max_reconnects"`
}

// AudioConfig describes the local microphone and speaker.
type AudioConfig struct {
	// InputRate is the wire sample rate for microphone audio.
	InputRate int `yaml:"input_rate"`

	// DeviceInputRate is the rate the microphone is opened at. Zero means
	// InputRate; any other value is resampled.
	DeviceInputRate int `yaml:"device_input_rate"`

	// OutputRate is the playback sample rate of model audio.
	OutputRate int `yaml:"output_rate"`

	// FrameMS is the duration of one outbound frame in milliseconds.
	FrameMS int `yaml:"frame_ms"`

	// EncoderWorkers bounds parallel frame encoding.
	EncoderWorkers int `yaml:"encoder_workers"`

	// IdleSuspend suspends the output stream after this much silence.
	// Zero keeps it running.
	IdleSuspend time.Duration `yaml:"idle_suspend"`

	// InputDevice and OutputDevice select devices by name. Empty uses the
	// host default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// FrameDuration returns FrameMS as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMS) * time.Millisecond
}
