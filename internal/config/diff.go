package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true if any field of the session template changed.
	// The new template applies to the next caller Connect only.
	SessionChanged bool
	SessionFields  []string // yaml names of the changed session fields

	// RestartRequired lists sections whose changes take effect only after
	// the process restarts (provider, audio, server listener).
	RestartRequired []string
}

// Empty reports whether the diff carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SessionChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.SessionFields = diffSession(&old.Session, &new.Session)
	d.SessionChanged = len(d.SessionFields) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providerEqual(&old.Provider, &new.Provider) {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	return d
}

// diffSession compares two session templates field by field.
func diffSession(old, new *SessionConfig) []string {
	var fields []string
	if old.Voice != new.Voice {
		fields = append(fields, "voice")
	}
	if old.LanguageCode != new.LanguageCode {
		fields = append(fields, "language_code")
	}
	if !slices.Equal(old.Modalities, new.Modalities) {
		fields = append(fields, "modalities")
	}
	if old.Instructions != new.Instructions {
		fields = append(fields, "instructions")
	}
	if old.Greeting != new.Greeting {
		fields = append(fields, "greeting")
	}
	if old.InputTranscription != new.InputTranscription || old.OutputTranscription != new.OutputTranscription {
		fields = append(fields, "transcription")
	}
	if old.Timings != new.Timings {
		fields = append(fields, "timings")
	}
	return fields
}

func providerEqual(a, b *ProviderConfig) bool {
	return a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		slices.Equal(a.FallbackURLs, b.FallbackURLs) &&
		a.Breaker == b.Breaker
}
