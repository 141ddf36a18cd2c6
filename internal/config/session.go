package config

import "github.com/MrWong99/voxlink/pkg/live"

// LiveSession converts the session template into a validated
// [live.SessionConfig]. Tools are not configurable from YAML.
func (c *Config) LiveSession() (live.SessionConfig, error) {
	s := c.Session
	mods := make([]live.Modality, len(s.Modalities))
	for i, m := range s.Modalities {
		mods[i] = live.Modality(m)
	}
	return live.SessionConfig{
		Modalities:          mods,
		Voice:               s.Voice,
		LanguageCode:        s.LanguageCode,
		Instructions:        s.Instructions,
		InputTranscription:  s.InputTranscription,
		OutputTranscription: s.OutputTranscription,
	}.Validate()
}

// LiveOptions returns the [live.Manager] options for the model and timings.
func (c *Config) LiveOptions() []live.Option {
	t := c.Session.Timings
	return []live.Option{
		live.WithModel(c.Provider.Model),
		live.WithDialTimeout(t.DialTimeout),
		live.WithProtectionWindow(t.ProtectionWindow),
		live.WithReadyFallback(t.ReadyFallback),
		live.WithRetryDelays(t.RetryInternal, t.RetryTransient),
		live.WithMaxReconnects(uint8(t.MaxReconnects)),
	}
}
