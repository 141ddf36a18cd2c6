package app

import (
	"log/slog"

	"github.com/MrWong99/voxlink/pkg/live"
)

var _ live.Sink = (*Sink)(nil)

// Sink adapts a [Playback] to live.Sink so the session can route decoded
// model audio straight into the playback buffer.
type Sink struct {
	p   Playback
	log *slog.Logger
}

// NewSink returns a Sink feeding p. A nil log uses slog.Default.
func NewSink(p Playback, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{p: p, log: log}
}

// Enqueue schedules pcm for playback. Failures are logged; the session never
// blocks on playback.
func (s *Sink) Enqueue(pcm []byte) {
	sched, err := s.p.Enqueue(pcm)
	if err != nil {
		s.log.Warn("playback enqueue failed", "bytes", len(pcm), "err", err)
		return
	}
	s.log.Debug("audio scheduled", "seq", sched.Seq, "start", sched.Start, "duration", sched.Duration())
}

// Flush discards queued audio.
func (s *Sink) Flush() { s.p.Flush() }
