// Package app wires the voxlink subsystems into a running application.
//
// The App owns the live session, the capture pipeline and the playback
// pipeline. Run consumes the session event stream and the level taps, forwards
// microphone frames to the session, and re-dispatches every event to a single
// handler. Connect and Disconnect drive the session; Shutdown tears everything
// down in order.
//
// For testing, construct the App with mock implementations of [Session],
// [Capture] and [Playback].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/pkg/audio/capture"
	"github.com/MrWong99/voxlink/pkg/audio/playback"
	"github.com/MrWong99/voxlink/pkg/live"
)

// Session is the subset of *live.Manager the App drives.
type Session interface {
	ID() string
	Status() live.Status
	Events() <-chan live.Event
	Connect(ctx context.Context, cfg live.SessionConfig) error
	Disconnect() error
	Close() error
	SendText(ctx context.Context, text string, turnComplete bool) error
	SendRealtimeInput(ctx context.Context, chunks []live.MediaChunk) error
}

// Capture is the subset of *capture.Pipeline the App drives.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	Close() error
	Recording() bool
	Frames() <-chan capture.Encoded
	Volume() <-chan float64
}

// Playback is the subset of *playback.Pipeline the App drives.
type Playback interface {
	Enqueue(chunk []byte) (playback.Scheduled, error)
	Flush()
	Volume() <-chan float64
	Close() error
}

var (
	_ Session  = (*live.Manager)(nil)
	_ Capture  = (*capture.Pipeline)(nil)
	_ Playback = (*playback.Pipeline)(nil)
)

// sendTimeout bounds a single realtime frame or greeting write.
const sendTimeout = 5 * time.Second

// Template is the session configuration used by the next Connect.
type Template struct {
	Session live.SessionConfig

	// Greeting is sent as a complete user turn once the session is Ready,
	// unless the Ready follows a reconnect. Empty sends nothing.
	Greeting string
}

// App owns all subsystem lifetimes.
type App struct {
	session  Session
	capture  Capture
	playback Playback
	template func() Template
	handler  func(live.Event)
	log      *slog.Logger

	mu       sync.Mutex
	greeting string // snapshot taken by the last Connect

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithTemplate sets the source of the session template. It is called on every
// Connect, so a config reload takes effect on the next Connect only.
func WithTemplate(fn func() Template) Option {
	return func(a *App) {
		if fn != nil {
			a.template = fn
		}
	}
}

// WithEventHandler receives every session event plus [live.EventVolume]
// events merged from capture and playback. It is called from two goroutines
// and must be safe for concurrent use.
func WithEventHandler(fn func(live.Event)) Option {
	return func(a *App) {
		if fn != nil {
			a.handler = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates an App. The session must already route its audio to p, see
// [NewSink].
func New(s Session, c Capture, p Playback, opts ...Option) *App {
	a := &App{
		session:  s,
		capture:  c,
		playback: p,
		template: func() Template {
			return Template{Session: live.SessionConfig{Modalities: []live.Modality{live.ModalityAudio}}}
		},
		handler: func(live.Event) {},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With("session_id", s.ID())
	return a
}

// Connect opens the session with the current template. The attempt is traced
// as a "session.connect" span.
func (a *App) Connect(ctx context.Context) (err error) {
	ctx, span := observe.StartSessionSpan(ctx, "connect", a.session.ID())
	defer func() { observe.EndSpan(span, err) }()

	t := a.template()
	a.mu.Lock()
	a.greeting = t.Greeting
	a.mu.Unlock()
	observe.Logger(ctx, a.log).Debug("connecting session", "session_id", a.session.ID(), "greeting", t.Greeting != "")
	if err = a.session.Connect(ctx, t.Session); err != nil {
		return fmt.Errorf("app: connect: %w", err)
	}
	return nil
}

// Disconnect stops the microphone and closes the session. Inside the
// session's protection window the close is dropped and capture keeps
// running.
func (a *App) Disconnect() error {
	if err := a.session.Disconnect(); err != nil {
		return fmt.Errorf("app: disconnect: %w", err)
	}
	if a.session.Status() == live.Disconnected {
		if err := a.capture.Stop(); err != nil {
			a.log.Warn("capture stop error", "err", err)
		}
	}
	return nil
}

// Run forwards frames and events until ctx is done or every source has
// closed. It returns ctx.Err() when cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.forwardFrames(gctx) })
	g.Go(func() error { return a.dispatchEvents(gctx) })
	g.Go(func() error { return a.mergeVolume(gctx) })

	a.log.Info("app running")
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// forwardFrames sends each encoded microphone frame as one realtime chunk.
// Frames produced while the session is not connected are dropped.
func (a *App) forwardFrames(ctx context.Context) error {
	var dropped uint64
	drop := func() {
		dropped++
		if dropped%100 == 0 {
			a.log.Debug("frames dropped while not connected", "count", dropped)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-a.capture.Frames():
			if !ok {
				return nil
			}
			if a.session.Status() != live.Connected {
				drop()
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := a.session.SendRealtimeInput(sctx, []live.MediaChunk{{MIMEType: f.MIMEType, Data: f.Data}})
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, live.ErrNotConnected), errors.Is(err, live.ErrClosed):
				drop()
			default:
				a.log.Warn("send frame failed", "seq", f.Seq, "err", err)
			}
		}
	}
}

// dispatchEvents reacts to lifecycle events and forwards every event to the
// handler.
func (a *App) dispatchEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.session.Events():
			if !ok {
				return nil
			}
			a.react(ctx, ev)
			a.handler(ev)
		}
	}
}

func (a *App) react(ctx context.Context, ev live.Event) {
	switch ev.Kind {
	case live.EventReady:
		if !a.capture.Recording() {
			if err := a.capture.Start(ctx); err != nil {
				a.log.Error("capture start failed", "err", err)
			}
		}
		if ev.Resumed {
			return
		}
		a.mu.Lock()
		greeting := a.greeting
		a.mu.Unlock()
		if greeting == "" {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := a.session.SendText(sctx, greeting, true); err != nil {
			a.log.Warn("greeting failed", "err", err)
		}
	case live.EventClosed:
		if err := a.capture.Stop(); err != nil {
			a.log.Warn("capture stop error", "err", err)
		}
	}
}

// mergeVolume re-emits capture and playback levels as Volume events.
func (a *App) mergeVolume(ctx context.Context) error {
	in, out := a.capture.Volume(), a.playback.Volume()
	for in != nil || out != nil {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			a.handler(live.Event{Kind: live.EventVolume, Time: time.Now(), Volume: v, Input: true})
		case v, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			a.handler(live.Event{Kind: live.EventVolume, Time: time.Now(), Volume: v})
		}
	}
	return nil
}

// Shutdown stops capture, closes the session and then playback. It respects
// the context deadline: remaining steps are skipped once ctx is done and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")
		closers := []struct {
			name string
			fn   func() error
		}{
			{"capture", a.capture.Close},
			{"session", a.session.Close},
			{"playback", a.playback.Close},
		}
		for i, c := range closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := c.fn(); err != nil {
				a.log.Warn("closer error", "name", c.name, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
