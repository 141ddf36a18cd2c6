// Package mock provides in-memory implementations of the device.Source and
// device.Sink interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record opens, closes and writes
// so tests can assert on device ownership, and expose exported fields that
// control behaviour.
//
// Typical usage:
//
//	src := mock.NewSource()
//	p := capture.New(src)
//	_ = p.Start(ctx)
//	src.Push(make([]int16, 1600))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
)

// Compile-time interface assertions.
var (
	_ device.Source       = (*Source)(nil)
	_ device.Sink         = (*Sink)(nil)
	_ device.InputStream  = (*InputStream)(nil)
	_ device.OutputStream = (*OutputStream)(nil)
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [device.Source]. Blocks pushed with [Source.Push] are
// delivered to the currently open stream in order.
type Source struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned from Open.
	OpenErr error

	// OpenDelay delays Open to simulate slow device acquisition.
	OpenDelay time.Duration

	// Opens and Closes count stream acquisitions and releases.
	Opens  int
	Closes int

	blocks  chan []int16
	current *InputStream
}

// NewSource returns a Source with a buffered block queue.
func NewSource() *Source {
	return &Source{blocks: make(chan []int16, 256)}
}

// Push queues one block of samples for the open stream.
func (s *Source) Push(block []int16) {
	s.blocks <- block
}

// Open implements [device.Source].
func (s *Source) Open(ctx context.Context, format audio.Format, framesPerBlock int) (device.InputStream, error) {
	s.mu.Lock()
	delay, openErr := s.OpenDelay, s.OpenErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opens++
	st := &InputStream{
		src:    s,
		format: format,
		done:   make(chan struct{}),
	}
	s.current = st
	return st, nil
}

// Held reports whether a stream is currently open.
func (s *Source) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Opens > s.Closes
}

// Counts returns the number of opens and closes so far.
func (s *Source) Counts() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Opens, s.Closes
}

// InputStream is returned by [Source.Open].
type InputStream struct {
	src       *Source
	format    audio.Format
	done      chan struct{}
	closeOnce sync.Once
}

// Read returns the next pushed block or [device.ErrStreamClosed].
func (s *InputStream) Read() ([]int16, error) {
	select {
	case <-s.done:
		return nil, device.ErrStreamClosed
	default:
	}
	select {
	case b := <-s.src.blocks:
		return b, nil
	case <-s.done:
		return nil, device.ErrStreamClosed
	}
}

// Format implements [device.InputStream].
func (s *InputStream) Format() audio.Format { return s.format }

// Close implements [device.InputStream].
func (s *InputStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.src.mu.Lock()
		s.src.Closes++
		if s.src.current == s {
			s.src.current = nil
		}
		s.src.mu.Unlock()
	})
	return nil
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock [device.Sink] whose streams record every sample written.
type Sink struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned from Open.
	OpenErr error

	// Realtime makes Write sleep for the duration of the written samples.
	Realtime bool

	// StartSuspended opens streams in the suspended state.
	StartSuspended bool

	// ResumeDelay delays Resume to simulate slow device wake-up.
	ResumeDelay time.Duration

	// Opens counts stream acquisitions.
	Opens int

	stream *OutputStream
}

// Open implements [device.Sink].
func (s *Sink) Open(_ context.Context, format audio.Format, _ int) (device.OutputStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.Opens++
	s.stream = &OutputStream{sink: s, format: format, suspended: s.StartSuspended}
	return s.stream, nil
}

// Stream returns the most recently opened stream, or nil.
func (s *Sink) Stream() *OutputStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// OutputStream is returned by [Sink.Open].
type OutputStream struct {
	sink   *Sink
	format audio.Format

	mu        sync.Mutex
	written   []int16
	writes    int
	suspended bool
	resumes   int
	suspends  int
	closed    bool
}

// Write implements [device.OutputStream].
func (s *OutputStream) Write(samples []int16) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return device.ErrStreamClosed
	}
	s.written = append(s.written, samples...)
	s.writes++
	s.mu.Unlock()

	s.sink.mu.Lock()
	realtime := s.sink.Realtime
	s.sink.mu.Unlock()
	if realtime {
		time.Sleep(s.format.Duration(len(samples) * 2))
	}
	return nil
}

// Suspended implements [device.OutputStream].
func (s *OutputStream) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Suspend implements [device.OutputStream].
func (s *OutputStream) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
	s.suspends++
	return nil
}

// Resume implements [device.OutputStream].
func (s *OutputStream) Resume() error {
	s.sink.mu.Lock()
	delay := s.sink.ResumeDelay
	s.sink.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	s.resumes++
	return nil
}

// Format implements [device.OutputStream].
func (s *OutputStream) Format() audio.Format { return s.format }

// Close implements [device.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Written returns a copy of all samples written so far.
func (s *OutputStream) Written() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.written...)
}

// Resumes returns how many times Resume completed.
func (s *OutputStream) Resumes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes
}

// Closed reports whether Close was called.
func (s *OutputStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
