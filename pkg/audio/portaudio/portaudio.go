// Package portaudio implements the device.Source and device.Sink interfaces on
// top of the PortAudio C library using blocking stream I/O.
//
// A [Host] wraps the library lifetime: create one with [New] at startup and
// close it on shutdown after all streams are closed.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
)

// Compile-time interface assertions.
var (
	_ device.Source       = (*Host)(nil)
	_ device.InputStream  = (*inputStream)(nil)
	_ device.OutputStream = (*outputStream)(nil)
)

// Option configures a [Host].
type Option func(*Host)

// WithInputDevice selects the first input device whose name contains name
// (case-insensitive). The default input device is used when empty.
func WithInputDevice(name string) Option {
	return func(h *Host) { h.inputName = name }
}

// WithOutputDevice selects the first output device whose name contains name
// (case-insensitive). The default output device is used when empty.
func WithOutputDevice(name string) Option {
	return func(h *Host) { h.outputName = name }
}

// Host owns the PortAudio library lifetime. It acts as a [device.Source]
// directly and exposes a [device.Sink] through [Host.Sink].
type Host struct {
	inputName  string
	outputName string

	closeOnce sync.Once
}

// New initialises PortAudio.
func New(opts ...Option) (*Host, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", device.ErrDeviceUnavailable, err)
	}
	h := &Host{}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Close terminates PortAudio. It is safe to call more than once.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() { err = pa.Terminate() })
	return err
}

// Sink returns the output side of the host.
func (h *Host) Sink() device.Sink { return sink{h} }

// Open acquires an input device. Implements [device.Source].
func (h *Host) Open(_ context.Context, format audio.Format, framesPerBlock int) (device.InputStream, error) {
	dev, err := findDevice(h.inputName, true)
	if err != nil {
		return nil, err
	}
	channels := min(format.Channels, dev.MaxInputChannels)
	if channels < 1 {
		return nil, fmt.Errorf("portaudio: %q has no input channels: %w", dev.Name, device.ErrDeviceUnavailable)
	}
	buf := make([]int16, framesPerBlock*channels)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: framesPerBlock,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w: %w", dev.Name, device.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input %q: %w: %w", dev.Name, device.ErrDeviceUnavailable, err)
	}
	slog.Info("portaudio input opened", "device", dev.Name, "sample_rate", format.SampleRate, "channels", channels)
	return &inputStream{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: format.SampleRate, Channels: channels},
	}, nil
}

type sink struct{ h *Host }

// Open acquires an output device. Implements [device.Sink].
func (s sink) Open(_ context.Context, format audio.Format, framesPerBlock int) (device.OutputStream, error) {
	dev, err := findDevice(s.h.outputName, false)
	if err != nil {
		return nil, err
	}
	channels := min(format.Channels, dev.MaxOutputChannels)
	if channels < 1 {
		return nil, fmt.Errorf("portaudio: %q has no output channels: %w", dev.Name, device.ErrDeviceUnavailable)
	}
	buf := make([]int16, framesPerBlock*channels)
	params := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: framesPerBlock,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output %q: %w: %w", dev.Name, device.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output %q: %w: %w", dev.Name, device.ErrDeviceUnavailable, err)
	}
	out := &outputStream{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: format.SampleRate, Channels: channels},
	}
	out.active.Store(true)
	slog.Info("portaudio output opened", "device", dev.Name, "sample_rate", format.SampleRate, "channels", channels)
	return out, nil
}

// findDevice resolves a device by name substring, falling back to the host
// default when name is empty.
func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		var (
			dev *pa.DeviceInfo
			err error
		)
		if input {
			dev, err = pa.DefaultInputDevice()
		} else {
			dev, err = pa.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("portaudio: default device: %w: %w", device.ErrDeviceUnavailable, err)
		}
		return dev, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w: %w", device.ErrDeviceUnavailable, err)
	}
	want := strings.ToLower(name)
	for _, dev := range devices {
		if input && dev.MaxInputChannels < 1 || !input && dev.MaxOutputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), want) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no device matching %q: %w", name, device.ErrDeviceUnavailable)
}

// ── input ─────────────────────────────────────────────────────────────────────

type inputStream struct {
	stream *pa.Stream
	buf    []int16
	format audio.Format

	mu     sync.Mutex
	closed bool
}

func (s *inputStream) Read() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, device.ErrStreamClosed
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	return append([]int16(nil), s.buf...), nil
}

func (s *inputStream) Format() audio.Format { return s.format }

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.stream.Stop(), s.stream.Close())
}

// ── output ────────────────────────────────────────────────────────────────────

type outputStream struct {
	stream *pa.Stream
	buf    []int16
	format audio.Format
	active atomic.Bool

	mu     sync.Mutex
	closed bool
}

// Write copies samples into the device buffer in block-sized pieces, padding
// the final block with silence.
func (s *outputStream) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrStreamClosed
	}
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

func (s *outputStream) Suspended() bool { return !s.active.Load() }

func (s *outputStream) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.active.Load() {
		return nil
	}
	s.active.Store(false)
	return s.stream.Stop()
}

func (s *outputStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrStreamClosed
	}
	if s.active.Load() {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: resume: %w", err)
	}
	s.active.Store(true)
	return nil
}

func (s *outputStream) Format() audio.Format { return s.format }

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var stopErr error
	if s.active.Swap(false) {
		stopErr = s.stream.Stop()
	}
	return errors.Join(stopErr, s.stream.Close())
}
