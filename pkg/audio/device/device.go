// Package device defines the boundary between the audio pipelines and the
// platform's input and output hardware.
//
// A [Source] opens an [InputStream] (microphone) and a [Sink] opens an
// [OutputStream] (speaker). Both stream types are blocking and are driven from
// a dedicated goroutine owned by the pipeline that opened them, never from the
// session control goroutine. A stream is owned exclusively by the pipeline
// that opened it and must be closed by that pipeline.
//
// Implementations live in sub-packages such as audio/portaudio; tests use
// audio/mock.
package device

import (
	"context"
	"errors"

	"github.com/MrWong99/voxlink/pkg/audio"
)

// ErrDeviceUnavailable is wrapped by Open errors when the platform denies
// access to the device or the hardware is missing.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ErrStreamClosed is returned by stream operations after Close.
var ErrStreamClosed = errors.New("device: stream closed")

// InputStream delivers captured PCM in fixed-size blocks.
type InputStream interface {
	// Read blocks until the next block of samples is available and returns
	// it. The returned slice is owned by the caller. Read returns an error
	// once the stream is closed.
	Read() ([]int16, error)

	// Format reports the negotiated sample format of the stream.
	Format() audio.Format

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Source opens input streams.
type Source interface {
	// Open acquires the input device in the requested format with the given
	// block size in sample frames. Errors wrap [ErrDeviceUnavailable].
	Open(ctx context.Context, format audio.Format, framesPerBlock int) (InputStream, error)
}

// OutputStream renders PCM.
type OutputStream interface {
	// Write blocks until samples have been handed to the device buffer.
	Write(samples []int16) error

	// Suspended reports whether the device is paused (power saving, stream
	// stopped after an underrun).
	Suspended() bool

	// Suspend pauses the device to save power. Buffered output is discarded.
	Suspend() error

	// Resume restarts a suspended device. It may block.
	Resume() error

	// Format reports the negotiated sample format of the stream.
	Format() audio.Format

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Sink opens output streams.
type Sink interface {
	// Open acquires the output device. Errors wrap [ErrDeviceUnavailable].
	Open(ctx context.Context, format audio.Format, framesPerBlock int) (OutputStream, error)
}
