package live

import (
	"context"
	"time"
)

// Dialer opens transport connections to the live service. Endpoint and
// credentials belong to the Dialer.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one message-oriented transport connection.
//
// Read and Write may be called concurrently with each other; Write must be
// safe for concurrent callers. When the connection ends, Read returns an
// error wrapping a [*CloseError] carrying the close code.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, msg []byte) error
	Close(code int, reason string) error
}

// Sink receives decoded model audio. Both methods are called from the
// session's control goroutine and must not block.
type Sink interface {
	Enqueue(pcm []byte)
	Flush()
}

// Metrics records session telemetry. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordConnect(ctx context.Context, latency time.Duration, resumed bool, err error)
	RecordReconnectAttempt(ctx context.Context, reason CloseReason)
	RecordClose(ctx context.Context, reason CloseReason)
	RecordFramesSent(ctx context.Context, n int)
	RecordFrameDropped(ctx context.Context)
	RecordInterruption(ctx context.Context)
	RecordFatal(ctx context.Context, kind ErrorKind)
	RecordActive(ctx context.Context, delta int64)
}

type nopSink struct{}

func (nopSink) Enqueue([]byte) {}
func (nopSink) Flush() {}

type nopMetrics struct{}

func (nopMetrics) RecordConnect(context.Context, time.Duration, bool, error) {}
func (nopMetrics) RecordReconnectAttempt(context.Context, CloseReason) {}
func (nopMetrics) RecordClose(context.Context, CloseReason) {}
func (nopMetrics) RecordFramesSent(context.Context, int) {}
func (nopMetrics) RecordFrameDropped(context.Context) {}
func (nopMetrics) RecordInterruption(context.Context) {}
func (nopMetrics) RecordFatal(context.Context, ErrorKind) {}
func (nopMetrics) RecordActive(context.Context, int64) {}
