package live

import (
	"fmt"
	"log/slog"
	"time"
)

// EventKind discriminates [Event].
type EventKind int

const (
	// EventReady fires once per transport connection, when the peer
	// acknowledges setup or the ready fallback elapses.
	EventReady EventKind = iota + 1
	// EventAudioChunk carries decoded model audio. The same bytes have
	// already been handed to the Sink.
	EventAudioChunk
	// EventContent carries non-audio model parts.
	EventContent
	EventTurnComplete
	// EventInterrupted reports that the peer cut the model turn short. The
	// Sink has been flushed by the time the event is delivered.
	EventInterrupted
	EventToolCall
	EventToolCallCancellation
	EventTranscript
	EventError
	EventClosed
	EventLog
	// EventVolume carries a capture or playback level. The Manager never
	// emits it; orchestrators merge it into their own streams.
	EventVolume
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventAudioChunk:
		return "audio_chunk"
	case EventContent:
		return "content"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	case EventToolCall:
		return "tool_call"
	case EventToolCallCancellation:
		return "tool_call_cancellation"
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	case EventLog:
		return "log"
	case EventVolume:
		return "volume"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ErrorKind classifies an [EventError].
type ErrorKind int

const (
	ErrorTransport ErrorKind = iota + 1
	ErrorTimeout
	ErrorProtocolViolation
	ErrorReconnectExhausted
	ErrorConfigInvalid
	// ErrorPeer is an error message sent by the peer without closing.
	ErrorPeer
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorTimeout:
		return "timeout"
	case ErrorProtocolViolation:
		return "protocol_violation"
	case ErrorReconnectExhausted:
		return "reconnect_exhausted"
	case ErrorConfigInvalid:
		return "config_invalid"
	case ErrorPeer:
		return "peer"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Retryable reports whether the condition could clear on a new connection.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorProtocolViolation, ErrorConfigInvalid, ErrorReconnectExhausted:
		return false
	default:
		return true
	}
}

// TranscriptSource tells whose speech a transcript covers.
type TranscriptSource int

const (
	TranscriptInput TranscriptSource = iota + 1
	TranscriptOutput
)

func (s TranscriptSource) String() string {
	if s == TranscriptInput {
		return "input"
	}
	return "output"
}

// Event is one item of the session event stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind
	Time time.Time

	// Ready: Resumed is set when an earlier Ready of the same logical session
	// was already emitted, so once-per-session side effects such as a
	// greeting must not repeat.
	// Fallback is set when the ready timer rather than the peer fired it.
	Resumed  bool
	Fallback bool

	Audio []byte // AudioChunk
	Parts []Part // Content

	Text   string           // Transcript, Log
	Source TranscriptSource // Transcript

	ToolCalls    []FunctionCall // ToolCall
	CancelledIDs []string       // ToolCallCancellation

	Err       error     // Error
	ErrorKind ErrorKind // Error

	Reason CloseReason // Closed
	Code   int         // Closed

	Level slog.Level // Log

	Volume float64 // Volume
	Input  bool    // Volume: capture level when true, playback otherwise
}
