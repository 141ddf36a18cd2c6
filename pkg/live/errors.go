package live

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid is returned by Connect when the session configuration
	// fails validation.
	ErrConfigInvalid = errors.New("live: invalid session config")

	// ErrTransportTimeout is returned when the transport could not be opened
	// within the dial timeout.
	ErrTransportTimeout = errors.New("live: transport timeout")

	// ErrNotConnected is returned by send operations when the session is not
	// in the Connected state.
	ErrNotConnected = errors.New("live: not connected")

	// ErrProtocolViolation marks a close the peer attributed to malformed or
	// unacceptable client traffic. Such sessions are never retried.
	ErrProtocolViolation = errors.New("live: protocol violation")

	// ErrReconnectExhausted is reported once the reconnection bound is used up.
	ErrReconnectExhausted = errors.New("live: reconnect attempts exhausted")

	// ErrClosed is returned by operations on a Manager after Close.
	ErrClosed = errors.New("live: manager closed")
)

// CloseError describes a transport close. Transports return it from Read once
// the connection has ended.
type CloseError struct {
	Reason CloseReason
	Code   int
	Text   string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("live: transport closed: %s (%d)", e.Reason, e.Code)
	}
	return fmt.Sprintf("live: transport closed: %s (%d): %s", e.Reason, e.Code, e.Text)
}

// Is reports ErrProtocolViolation for protocol-violation closes.
func (e *CloseError) Is(target error) bool {
	return target == ErrProtocolViolation && e.Reason == CloseProtocolViolation
}

// closeReasonOf extracts the close reason from a transport read error. Errors
// that carry no close frame are treated as an abnormal closure.
func closeReasonOf(err error) (CloseReason, int) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Reason, ce.Code
	}
	return CloseTimeout, CodeAbnormal
}
