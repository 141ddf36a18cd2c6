// Package mock provides a scriptable in-memory implementation of live.Dialer
// and live.Conn for unit tests.
//
// Each successful Dial creates a new [Conn]. Tests play the peer: they
// deliver server messages with [Conn.Deliver], close the connection with a
// code via [Conn.PeerClose], and inspect what the client wrote.
//
//	d := &mock.Dialer{}
//	m := live.New(d)
//	_ = m.Connect(ctx, cfg)
//	c := d.Conn(0)
//	c.DeliverJSON(map[string]any{"setupComplete": map[string]any{}})
//	c.PeerClose(1011, "boom")
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/pkg/live"
)

// Compile-time interface assertions.
var (
	_ live.Dialer = (*Dialer)(nil)
	_ live.Conn   = (*Conn)(nil)
)

// ErrConnClosed is returned by Write after either side closed.
var ErrConnClosed = errors.New("mock: connection closed")

// Dialer is a mock [live.Dialer]. Configure the exported fields before the
// first Dial.
type Dialer struct {
	mu sync.Mutex

	// Err, if non-nil, fails every Dial.
	Err error

	// Errs fails dials in order: entry i applies to dial i. A nil entry or a
	// dial beyond the slice falls back to Err.
	Errs []error

	// Delay holds each Dial for this long, or until ctx ends.
	Delay time.Duration

	// OnDial is called with the dial index and the new connection before
	// Dial returns, e.g. to queue a setupComplete.
	OnDial func(i int, c *Conn)

	dials int
	conns []*Conn
	ch    chan *Conn
}

// Dial implements [live.Dialer].
func (d *Dialer) Dial(ctx context.Context) (live.Conn, error) {
	d.mu.Lock()
	i := d.dials
	d.dials++
	delay := d.Delay
	err := d.Err
	if i < len(d.Errs) && d.Errs[i] != nil {
		err = d.Errs[i]
	}
	onDial := d.OnDial
	d.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := NewConn()
	if onDial != nil {
		onDial(i, c)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	ch := d.chanLocked()
	d.mu.Unlock()
	select {
	case ch <- c:
	default:
	}
	return c, nil
}

func (d *Dialer) chanLocked() chan *Conn {
	if d.ch == nil {
		d.ch = make(chan *Conn, 64)
	}
	return d.ch
}

// Dials returns the number of Dial calls so far, failed ones included.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conn returns the i-th successfully dialed connection, or nil.
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// Next waits for the next successful dial.
func (d *Dialer) Next(timeout time.Duration) (*Conn, bool) {
	d.mu.Lock()
	ch := d.chanLocked()
	d.mu.Unlock()
	select {
	case c := <-ch:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Conn is a mock [live.Conn].
type Conn struct {
	inbox  chan []byte
	closed chan struct{}
	wrote  chan struct{}

	mu        sync.Mutex
	closeErr  error
	writes    [][]byte
	localCode int
	local     bool
}

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{
		inbox:  make(chan []byte, 256),
		closed: make(chan struct{}),
		wrote:  make(chan struct{}, 1),
	}
}

// Deliver queues msg as a server message.
func (c *Conn) Deliver(msg []byte) {
	c.inbox <- msg
}

// DeliverJSON marshals v and queues it.
func (c *Conn) DeliverJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Deliver(b)
	return nil
}

// PeerClose ends the connection from the server side with code. Messages
// already delivered are still read first.
func (c *Conn) PeerClose(code int, text string) {
	c.finish(&live.CloseError{Reason: live.CloseReasonFromCode(code), Code: code, Text: text})
}

// Drop ends the connection without a close frame.
func (c *Conn) Drop() {
	c.finish(errors.New("mock: connection reset"))
}

func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.closeErr = err
	close(c.closed)
}

// Read implements [live.Conn].
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	default:
	}
	select {
	case b := <-c.inbox:
		return b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.closeErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements [live.Conn].
func (c *Conn) Write(_ context.Context, msg []byte) error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return ErrConnClosed
	default:
	}
	c.writes = append(c.writes, append([]byte(nil), msg...))
	c.mu.Unlock()
	select {
	case c.wrote <- struct{}{}:
	default:
	}
	return nil
}

// Close implements [live.Conn].
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if !c.local {
		c.local = true
		c.localCode = code
	}
	c.mu.Unlock()
	c.finish(&live.CloseError{Reason: live.CloseReasonFromCode(code), Code: code, Text: reason})
	return nil
}

// Writes returns a copy of every message the client wrote.
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// WaitWrites waits until at least n messages were written.
func (c *Conn) WaitWrites(n int, timeout time.Duration) ([][]byte, bool) {
	deadline := time.After(timeout)
	for {
		if w := c.Writes(); len(w) >= n {
			return w, true
		}
		select {
		case <-c.wrote:
		case <-deadline:
			return c.Writes(), false
		}
	}
}

// LocalClose reports whether the client closed the connection and with which
// code.
func (c *Conn) LocalClose() (code int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localCode, c.local
}

// Done is closed once either side closed the connection.
func (c *Conn) Done() <-chan struct{} { return c.closed }
