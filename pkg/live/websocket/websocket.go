// Package websocket implements live.Dialer for the Gemini Live endpoint on
// top of github.com/coder/websocket.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/MrWong99/voxlink/pkg/live"
)

// Compile-time interface assertions.
var (
	_ live.Dialer = (*Dialer)(nil)
	_ live.Conn   = (*conn)(nil)
)

const (
	// DefaultBaseURL is the public Gemini Live WebSocket root.
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	endpointPath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// Model audio arrives as large base64 JSON messages.
	defaultReadLimit = 16 << 20

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// Option configures a [Dialer].
type Option func(*Dialer)

// WithBaseURL overrides the WebSocket root, e.g. to point at a local test
// server.
func WithBaseURL(u string) Option {
	return func(d *Dialer) {
		if u != "" {
			d.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient sets the client used for the upgrade request.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) { d.client = c }
}

// WithReadLimit sets the maximum inbound message size in bytes.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.readLimit = n
		}
	}
}

// WithKeepalive sets the ping interval. Zero disables pings.
func WithKeepalive(interval time.Duration) Option {
	return func(d *Dialer) { d.keepalive = interval }
}

// Dialer opens BidiGenerateContent WebSocket connections.
type Dialer struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	readLimit int64
	keepalive time.Duration
}

// New returns a Dialer authenticating with apiKey.
func New(apiKey string, opts ...Option) *Dialer {
	d := &Dialer{
		apiKey:    apiKey,
		baseURL:   DefaultBaseURL,
		readLimit: defaultReadLimit,
		keepalive: keepaliveInterval,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// URL returns the endpoint Dial connects to, key included.
func (d *Dialer) URL() string {
	return d.baseURL + endpointPath + "?key=" + url.QueryEscape(d.apiKey)
}

// Dial implements [live.Dialer].
func (d *Dialer) Dial(ctx context.Context) (live.Conn, error) {
	c, _, err := ws.Dial(ctx, d.URL(), &ws.DialOptions{
		HTTPClient: d.client,
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket: dial: %w", err)
	}
	c.SetReadLimit(d.readLimit)

	kctx, cancel := context.WithCancel(context.Background())
	wc := &conn{c: c, cancel: cancel}
	if d.keepalive > 0 {
		wc.wg.Add(1)
		go wc.keepaliveLoop(kctx, d.keepalive)
	}
	return wc, nil
}

type conn struct {
	c      *ws.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Read returns the next text or binary message. Once the connection ends the
// error wraps a *live.CloseError.
func (c *conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.c.Read(ctx)
	if err != nil {
		return nil, closeError(err)
	}
	return data, nil
}

func (c *conn) Write(ctx context.Context, msg []byte) error {
	return c.c.Write(ctx, ws.MessageText, msg)
}

func (c *conn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.c.Close(ws.StatusCode(code), reason)
		c.wg.Wait()
	})
	return err
}

// keepaliveLoop pings the peer so idle sessions are not dropped by proxies.
func (c *conn) keepaliveLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			_ = c.c.Ping(pctx)
			cancel()
		}
	}
}

// closeError maps a read error to a live.CloseError. Reads that end without
// a close frame are reported as abnormal closure.
func closeError(err error) error {
	code := int(ws.CloseStatus(err))
	text := ""
	var ce ws.CloseError
	if errors.As(err, &ce) {
		text = ce.Reason
	}
	if code < 0 {
		code = live.CodeAbnormal
		text = err.Error()
	}
	return fmt.Errorf("websocket: read: %w", &live.CloseError{
		Reason: live.CloseReasonFromCode(code),
		Code:   code,
		Text:   text,
	})
}
