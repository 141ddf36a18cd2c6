// Package live manages a duplex audio session with the Gemini Live
// BidiGenerateContent service.
//
// A [Manager] owns at most one transport connection at a time and drives it
// through Disconnected → Connecting → Connected. All session state lives on a
// single control goroutine: caller commands, dial results, inbound messages
// and timer firings are queued to it and handled one at a time, so no two
// transitions ever interleave.
//
// Inbound messages are classified strictly in arrival order. Decoded model
// audio goes to the configured [Sink]; everything else, together with
// lifecycle notifications, is published on [Manager.Events].
//
// Transient closes are retried with a fixed delay, bounded per logical
// session. Closes that arrive within a short protection window after a caller
// Connect are treated as start-up noise: the transport is re-opened at once
// with the same configuration snapshot. Those reopens share the reconnect
// budget, and a protocol-violation close is fatal even inside the window.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/pkg/codec"
)

const (
	DefaultModel            = "gemini-2.0-flash-live-001"
	DefaultDialTimeout      = 30 * time.Second
	DefaultProtectionWindow = 3 * time.Second
	DefaultReadyFallback    = 2 * time.Second
	DefaultRetryInternal    = 3 * time.Second
	DefaultRetryTransient   = 2 * time.Second
	DefaultMaxReconnects    = 3
)

// Option configures a [Manager].
type Option func(*Manager)

// WithModel sets the model named in the setup message.
func WithModel(model string) Option {
	return func(m *Manager) {
		if model != "" {
			m.model = model
		}
	}
}

// WithSink routes decoded model audio to s.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithMetrics records session telemetry on mt.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithLogger sets the base logger. The session ID is attached to every line.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithDialTimeout bounds transport open plus setup delivery.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// WithProtectionWindow sets how long after a caller Connect closes and
// disconnects are suppressed.
func WithProtectionWindow(d time.Duration) Option {
	return func(m *Manager) { m.protection = d }
}

// WithReadyFallback sets how long after Connected the Ready event is emitted
// if the connection has delivered no message at all by then.
func WithReadyFallback(d time.Duration) Option {
	return func(m *Manager) { m.readyFallback = d }
}

// WithRetryDelays sets the reconnect delay after a peer internal error and
// after any other transient close.
func WithRetryDelays(internal, transient time.Duration) Option {
	return func(m *Manager) {
		m.retryInternal = internal
		m.retryTransient = transient
	}
}

// WithMaxReconnects bounds reconnect attempts per logical session.
func WithMaxReconnects(n uint8) Option {
	return func(m *Manager) { m.maxReconnects = n }
}

// Manager is the session state machine. All exported methods are safe for
// concurrent use.
type Manager struct {
	dialer  Dialer
	model   string
	sink    Sink
	metrics Metrics
	log     *slog.Logger
	id      uuid.UUID

	dialTimeout    time.Duration
	protection     time.Duration
	readyFallback  time.Duration
	retryInternal  time.Duration
	retryTransient time.Duration
	maxReconnects  uint8

	inbox  chan any
	events *pump
	done   chan struct{} // closed when the control goroutine exits

	// Published by the control goroutine for lock-free reads by senders.
	status atomic.Int32
	active atomic.Pointer[connection]
}

// New creates a Disconnected manager and starts its control goroutine. Call
// [Manager.Close] to release it.
func New(d Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:         d,
		model:          DefaultModel,
		sink:           nopSink{},
		metrics:        nopMetrics{},
		log:            slog.Default(),
		id:             uuid.New(),
		dialTimeout:    DefaultDialTimeout,
		protection:     DefaultProtectionWindow,
		readyFallback:  DefaultReadyFallback,
		retryInternal:  DefaultRetryInternal,
		retryTransient: DefaultRetryTransient,
		maxReconnects:  DefaultMaxReconnects,
		inbox:          make(chan any, 64),
		events:         newPump(),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("session_id", m.id.String())
	go m.loop()
	return m
}

// ID returns the session identity. It stays the same across connects.
func (m *Manager) ID() string { return m.id.String() }

// Status returns the current connection state.
func (m *Manager) Status() Status { return Status(m.status.Load()) }

// Events returns the session event stream. Events are delivered in the order
// they occurred; the stream never blocks the session. It is closed by
// [Manager.Close].
func (m *Manager) Events() <-chan Event { return m.events.out }

// Connect opens a session with a snapshot of cfg. It is a no-op returning nil
// unless the manager is Disconnected. Connect blocks until the transport is
// open and setup has been sent, or the attempt failed.
//
// Errors wrap [ErrConfigInvalid] or [ErrTransportTimeout], or describe the
// dial failure. If ctx ends first, Connect returns ctx.Err() and the attempt
// keeps running.
func (m *Manager) Connect(ctx context.Context, cfg SessionConfig) error {
	snap, err := cfg.Validate()
	if err != nil {
		m.log.Warn("connect rejected", "err", err)
		m.emit(Event{Kind: EventError, ErrorKind: ErrorConfigInvalid, Err: err})
		return err
	}
	reply := make(chan error, 1)
	if !m.post(connectCmd{ctx: ctx, cfg: snap, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Disconnect closes the session with a normal close. It is a no-op inside the
// protection window and on a Disconnected manager. While a dial is in flight
// the disconnect is applied once the dial settles.
func (m *Manager) Disconnect() error {
	reply := make(chan error, 1)
	if !m.post(disconnectCmd{reply: reply, why: "client disconnect"}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrClosed
	}
}

// Close tears the session down regardless of the protection window, stops
// the control goroutine and closes the event stream. Close is idempotent.
func (m *Manager) Close() error {
	reply := make(chan error, 1)
	if m.post(closeCmd{reply: reply}) {
		select {
		case <-reply:
		case <-m.done:
		}
	}
	<-m.done
	m.events.close()
	return nil
}

// Send delivers a client content turn. Text is sanitized and inline payloads
// are normalized before they are written.
func (m *Manager) Send(ctx context.Context, parts []Part, turnComplete bool) error {
	c, err := m.connected()
	if err != nil {
		return err
	}
	wp, err := toWireParts(parts)
	if err != nil {
		return err
	}
	turns := []wireContent{}
	if len(wp) > 0 {
		turns = append(turns, wireContent{Role: "user", Parts: wp})
	}
	return m.write(ctx, c, clientContentMessage{
		ClientContent: clientContent{Turns: turns, TurnComplete: turnComplete},
	})
}

// SendText is Send with a single text part.
func (m *Manager) SendText(ctx context.Context, text string, turnComplete bool) error {
	return m.Send(ctx, []Part{{Text: text}}, turnComplete)
}

// SendRealtimeInput writes media chunks directly to the transport. Nothing is
// buffered while the session is not Connected.
func (m *Manager) SendRealtimeInput(ctx context.Context, chunks []MediaChunk) error {
	c, err := m.connected()
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	wire := make([]wireInlineData, len(chunks))
	for i, ch := range chunks {
		data, err := codec.Normalize(string(ch.Data))
		if err != nil {
			return fmt.Errorf("live: media chunk %d: %w", i, err)
		}
		mime := ch.MIMEType
		if mime == "" {
			mime = codec.MIMEType(16000)
		}
		wire[i] = wireInlineData{MIMEType: mime, Data: string(data)}
	}
	if err := m.write(ctx, c, realtimeInputMessage{RealtimeInput: realtimeInput{MediaChunks: wire}}); err != nil {
		return err
	}
	m.metrics.RecordFramesSent(ctx, len(chunks))
	return nil
}

// SendToolResponse answers tool calls.
func (m *Manager) SendToolResponse(ctx context.Context, responses []FunctionResponse) error {
	c, err := m.connected()
	if err != nil {
		return err
	}
	fr := make([]functionResponse, len(responses))
	for i, r := range responses {
		resp := r.Response
		if resp == nil {
			resp = map[string]any{}
		}
		fr[i] = functionResponse{ID: r.ID, Name: r.Name, Response: resp}
	}
	return m.write(ctx, c, toolResponseMessage{ToolResponse: toolResponse{FunctionResponses: fr}})
}

func (m *Manager) connected() (*connection, error) {
	c := m.active.Load()
	if c == nil || m.Status() != Connected {
		return nil, ErrNotConnected
	}
	return c, nil
}

func (m *Manager) write(ctx context.Context, c *connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("live: marshal: %w", err)
	}
	if err := c.Write(ctx, data); err != nil {
		return fmt.Errorf("live: write: %w", err)
	}
	return nil
}

// post queues msg for the control goroutine. It returns false once the
// manager has shut down.
func (m *Manager) post(msg any) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) emit(e Event) {
	e.Time = time.Now()
	m.events.push(e)
}

func (m *Manager) emitLog(level slog.Level, text string) {
	m.emit(Event{Kind: EventLog, Level: level, Text: text})
}

// ── control goroutine ─────────────────────────────────────────────────────────

type connectCmd struct {
	ctx   context.Context
	cfg   SessionConfig
	reply chan error
}

type disconnectCmd struct {
	reply chan error // nil for internally initiated disconnects
	why   string
}

type closeCmd struct{ reply chan error }

type dialResult struct {
	gen  uint64
	conn Conn
	err  error
}

type inbound struct {
	gen  uint64
	data []byte
}

type readEnded struct {
	gen uint64
	err error
}

type readyDue struct{ gen uint64 }

type retryDue struct{ gen uint64 }

// connection is one open transport.
type connection struct {
	Conn
	gen    uint64
	cancel context.CancelFunc // stops the reader
}

// state is owned by the control goroutine.
type state struct {
	status Status
	cfg    SessionConfig // snapshot from the last caller Connect
	conn   *connection

	gen        uint64 // bumped per dial and per scheduled retry; stale messages are dropped
	dialing    bool
	callerDial bool // the in-flight dial came from Connect
	dialStart  time.Time
	reply      chan error // Connect waiting for the dial

	protectUntil time.Time
	attempts     uint8
	lastReason   CloseReason
	readyEmitted bool // a Ready went out in this logical session
	ready        bool // single-fire latch, reset per connection
	inboundSeen  bool // the current connection delivered at least one message

	readyTimer *time.Timer
	retryTimer *time.Timer

	pendingDisconnect []chan error
}

func (m *Manager) loop() {
	defer func() {
		close(m.done)
		m.drain()
	}()
	st := &state{}
	for msg := range m.inbox {
		switch msg := msg.(type) {
		case connectCmd:
			m.handleConnect(st, msg)
		case disconnectCmd:
			m.handleDisconnect(st, msg)
		case dialResult:
			m.handleDialResult(st, msg)
		case inbound:
			m.handleInbound(st, msg)
		case readEnded:
			m.handleReadEnded(st, msg)
		case readyDue:
			if st.conn != nil && st.conn.gen == msg.gen && !st.inboundSeen {
				m.fireReady(st, true)
			}
		case retryDue:
			if msg.gen == st.gen && st.status == Connecting && !st.dialing {
				m.dial(st, context.Background())
			}
		case closeCmd:
			m.shutdown(st)
			msg.reply <- nil
			return
		}
	}
}

func (m *Manager) setStatus(st *state, s Status) {
	if st.status == s {
		return
	}
	m.log.Debug("session status", "from", st.status, "to", s)
	st.status = s
	m.status.Store(int32(s))
	if s == Disconnected {
		st.protectUntil = time.Time{}
		st.dialing = false
		if st.retryTimer != nil {
			st.retryTimer.Stop()
			st.retryTimer = nil
		}
	}
}

func (m *Manager) handleConnect(st *state, cmd connectCmd) {
	if st.status != Disconnected {
		m.log.Info("connect ignored", "status", st.status)
		m.emitLog(slog.LevelInfo, "connect ignored: session is "+st.status.String())
		cmd.reply <- nil
		return
	}
	st.cfg = cmd.cfg
	st.callerDial = true
	st.readyEmitted = false
	st.reply = cmd.reply
	m.setStatus(st, Connecting)
	m.log.Info("session connecting", "model", m.model, "modalities", st.cfg.Modalities)
	m.dial(st, cmd.ctx)
}

// dial opens a transport in the background and sends setup on it before the
// result is reported, so setup is always the first message on the wire.
func (m *Manager) dial(st *state, parent context.Context) {
	st.gen++
	gen := st.gen
	st.dialing = true
	st.dialStart = time.Now()
	cfg := st.cfg

	go func() {
		ctx, cancel := context.WithTimeout(parent, m.dialTimeout)
		defer cancel()
		conn, err := m.open(ctx, cfg)
		posted := m.post(dialResult{gen: gen, conn: conn, err: err})
		if conn == nil {
			return
		}
		if !posted {
			_ = conn.Close(CodeNormal, "session closed")
			return
		}
		// The result may have landed in the inbox after the loop exited.
		select {
		case <-m.done:
			_ = conn.Close(CodeNormal, "session closed")
		default:
		}
	}()
}

// drain runs once the control goroutine has stopped and closes transports
// whose dial results were queued but never handled.
func (m *Manager) drain() {
	for {
		select {
		case msg := <-m.inbox:
			if r, ok := msg.(dialResult); ok && r.conn != nil {
				_ = r.conn.Close(CodeNormal, "session closed")
			}
		default:
			return
		}
	}
}

func (m *Manager) open(ctx context.Context, cfg SessionConfig) (Conn, error) {
	payload, err := json.Marshal(buildSetup(m.model, cfg))
	if err != nil {
		return nil, fmt.Errorf("live: marshal setup: %w", err)
	}
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, timeoutErr(ctx, fmt.Errorf("live: dial: %w", err))
	}
	if err := conn.Write(ctx, payload); err != nil {
		_ = conn.Close(CodeInternalError, "setup failed")
		return nil, timeoutErr(ctx, fmt.Errorf("live: send setup: %w", err))
	}
	return conn, nil
}

func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return err
}

func (m *Manager) handleDialResult(st *state, r dialResult) {
	if r.gen != st.gen || !st.dialing {
		if r.conn != nil {
			_ = r.conn.Close(CodeNormal, "superseded")
		}
		return
	}
	st.dialing = false
	resumed := !st.callerDial
	latency := time.Since(st.dialStart)
	m.metrics.RecordConnect(context.Background(), latency, resumed, r.err)

	if r.err != nil {
		m.dialFailed(st, r.err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{Conn: r.conn, gen: r.gen, cancel: cancel}
	st.conn = c
	st.ready = false
	st.inboundSeen = false
	m.active.Store(c)
	m.setStatus(st, Connected)
	m.metrics.RecordActive(context.Background(), 1)
	go m.read(ctx, c)

	gen := c.gen
	st.readyTimer = time.AfterFunc(m.readyFallback, func() { m.post(readyDue{gen: gen}) })

	if st.callerDial {
		st.callerDial = false
		st.attempts = 0
		st.protectUntil = time.Now().Add(m.protection)
		m.reply(st, nil)
	} else {
		m.sink.Flush()
	}
	m.log.Info("session connected", "latency", latency, "resumed", resumed)
	m.emitLog(slog.LevelInfo, "session connected")

	if len(st.pendingDisconnect) > 0 {
		// A disconnect issued while the dial was in flight wins over the
		// protection window that just opened.
		m.teardown(st, "deferred client disconnect")
	}
}

func (m *Manager) dialFailed(st *state, err error) {
	kind := ErrorTransport
	if errors.Is(err, ErrTransportTimeout) {
		kind = ErrorTimeout
	}

	if st.callerDial {
		st.callerDial = false
		m.setStatus(st, Disconnected)
		m.log.Warn("session connect failed", "err", err)
		m.emit(Event{Kind: EventError, ErrorKind: kind, Err: err})
		m.reply(st, err)
		m.releaseDisconnects(st)
		return
	}

	m.log.Warn("session reconnect failed", "err", err, "attempts", st.attempts)
	if len(st.pendingDisconnect) > 0 {
		m.setStatus(st, Disconnected)
		m.emit(Event{Kind: EventClosed, Reason: CloseNormal, Code: CodeNormal})
		m.releaseDisconnects(st)
		return
	}
	m.retry(st, st.lastReason, err)
}

func (m *Manager) reply(st *state, err error) {
	if st.reply != nil {
		st.reply <- err
		st.reply = nil
	}
}

func (m *Manager) releaseDisconnects(st *state) {
	for _, r := range st.pendingDisconnect {
		r <- nil
	}
	st.pendingDisconnect = nil
}

// read forwards every inbound message to the control goroutine in arrival
// order until the transport ends.
func (m *Manager) read(ctx context.Context, c *connection) {
	for {
		data, err := c.Read(ctx)
		if err != nil {
			m.post(readEnded{gen: c.gen, err: err})
			return
		}
		if !m.post(inbound{gen: c.gen, data: data}) {
			return
		}
	}
}

// dropConn forgets the current connection without closing it.
func (m *Manager) dropConn(st *state) {
	if st.readyTimer != nil {
		st.readyTimer.Stop()
		st.readyTimer = nil
	}
	m.active.Store(nil)
	st.conn = nil
	m.metrics.RecordActive(context.Background(), -1)
}

func (m *Manager) handleReadEnded(st *state, r readEnded) {
	if st.conn == nil || st.conn.gen != r.gen {
		return
	}
	c := st.conn
	m.dropConn(st)
	c.cancel()

	reason, code := closeReasonOf(r.err)
	st.lastReason = reason
	m.metrics.RecordClose(context.Background(), reason)
	m.log.Info("transport closed", "reason", reason, "code", code, "err", r.err)

	// A rejected session stays rejected; the window does not apply.
	if reason == CloseProtocolViolation {
		m.setStatus(st, Disconnected)
		m.fatal(ErrorProtocolViolation, fmt.Errorf("live: peer rejected session: %w", r.err))
		m.emit(Event{Kind: EventClosed, Reason: reason, Code: code})
		return
	}

	if time.Now().Before(st.protectUntil) {
		if st.attempts >= m.maxReconnects {
			m.retry(st, reason, r.err)
			return
		}
		st.attempts++
		m.metrics.RecordReconnectAttempt(context.Background(), reason)
		m.log.Info("close suppressed inside protection window, reopening",
			"reason", reason, "attempt", st.attempts, "max", m.maxReconnects)
		m.emitLog(slog.LevelInfo, "transport closed during start-up; reopening")
		m.setStatus(st, Connecting)
		m.dial(st, context.Background())
		return
	}

	switch reason {
	case CloseNormal:
		m.setStatus(st, Disconnected)
		m.emitLog(slog.LevelInfo, "session closed by peer")
		m.emit(Event{Kind: EventClosed, Reason: reason, Code: code})
	default:
		m.retry(st, reason, r.err)
	}
}

// retry schedules a reconnect unless the session's attempts are used up.
func (m *Manager) retry(st *state, reason CloseReason, cause error) {
	if st.attempts >= m.maxReconnects {
		m.setStatus(st, Disconnected)
		m.fatal(ErrorReconnectExhausted,
			fmt.Errorf("%w (%d attempts): %w", ErrReconnectExhausted, st.attempts, cause))
		m.emit(Event{Kind: EventClosed, Reason: reason, Code: codeOf(cause)})
		return
	}
	st.attempts++
	delay := m.retryTransient
	if reason == ClosePeerInternalError {
		delay = m.retryInternal
	}
	m.setStatus(st, Connecting)

	st.gen++
	gen := st.gen
	st.retryTimer = time.AfterFunc(delay, func() { m.post(retryDue{gen: gen}) })

	m.metrics.RecordReconnectAttempt(context.Background(), reason)
	m.log.Info("session reconnect scheduled",
		"reason", reason, "delay", delay, "attempt", st.attempts, "max", m.maxReconnects)
	m.emitLog(slog.LevelWarn, fmt.Sprintf("reconnecting in %s (attempt %d of %d)", delay, st.attempts, m.maxReconnects))
}

func codeOf(err error) int {
	_, code := closeReasonOf(err)
	return code
}

func (m *Manager) fatal(kind ErrorKind, err error) {
	m.metrics.RecordFatal(context.Background(), kind)
	m.log.Error("session failed", "kind", kind, "err", err)
	m.emit(Event{Kind: EventError, ErrorKind: kind, Err: err})
}

func (m *Manager) handleDisconnect(st *state, cmd disconnectCmd) {
	done := func() {
		if cmd.reply != nil {
			cmd.reply <- nil
		}
	}
	switch {
	case st.status == Disconnected:
		done()
	case time.Now().Before(st.protectUntil):
		m.log.Info("disconnect ignored inside protection window", "why", cmd.why)
		m.emitLog(slog.LevelInfo, "disconnect ignored during start-up")
		done()
	case st.dialing:
		m.log.Info("disconnect deferred until dial settles", "why", cmd.why)
		if cmd.reply != nil {
			st.pendingDisconnect = append(st.pendingDisconnect, cmd.reply)
		} else {
			st.pendingDisconnect = append(st.pendingDisconnect, make(chan error, 1))
		}
	default:
		m.teardown(st, cmd.why)
		done()
	}
}

// teardown closes the transport normally and ends the session.
func (m *Manager) teardown(st *state, why string) {
	st.gen++
	if st.conn != nil {
		c := st.conn
		m.dropConn(st)
		go func() {
			_ = c.Close(CodeNormal, why)
			c.cancel()
		}()
	}
	m.setStatus(st, Disconnected)
	m.metrics.RecordClose(context.Background(), CloseNormal)
	m.log.Info("session disconnected", "why", why)
	m.emitLog(slog.LevelInfo, "session disconnected: "+why)
	m.emit(Event{Kind: EventClosed, Reason: CloseNormal, Code: CodeNormal})
	m.releaseDisconnects(st)
}

func (m *Manager) shutdown(st *state) {
	if st.status != Disconnected {
		m.teardown(st, "manager closed")
	}
	m.reply(st, ErrClosed)
	m.releaseDisconnects(st)
}

func (m *Manager) fireReady(st *state, fallback bool) {
	if st.ready {
		return
	}
	st.ready = true
	if st.readyTimer != nil {
		st.readyTimer.Stop()
		st.readyTimer = nil
	}
	// Resumed only once a Ready already went out in this session.
	resumed := st.readyEmitted
	st.readyEmitted = true
	m.log.Info("session ready", "resumed", resumed, "fallback", fallback)
	m.emit(Event{Kind: EventReady, Resumed: resumed, Fallback: fallback})
}

// ── inbound classification ────────────────────────────────────────────────────

func (m *Manager) handleInbound(st *state, in inbound) {
	if st.conn == nil || st.conn.gen != in.gen {
		return
	}
	st.inboundSeen = true
	var msg serverMessage
	if err := json.Unmarshal(in.data, &msg); err != nil {
		m.log.Warn("dropping malformed server message", "err", err, "bytes", len(in.data))
		m.metrics.RecordFrameDropped(context.Background())
		return
	}
	if !msg.known() {
		m.log.Debug("ignoring unknown server message", "bytes", len(in.data))
		return
	}

	if msg.SetupComplete != nil {
		m.fireReady(st, false)
	}
	if msg.ServerContent != nil {
		m.handleContent(msg.ServerContent)
	}
	if msg.ToolCall != nil {
		calls := make([]FunctionCall, len(msg.ToolCall.FunctionCalls))
		for i, fc := range msg.ToolCall.FunctionCalls {
			calls[i] = FunctionCall{ID: fc.ID, Name: fc.Name, Args: []byte(fc.Args)}
		}
		m.emit(Event{Kind: EventToolCall, ToolCalls: calls})
	}
	if msg.ToolCallCancellation != nil {
		m.emit(Event{Kind: EventToolCallCancellation, CancelledIDs: msg.ToolCallCancellation.IDs})
	}
	if msg.Error != nil {
		err := fmt.Errorf("live: peer error %d %s: %s", msg.Error.Code, msg.Error.Status, msg.Error.Message)
		m.log.Warn("peer reported error", "code", msg.Error.Code, "status", msg.Error.Status, "message", msg.Error.Message)
		m.emit(Event{Kind: EventError, ErrorKind: ErrorPeer, Err: err})
	}
	if msg.GoAway != nil {
		m.log.Info("peer announced termination", "time_left", msg.GoAway.TimeLeft)
		m.handleDisconnect(st, disconnectCmd{why: "peer going away"})
	}
}

func (m *Manager) handleContent(sc *serverContent) {
	if sc.ModelTurn != nil {
		var parts []Part
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				pcm, err := codec.Decode(codec.WireFrame(p.InlineData.Data))
				if err != nil {
					m.log.Warn("dropping corrupt audio frame", "err", err)
					m.metrics.RecordFrameDropped(context.Background())
					continue
				}
				if len(pcm) == 0 {
					continue
				}
				m.sink.Enqueue(pcm)
				m.emit(Event{Kind: EventAudioChunk, Audio: pcm})
				continue
			}
			parts = append(parts, fromWirePart(p))
		}
		if len(parts) > 0 {
			m.emit(Event{Kind: EventContent, Parts: parts})
		}
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		m.emit(Event{Kind: EventTranscript, Source: TranscriptInput, Text: t.Text})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		m.emit(Event{Kind: EventTranscript, Source: TranscriptOutput, Text: t.Text})
	}
	if sc.Interrupted {
		m.sink.Flush()
		m.metrics.RecordInterruption(context.Background())
		m.emit(Event{Kind: EventInterrupted})
	}
	if sc.TurnComplete {
		m.emit(Event{Kind: EventTurnComplete})
	}
}
