package robust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/robustws/internal/backoff"
	"github.com/rickgao/robustws/internal/robustid"
	"github.com/rickgao/robustws/transport"
)

// Re-exported so callers need not import the transport package for
// these shared vocabulary types.
type (
	ReadyState = transport.ReadyState
	CloseEvent = transport.CloseEvent
)

const (
	Connecting = transport.Connecting
	Open       = transport.Open
	Closing    = transport.Closing
	Closed     = transport.Closed
)

// DebugReconnectCode is the close code that forces a reconnect even on
// a clean close, for interactive reconnect testing.
const DebugReconnectCode = 4567

var (
	// ErrInvalidState is returned by Send when the connection cannot
	// accept writes in its current readyState.
	ErrInvalidState = errors.New("robust: invalid state for send")
)

// Config are the construction inputs for a RobustConnection.
type Config struct {
	// Timeout bounds how long reconnection is attempted after a drop.
	// Non-positive disables reconnection entirely.
	Timeout time.Duration

	// DialTimeout bounds a single dial attempt (including the initial
	// one-shot connect). Defaults to 10s.
	DialTimeout time.Duration

	// Factory constructs physical connections.
	Factory transport.Factory

	// URL is the base WebSocket URL; the robust ID is appended as a
	// query parameter on every attempt.
	URL string

	// Opaque is passed to Factory unchanged on every attempt.
	Opaque any

	// RobustID overrides the generated 18-character robust ID. Empty
	// means generate one.
	RobustID string

	Logger *slog.Logger
}

// Stats is a read-only snapshot of RobustConnection's runtime state,
// useful for periodic logging or health checks.
type Stats struct {
	State         ReadyState
	RobustID      string
	AttemptCount  int
	DisconnectCount int
	PendingSends  int
}

// RobustConnection is a logical WebSocket connection that survives the
// failure and replacement of its underlying physical connection. See
// the package doc for the New/Start split.
type RobustConnection struct {
	cfg      Config
	robustID string
	logger   *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu               sync.Mutex
	state            transport.ReadyState
	conn             transport.Conn
	connGeneration   uint64
	firstAttemptUsed bool
	attemptCount     int
	disconnectCount  int
	pending          [][]byte
	stayClosed       bool

	// Public callback slots. Assign before calling Start.
	OnOpen       func()
	OnClose      func(CloseEvent)
	OnError      func(error)
	OnMessage    func([]byte)
	OnDisconnect func()
	OnReconnect  func()
}

// New builds a RobustConnection in CONNECTING state. It does not dial
// anything until Start is called.
func New(cfg Config) *RobustConnection {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	robustID := cfg.RobustID
	if robustID == "" {
		robustID = robustid.New()
	}
	logger = logger.With("robust_id", robustID)

	ctx, cancel := context.WithCancel(context.Background())

	return &RobustConnection{
		cfg:        cfg,
		robustID:   robustID,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      transport.Connecting,
	}
}

// Start begins the initial connection attempt. Call it once, after
// assigning the event callbacks.
func (r *RobustConnection) Start() {
	go r.connectInitial()
}

// ReadyState returns the current logical readyState.
func (r *RobustConnection) ReadyState() transport.ReadyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// URL returns the base URL this connection was configured with.
func (r *RobustConnection) URL() string { return r.cfg.URL }

// Protocol returns the negotiated subprotocol of the current physical
// connection, or "" if none is bound.
func (r *RobustConnection) Protocol() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return ""
	}
	return r.conn.Protocol()
}

// Extensions returns the negotiated extensions of the current physical
// connection, or nil if none is bound.
func (r *RobustConnection) Extensions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.Extensions()
}

// RobustID returns the 18-character ID shared by every physical
// connection of this logical connection.
func (r *RobustConnection) RobustID() string { return r.robustID }

// Stats returns a snapshot of runtime counters.
func (r *RobustConnection) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		State:           r.state,
		RobustID:        r.robustID,
		AttemptCount:    r.attemptCount,
		DisconnectCount: r.disconnectCount,
		PendingSends:    len(r.pending),
	}
}

// Send forwards data over the current physical connection, or queues
// it if the logical connection is OPEN but mid-reconnect.
func (r *RobustConnection) Send(data []byte) error {
	r.mu.Lock()
	switch r.state {
	case transport.Connecting, transport.Closing, transport.Closed:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, r.state)
	}

	conn := r.conn
	if conn == nil {
		r.pending = append(r.pending, data)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return conn.Send(data)
}

// Close tears down the logical connection. Once it returns nil, no
// further reconnection is ever attempted (spec's "stay-closed" flag). If
// the physical connection rejects the close, the flag is reverted, the
// readyState goes back to OPEN, and the error is returned.
func (r *RobustConnection) Close(code int, reason string) error {
	reason = sanitizeReason(reason)

	r.mu.Lock()
	if r.state == transport.Closed {
		r.mu.Unlock()
		return nil
	}

	conn := r.conn
	prevStayClosed := r.stayClosed
	r.stayClosed = true

	if conn == nil {
		r.state = transport.Closed
		r.mu.Unlock()
		r.baseCancel()
		r.fireClose(CloseEvent{Code: code, Reason: reason, WasClean: false})
		return nil
	}

	r.state = transport.Closing
	r.mu.Unlock()

	if err := conn.Close(code, reason); err != nil {
		r.mu.Lock()
		r.stayClosed = prevStayClosed
		r.state = transport.Open
		r.mu.Unlock()
		return err
	}

	r.baseCancel()
	return nil
}

// connectInitial performs the one-shot initial connect: deadline 0, no
// retry.
func (r *RobustConnection) connectInitial() {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.cfg.DialTimeout)
	defer cancel()

	conn, err := backoff.Retry(ctx, backoff.DefaultPolicy(), 0, func(ctx context.Context) (transport.Conn, error) {
		return r.dialAttempt(ctx)
	})
	if err != nil {
		r.failTerminal(err, true)
		return
	}

	r.adopt(conn, false)
}

// startReconnect runs the backoff-bounded reconnect loop after a
// non-clean (or debug-forced) drop.
func (r *RobustConnection) startReconnect() {
	r.mu.Lock()
	timeout := r.cfg.Timeout
	r.mu.Unlock()

	if timeout <= 0 {
		r.failTerminal(errors.New("robust: reconnect disabled"), false)
		return
	}

	ctx, cancel := context.WithTimeout(r.baseCtx, timeout)
	defer cancel()

	conn, err := backoff.Retry(ctx, backoff.DefaultPolicy(), timeout, func(ctx context.Context) (transport.Conn, error) {
		return r.dialAttempt(ctx)
	})
	if err != nil {
		r.failTerminal(err, false)
		return
	}

	r.adopt(conn, true)
}

// dialAttempt builds the per-attempt URL, dials via the factory, and
// awaits OPEN.
func (r *RobustConnection) dialAttempt(ctx context.Context) (transport.Conn, error) {
	r.mu.Lock()
	first := !r.firstAttemptUsed
	r.firstAttemptUsed = true
	r.attemptCount++
	r.mu.Unlock()

	u, err := attemptURL(r.cfg.URL, r.robustID, first)
	if err != nil {
		return nil, fmt.Errorf("robust: build attempt url: %w", err)
	}

	attemptID := uuid.NewString()
	logger := r.logger.With("attempt_id", attemptID, "url", u, "first", first)
	logger.Debug("dialing physical connection")

	conn, err := r.cfg.Factory(ctx, u, r.cfg.Opaque)
	if err != nil {
		logger.Warn("dial failed", "error", err)
		return nil, err
	}

	if err := awaitOpen(ctx, conn); err != nil {
		logger.Warn("connection closed before open", "error", err)
		conn.Close(1006, "")
		return nil, err
	}

	logger.Debug("physical connection open")
	return conn, nil
}

// awaitOpen waits for conn to reach OPEN, handling a connection that
// is already open by the time the caller starts waiting on it.
func awaitOpen(ctx context.Context, conn transport.Conn) error {
	if conn.ReadyState() == transport.Open {
		select {
		case <-conn.Opened():
		default:
		}
		return nil
	}

	select {
	case <-conn.Opened():
		return nil
	case evt := <-conn.Closed():
		return fmt.Errorf("transport: closed before open: code=%d reason=%q", evt.Code, evt.Reason)
	case err := <-conn.Errors():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// adopt binds a freshly opened physical connection. It refuses to
// adopt (closing conn immediately instead) if the logical connection
// reached CLOSED while the dial was in flight.
func (r *RobustConnection) adopt(conn transport.Conn, isReconnect bool) bool {
	r.mu.Lock()
	if r.state == transport.Closed {
		r.mu.Unlock()
		conn.Close(1000, "")
		return false
	}

	r.connGeneration++
	gen := r.connGeneration
	r.conn = conn
	r.state = transport.Open
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, data := range pending {
		if err := conn.Send(data); err != nil {
			r.logger.Warn("failed to drain pending send on adoption", "error", err)
		}
	}

	// Fire open/reconnect before starting the pump so a consumer's
	// reconnect handler (e.g. arming a one-shot handshake expectation)
	// is guaranteed to run before any inbound frame from the new
	// connection can be dispatched.
	if isReconnect {
		r.fireReconnect()
	} else {
		r.fireOpen()
	}

	go r.pump(conn, gen)
	return true
}

// pump forwards one physical connection's events until it closes. gen
// is the adoption generation, used to ignore events from a connection
// that adopt() has already superseded or discarded.
func (r *RobustConnection) pump(conn transport.Conn, gen uint64) {
	for {
		select {
		case data, ok := <-conn.Messages():
			if !ok {
				return
			}
			r.fireMessage(data)

		case evt := <-conn.Closed():
			r.handleClose(evt, gen)
			return

		case err := <-conn.Errors():
			r.logger.Debug("transport error", "error", err)
		}
	}
}

// handleClose processes a physical connection's terminal close event.
func (r *RobustConnection) handleClose(evt CloseEvent, gen uint64) {
	r.mu.Lock()
	if gen != r.connGeneration {
		r.mu.Unlock()
		return
	}
	r.conn = nil

	stayClosed := r.stayClosed
	cleanly := evt.WasClean && evt.Code != DebugReconnectCode

	if stayClosed || cleanly {
		r.state = transport.Closed
		r.mu.Unlock()
		r.fireClose(evt)
		return
	}

	r.disconnectCount++
	r.mu.Unlock()

	r.fireDisconnect()
	r.startReconnect()
}

// failTerminal finalizes the logical connection to CLOSED with a
// synthetic 1006 close, after retry exhaustion or a disabled-reconnect
// drop. emitError fires OnError first, but only for the initial
// connect's failure.
func (r *RobustConnection) failTerminal(err error, emitError bool) {
	r.mu.Lock()
	if r.state == transport.Closed {
		r.mu.Unlock()
		return
	}
	r.state = transport.Closed
	r.mu.Unlock()

	if emitError {
		r.fireError(err)
	}
	r.fireClose(CloseEvent{Code: 1006, Reason: "", WasClean: false})
}

func (r *RobustConnection) fireOpen() {
	if r.OnOpen != nil {
		r.OnOpen()
	}
}

func (r *RobustConnection) fireClose(evt CloseEvent) {
	if r.OnClose != nil {
		r.OnClose(evt)
	}
}

func (r *RobustConnection) fireError(err error) {
	if r.OnError != nil {
		r.OnError(err)
	}
}

func (r *RobustConnection) fireMessage(data []byte) {
	if r.OnMessage != nil {
		r.OnMessage(data)
	}
}

func (r *RobustConnection) fireDisconnect() {
	if r.OnDisconnect != nil {
		r.OnDisconnect()
	}
}

func (r *RobustConnection) fireReconnect() {
	if r.OnReconnect != nil {
		r.OnReconnect()
	}
}
