package resend

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"

	"github.com/rickgao/robustws/internal/buffer"
	"github.com/rickgao/robustws/robust"
)

// Close codes BufferedResendConnection uses to fail the logical
// connection when the server's resume handshake misbehaves.
const (
	CodeHandshakeError = 3007
	CodeAckOutOfRange  = 3008
)

var (
	// ErrNilPayload is returned by Send for a nil payload.
	ErrNilPayload = errors.New("resend: payload must not be nil")

	ackPattern      = regexp.MustCompile(`^ACK ([0-9A-F]+)$`)
	continuePattern = regexp.MustCompile(`^CONTINUE ([0-9A-F]+)$`)
)

// BufferedResendConnection wraps a RobustConnection with at-least-once
// delivery: every outbound message is tagged with a monotonic id and
// kept until the server ACKs it, and the unacknowledged tail is
// replayed after a reconnect once the server completes a CONTINUE
// handshake.
type BufferedResendConnection struct {
	underlying *robust.RobustConnection
	buf        *buffer.MessageBuffer
	logger     *slog.Logger

	mu               sync.Mutex
	disconnected     bool
	awaitingContinue bool

	// Public callback slots, mirroring RobustConnection's. Assign
	// before calling Start.
	OnOpen       func()
	OnClose      func(robust.CloseEvent)
	OnError      func(error)
	OnMessage    func([]byte)
	OnDisconnect func()
	OnReconnect  func()
}

// Wrap builds a BufferedResendConnection around underlying, installing
// itself as the sole consumer of underlying's callback slots. Do not
// assign underlying's OnXxx fields directly after calling Wrap.
func Wrap(underlying *robust.RobustConnection, logger *slog.Logger) *BufferedResendConnection {
	if logger == nil {
		logger = slog.Default()
	}

	b := &BufferedResendConnection{
		underlying: underlying,
		buf:        buffer.New(),
		logger:     logger,
	}

	underlying.OnOpen = b.handleOpen
	underlying.OnClose = b.handleClose
	underlying.OnError = b.handleError
	underlying.OnMessage = b.handleMessage
	underlying.OnDisconnect = b.handleDisconnect
	underlying.OnReconnect = b.handleReconnect

	return b
}

// Start begins the initial connection attempt, delegating to the
// wrapped RobustConnection.
func (b *BufferedResendConnection) Start() { b.underlying.Start() }

// ReadyState returns the wrapped connection's logical readyState.
func (b *BufferedResendConnection) ReadyState() robust.ReadyState { return b.underlying.ReadyState() }

// URL returns the wrapped connection's base URL.
func (b *BufferedResendConnection) URL() string { return b.underlying.URL() }

// Protocol returns the wrapped connection's negotiated subprotocol.
func (b *BufferedResendConnection) Protocol() string { return b.underlying.Protocol() }

// Extensions returns the wrapped connection's negotiated extensions.
func (b *BufferedResendConnection) Extensions() []string { return b.underlying.Extensions() }

// RobustID returns the wrapped connection's robust ID.
func (b *BufferedResendConnection) RobustID() string { return b.underlying.RobustID() }

// Stats returns the wrapped connection's runtime counters.
func (b *BufferedResendConnection) Stats() robust.Stats { return b.underlying.Stats() }

// Close tears down the logical connection. No further resend activity
// occurs once it returns.
func (b *BufferedResendConnection) Close(code int, reason string) error {
	return b.underlying.Close(code, reason)
}

// Send tags data with the next buffer id and forwards the wire-format
// record to the underlying connection, unless a reconnect is in
// progress, in which case it stays buffered until the resume handshake
// replays it.
func (b *BufferedResendConnection) Send(data []byte) error {
	if data == nil {
		return ErrNilPayload
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	wire := b.buf.Write(string(data))
	if b.disconnected {
		return nil
	}
	return b.underlying.Send([]byte(wire))
}

func (b *BufferedResendConnection) handleOpen() {
	if b.OnOpen != nil {
		b.OnOpen()
	}
}

func (b *BufferedResendConnection) handleError(err error) {
	if b.OnError != nil {
		b.OnError(err)
	}
}

func (b *BufferedResendConnection) handleClose(evt robust.CloseEvent) {
	if b.OnClose != nil {
		b.OnClose(evt)
	}
}

func (b *BufferedResendConnection) handleDisconnect() {
	b.mu.Lock()
	b.disconnected = true
	b.mu.Unlock()

	if b.OnDisconnect != nil {
		b.OnDisconnect()
	}
}

func (b *BufferedResendConnection) handleReconnect() {
	b.mu.Lock()
	b.awaitingContinue = true
	b.mu.Unlock()

	if b.OnReconnect != nil {
		b.OnReconnect()
	}
}

// handleMessage intercepts ACK frames and the one-shot post-reconnect
// CONTINUE handshake before anything reaches the consumer's OnMessage.
func (b *BufferedResendConnection) handleMessage(data []byte) {
	b.mu.Lock()

	if b.awaitingContinue {
		b.awaitingContinue = false
		code, reason, failed := b.processContinueLocked(data)
		b.mu.Unlock()
		if failed {
			b.underlying.Close(code, reason)
		}
		return
	}

	if m := ackPattern.FindStringSubmatch(string(data)); m != nil {
		code, reason, failed := b.processAckLocked(m[1])
		b.mu.Unlock()
		if failed {
			b.underlying.Close(code, reason)
		}
		return
	}

	b.mu.Unlock()

	if b.OnMessage != nil {
		b.OnMessage(data)
	}
}

// processContinueLocked handles the server's resume handshake reply.
// b.mu must be held; it is not released here. Replayed sends happen
// while still holding the lock, so no new Send can interleave with the
// replay and reorder the wire.
func (b *BufferedResendConnection) processContinueLocked(data []byte) (code int, reason string, failed bool) {
	msg := string(data)
	m := continuePattern.FindStringSubmatch(msg)
	if m == nil {
		return CodeHandshakeError, fmt.Sprintf("RobustConnection handshake error: expected CONTINUE, got %q", msg), true
	}

	id, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return CodeHandshakeError, fmt.Sprintf("RobustConnection handshake error: bad id %q: %v", m[1], err), true
	}

	if _, err := b.buf.Discard(id); err != nil {
		return CodeHandshakeError, fmt.Sprintf("RobustConnection handshake error: %v", err), true
	}

	msgs, err := b.buf.GetMessagesFrom(id)
	if err != nil {
		return CodeHandshakeError, fmt.Sprintf("RobustConnection handshake error: %v", err), true
	}

	for _, wire := range msgs {
		if err := b.underlying.Send([]byte(wire)); err != nil {
			b.logger.Warn("resend failed", "error", err)
		}
	}

	b.disconnected = false
	return 0, "", false
}

// processAckLocked discards the acknowledged prefix of the buffer.
// b.mu must be held.
func (b *BufferedResendConnection) processAckLocked(hex string) (code int, reason string, failed bool) {
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return CodeAckOutOfRange, fmt.Sprintf("ACK parse error: %v", err), true
	}
	if _, err := b.buf.Discard(id); err != nil {
		return CodeAckOutOfRange, fmt.Sprintf("ACK out of range: %v", err), true
	}
	return 0, "", false
}
