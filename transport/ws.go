package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures a gorilla/websocket-backed Conn.
type WSConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MessageBuffer    int
	Header           http.Header
	Logger           *slog.Logger
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		MessageBuffer:    256,
	}
}

// NewFactory returns a Factory that dials real WebSocket servers with
// gorilla/websocket. opaque, if non-nil, must be an http.Header (or nil)
// of additional headers to send with the handshake — e.g. auth headers
// computed per attempt.
func NewFactory(cfg WSConfig) Factory {
	return func(ctx context.Context, url string, opaque any) (Conn, error) {
		header := http.Header{}
		for k, vs := range cfg.Header {
			for _, v := range vs {
				header.Add(k, v)
			}
		}
		if extra, ok := opaque.(http.Header); ok {
			for k, vs := range extra {
				for _, v := range vs {
					header.Add(k, v)
				}
			}
		}

		dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}

		protocol := ""
		if resp != nil {
			protocol = resp.Header.Get("Sec-WebSocket-Protocol")
		}

		return newWSConn(conn, url, protocol, cfg), nil
	}
}

// wsConn adapts *websocket.Conn to the Conn interface: ping/pong
// handling, write-deadline discipline, and a dedicated read-loop
// goroutine.
type wsConn struct {
	conn       *websocket.Conn
	url        string
	protocol   string
	cfg        WSConfig
	logger     *slog.Logger
	readyState atomic.Int32

	messages chan []byte
	opened   chan struct{}
	closedCh chan CloseEvent
	errors   chan error
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, url, protocol string, cfg WSConfig) *wsConn {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = DefaultWSConfig().MessageBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWSConfig().WriteTimeout
	}

	c := &wsConn{
		conn:     conn,
		url:      url,
		protocol: protocol,
		cfg:      cfg,
		logger:   logger,
		messages: make(chan []byte, cfg.MessageBuffer),
		opened:   make(chan struct{}, 1),
		closedCh: make(chan CloseEvent, 1),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.readyState.Store(int32(Open))
	c.opened <- struct{}{}

	go c.readLoop()
	if cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}
	return c
}

func (c *wsConn) ReadyState() ReadyState { return ReadyState(c.readyState.Load()) }
func (c *wsConn) URL() string            { return c.url }
func (c *wsConn) Protocol() string       { return c.protocol }
func (c *wsConn) Extensions() []string   { return nil }

func (c *wsConn) Send(data []byte) error {
	if c.ReadyState() != Open {
		return fmt.Errorf("transport: send on connection in state %s", c.ReadyState())
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.readyState.Store(int32(Closing))
		close(c.done)

		deadline := time.Now().Add(time.Second)
		closeErr = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.conn.Close()

		c.readyState.Store(int32(Closed))
		select {
		case c.closedCh <- CloseEvent{Code: code, Reason: reason, WasClean: true}:
		default:
		}
	})
	return closeErr
}

func (c *wsConn) Messages() <-chan []byte       { return c.messages }
func (c *wsConn) Opened() <-chan struct{}       { return c.opened }
func (c *wsConn) Closed() <-chan CloseEvent     { return c.closedCh }
func (c *wsConn) Errors() <-chan error          { return c.errors }

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			wasOpen := c.readyState.CompareAndSwap(int32(Open), int32(Closed))
			select {
			case <-c.done:
				// Close() already owns the terminal event.
			default:
				if wasOpen {
					code, reason, wasClean := classifyCloseError(err)
					select {
					case c.closedCh <- CloseEvent{Code: code, Reason: reason, WasClean: wasClean}:
					default:
					}
				}
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.ReadyState() != Open {
				return
			}
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// classifyCloseError turns a gorilla/websocket read error into a
// close code/reason/wasClean triple.
func classifyCloseError(err error) (code int, reason string, wasClean bool) {
	if ce, ok := err.(*websocket.CloseError); ok {
		clean := ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
		return ce.Code, ce.Text, clean
	}
	return websocket.CloseAbnormalClosure, err.Error(), false
}
