package transport

import (
	"sync"
	"sync/atomic"
)

// MockConn is an in-process, channel-backed Conn for unit tests, no
// real socket involved.
type MockConn struct {
	url        string
	protocol   string
	readyState atomic.Int32

	messages chan []byte
	opened   chan struct{}
	closedCh chan CloseEvent
	errors   chan error

	mu        sync.Mutex
	sent      [][]byte
	closeOnce sync.Once
	closed    bool
}

// NewMockConn returns a MockConn already in OPEN state.
func NewMockConn(url string) *MockConn {
	c := &MockConn{
		url:      url,
		messages: make(chan []byte, 256),
		opened:   make(chan struct{}, 1),
		closedCh: make(chan CloseEvent, 1),
		errors:   make(chan error, 1),
	}
	c.readyState.Store(int32(Open))
	c.opened <- struct{}{}
	return c
}

func (c *MockConn) ReadyState() ReadyState { return ReadyState(c.readyState.Load()) }
func (c *MockConn) URL() string            { return c.url }
func (c *MockConn) Protocol() string       { return c.protocol }
func (c *MockConn) Extensions() []string   { return nil }

func (c *MockConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ReadyState() != Open {
		return errClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	return nil
}

// Sent returns every payload handed to Send, in order.
func (c *MockConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

// ServerSend delivers data to the connection's Messages channel, as if
// the server had sent it.
func (c *MockConn) ServerSend(data string) {
	c.messages <- []byte(data)
}

// ServerClose delivers a close event, as if the server had dropped the
// connection.
func (c *MockConn) ServerClose(code int, reason string, wasClean bool) {
	c.closeOnce.Do(func() {
		c.readyState.Store(int32(Closed))
		c.closedCh <- CloseEvent{Code: code, Reason: reason, WasClean: wasClean}
	})
}

func (c *MockConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		c.readyState.Store(int32(Closed))
		c.closedCh <- CloseEvent{Code: code, Reason: reason, WasClean: true}
	})
	return nil
}

func (c *MockConn) Messages() <-chan []byte   { return c.messages }
func (c *MockConn) Opened() <-chan struct{}   { return c.opened }
func (c *MockConn) Closed() <-chan CloseEvent { return c.closedCh }
func (c *MockConn) Errors() <-chan error      { return c.errors }

var errClosed = &mockClosedError{}

type mockClosedError struct{}

func (*mockClosedError) Error() string { return "transport: mock connection closed" }
