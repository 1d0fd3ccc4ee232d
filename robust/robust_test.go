package robust

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/robustws/transport"
)

// factoryScript drives a sequence of scripted dial outcomes, one per
// call, so tests can simulate flaky factories deterministically.
type factoryScript struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) (transport.Conn, error)
	calls int
}

func (f *factoryScript) factory(ctx context.Context, url string, opaque any) (transport.Conn, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i >= len(f.steps) {
		step := f.steps[len(f.steps)-1]
		return step(ctx)
	}
	return f.steps[i](ctx)
}

func okStep(conn *transport.MockConn) func(ctx context.Context) (transport.Conn, error) {
	return func(ctx context.Context) (transport.Conn, error) {
		return conn, nil
	}
}

func errStep(err error) func(ctx context.Context) (transport.Conn, error) {
	return func(ctx context.Context) (transport.Conn, error) {
		return nil, err
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnectInitial_Success(t *testing.T) {
	conn := transport.NewMockConn("ws://example/1")
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){okStep(conn)}}

	opened := make(chan struct{})
	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.OnOpen = func() { close(opened) }
	r.Start()

	waitFor(t, opened, "OnOpen")
	if r.ReadyState() != transport.Open {
		t.Fatalf("readyState = %v, want Open", r.ReadyState())
	}
}

func TestConnectInitial_Failure_NoReconnect(t *testing.T) {
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){errStep(errors.New("boom"))}}

	closed := make(chan CloseEvent, 1)
	var sawError bool
	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.OnError = func(error) { sawError = true }
	r.OnClose = func(evt CloseEvent) { closed <- evt }
	r.Start()

	select {
	case evt := <-closed:
		if evt.Code != 1006 || evt.WasClean {
			t.Fatalf("close event = %+v, want code 1006 wasClean=false", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	if !sawError {
		t.Fatal("expected OnError before terminal close on initial-connect failure")
	}

	script.mu.Lock()
	calls := script.calls
	script.mu.Unlock()
	if calls != 1 {
		t.Fatalf("factory called %d times, want exactly 1 (no reconnect after initial failure)", calls)
	}
}

func TestSend_RejectedWhileConnecting(t *testing.T) {
	block := make(chan struct{})
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){
		func(ctx context.Context) (transport.Conn, error) {
			<-block
			return nil, errors.New("never")
		},
	}}

	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.Start()

	if err := r.Send([]byte("hi")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Send during CONNECTING = %v, want ErrInvalidState", err)
	}
	close(block)
}

func TestClose_NoPhysical_SynthesizesUncleanClose(t *testing.T) {
	block := make(chan struct{})
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){
		func(ctx context.Context) (transport.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}

	closed := make(chan CloseEvent, 1)
	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.OnClose = func(evt CloseEvent) { closed <- evt }
	r.Start()

	time.Sleep(20 * time.Millisecond) // let connectInitial reach the dial
	if err := r.Close(4000, "bye"); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	close(block)

	select {
	case evt := <-closed:
		if evt.WasClean {
			t.Fatalf("close event = %+v, want wasClean=false", evt)
		}
		if evt.Code != 4000 || evt.Reason != "bye" {
			t.Fatalf("close event = %+v, want code=4000 reason=bye", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	if r.ReadyState() != transport.Closed {
		t.Fatalf("readyState = %v, want Closed", r.ReadyState())
	}
}

func TestClose_HappyPath_CleanClose(t *testing.T) {
	conn := transport.NewMockConn("ws://example/1")
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){okStep(conn)}}

	opened := make(chan struct{})
	closed := make(chan CloseEvent, 1)
	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.OnOpen = func() { close(opened) }
	r.OnClose = func(evt CloseEvent) { closed <- evt }
	r.Start()
	waitFor(t, opened, "OnOpen")

	if err := r.Close(1000, "bye"); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case evt := <-closed:
		if !evt.WasClean || evt.Code != 1000 || evt.Reason != "bye" {
			t.Fatalf("close event = %+v, want clean 1000/bye", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func TestReconnect_AfterUncleanDrop_DrainsPendingThenFiresReconnect(t *testing.T) {
	conn1 := transport.NewMockConn("ws://example/1")
	conn2 := transport.NewMockConn("ws://example/2")
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){okStep(conn1), okStep(conn2)}}

	opened := make(chan struct{})
	disconnected := make(chan struct{})
	reconnected := make(chan struct{})
	r := New(Config{URL: "ws://example", Timeout: 5 * time.Second, Factory: script.factory})
	r.OnOpen = func() { close(opened) }
	r.OnDisconnect = func() { close(disconnected) }
	r.OnReconnect = func() { close(reconnected) }
	r.Start()
	waitFor(t, opened, "OnOpen")

	conn1.ServerClose(1006, "", false)
	waitFor(t, disconnected, "OnDisconnect")

	if err := r.Send([]byte("queued")); err != nil {
		t.Fatalf("Send while reconnecting: %v", err)
	}

	waitFor(t, reconnected, "OnReconnect")

	sent := conn2.Sent()
	if len(sent) != 1 || sent[0] != "queued" {
		t.Fatalf("conn2.Sent() = %v, want [queued]", sent)
	}
}

func TestDebugReconnectCode_ForcesReconnectDespiteWasClean(t *testing.T) {
	conn1 := transport.NewMockConn("ws://example/1")
	conn2 := transport.NewMockConn("ws://example/2")
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){okStep(conn1), okStep(conn2)}}

	opened := make(chan struct{})
	reconnected := make(chan struct{})
	r := New(Config{URL: "ws://example", Timeout: 5 * time.Second, Factory: script.factory})
	r.OnOpen = func() { close(opened) }
	r.OnReconnect = func() { close(reconnected) }
	r.Start()
	waitFor(t, opened, "OnOpen")

	conn1.ServerClose(DebugReconnectCode, "", true)
	waitFor(t, reconnected, "OnReconnect")
}

func TestRetryDeadlineExceeded_SynthesizesClose1006(t *testing.T) {
	conn1 := transport.NewMockConn("ws://example/1")
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){
		okStep(conn1),
		errStep(errors.New("still down")),
	}}

	opened := make(chan struct{})
	closed := make(chan CloseEvent, 1)
	r := New(Config{URL: "ws://example", Timeout: 150 * time.Millisecond, Factory: script.factory})
	r.OnOpen = func() { close(opened) }
	r.OnClose = func(evt CloseEvent) { closed <- evt }
	r.Start()
	waitFor(t, opened, "OnOpen")

	conn1.ServerClose(1006, "", false)

	select {
	case evt := <-closed:
		if evt.Code != 1006 || evt.WasClean {
			t.Fatalf("close event = %+v, want code 1006 wasClean=false", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	if r.ReadyState() != transport.Closed {
		t.Fatalf("readyState = %v, want Closed", r.ReadyState())
	}
}

func TestCloseRacesDial_DiscardsNewConnection(t *testing.T) {
	block := make(chan transport.Conn)
	script := &factoryScript{steps: []func(context.Context) (transport.Conn, error){
		func(ctx context.Context) (transport.Conn, error) {
			return <-block, nil
		},
	}}

	closed := make(chan CloseEvent, 1)
	r := New(Config{URL: "ws://example", Factory: script.factory})
	r.OnClose = func(evt CloseEvent) { closed <- evt }
	r.Start()

	time.Sleep(20 * time.Millisecond)
	if err := r.Close(4000, "bye"); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synthetic OnClose")
	}

	late := transport.NewMockConn("ws://example/late")
	block <- late

	time.Sleep(20 * time.Millisecond)
	if late.ReadyState() != transport.Closed {
		t.Fatalf("late connection readyState = %v, want Closed (discarded)", late.ReadyState())
	}
	if r.ReadyState() != transport.Closed {
		t.Fatalf("readyState = %v, want Closed", r.ReadyState())
	}
}
