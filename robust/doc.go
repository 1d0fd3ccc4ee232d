// Package robust implements RobustConnection: a logical WebSocket
// connection that survives the failure and replacement of its
// underlying physical connection.
//
// To its consumer it looks like an ordinary WebSocket — open/close/
// error/message callbacks plus a Send method — while internally it
// multiplexes over a sequence of physical connections sharing one
// robust ID, reconnecting with backoff and exposing Disconnect/
// Reconnect events in addition to the standard ones.
//
// Construction is split from starting: New builds the connection in
// CONNECTING state without dialing anything, so the caller can assign
// OnOpen/OnMessage/etc. before calling Start — Go has no
// run-to-completion event loop to guarantee handlers are attached
// before the first event fires, unlike the browser environment this
// design is modeled on.
package robust
