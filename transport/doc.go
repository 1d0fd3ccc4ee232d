// Package transport implements the physical WebSocket connection that
// RobustConnection manages the lifecycle of.
//
// Conn is dialed through a Factory and delivers events over buffered
// channels rather than nilable callback fields; a buffered channel
// accepts sends whether or not a reader is attached yet, so nothing is
// lost in the window between a physical connection coming up and its
// owner starting to drain it.
package transport
