// Package resend implements BufferedResendConnection: a decorator over
// a RobustConnection that tags outbound messages with monotonic ids,
// buffers them until the server acknowledges receipt, and replays the
// unacknowledged tail after a reconnect via a CONTINUE handshake.
package resend
