// Package backoff implements the retry helper RobustConnection uses to
// drive reconnection attempts.
//
// It retries an attempt-producing operation with exponential,
// capped-doubling delay until it succeeds or a deadline elapses. A
// non-positive deadline means exactly one attempt, no retry.
package backoff
