// Package alarmerr defines the sentinel error codes surfaced at the engine's
// public API plus a handful of log-engine-local codes that never
// cross the delegate boundary.
package alarmerr

import "errors"

var (
	// ErrNoMemory indicates a fixed-size pool (sessions, message buffers,
	// ring slots) is exhausted.
	ErrNoMemory = errors.New("alarmweave: no memory")

	// ErrBufferTooSmall indicates a single element exceeds the capacity of
	// the buffer it would be written into, even after eviction.
	ErrBufferTooSmall = errors.New("alarmweave: buffer too small")

	// ErrMessageIncomplete indicates a wire buffer ended before the v1
	// prefix it claims to carry was fully present.
	ErrMessageIncomplete = errors.New("alarmweave: message incomplete")

	// ErrInvalidMessageLength indicates a condition count outside 0..8.
	ErrInvalidMessageLength = errors.New("alarmweave: invalid message length")

	// ErrInvalidArgument indicates a caller-supplied argument is malformed
	// independent of engine state (e.g. a zero-length external event
	// registration).
	ErrInvalidArgument = errors.New("alarmweave: invalid argument")

	// ErrIncorrectState indicates an operation was attempted in a state
	// that forbids it (send_alarm on a non-local session, pack without a
	// signature, …). No state change occurs.
	ErrIncorrectState = errors.New("alarmweave: incorrect state")

	// ErrNoEndpoint indicates a mandatory interface was configured and the
	// packet's arrival interface did not match it.
	ErrNoEndpoint = errors.New("alarmweave: no endpoint")

	// ErrRandomDataUnavailable indicates the secure RNG collaborator
	// failed to produce a session id.
	ErrRandomDataUnavailable = errors.New("alarmweave: random data unavailable")

	// ErrOutOfPool indicates the session pool is full and severity-based
	// eviction found no eligible victim.
	ErrOutOfPool = errors.New("alarmweave: out of pool")

	// ErrOutOfSlots indicates the external-event slot table for a ring has
	// no free (or stale) slot to allocate.
	ErrOutOfSlots = errors.New("alarmweave: out of external event slots")

	// ErrEndOfStream indicates a fetch loop reached the end of available
	// events, or a short write forced early termination of a retrieval
	// window. Callers resume later using the updated since-id cursor.
	ErrEndOfStream = errors.New("alarmweave: end of stream")
)
