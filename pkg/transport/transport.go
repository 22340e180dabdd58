// Package transport declares the collaborator interfaces the session and
// pool packages depend on but do not implement: exchange/message framing,
// trickle-style retransmit scheduling, and timers. The engine assumes these
// are provided by the underlying mesh stack; this package exists only as
// the seam between that stack and the alarm logic, and is faked in-memory
// by pkg/transport/transporttest for the session and pool tests.
package transport

import "time"

// SubmitFlags mirrors the bit flags the exchange layer attaches to an
// outbound send.
type SubmitFlags uint8

const (
	FlagRetransmitTrickle SubmitFlags = 1 << iota
	FlagDelaySend
	FlagReuseMessageID
	FlagReuseSourceID
	FlagFromInitiator
	FlagAllowDuplicateMsgs
)

// Has reports whether all bits in want are set in f.
func (f SubmitFlags) Has(want SubmitFlags) bool { return f&want == want }

// PacketInfo carries the arrival metadata the dispatcher and session need
// to enforce the mandatory-interface check.
type PacketInfo struct {
	Iface      string
	SourceNode uint64
}

// TrickleConfig configures one session's rebroadcast-suppression timer.
type TrickleConfig struct {
	Period             time.Duration
	SuppressionThresh  int
	RefreshTimeout     time.Duration
}

// Exchange is a single session's bound transport handle: the channel over
// which it sends, retransmits, and eventually closes.
type Exchange interface {
	// Submit sends payload with the given flags. Trickle scheduling (random
	// initial delay, periodic resend, suppression counting) is the
	// implementation's responsibility when FlagRetransmitTrickle is set.
	Submit(payload []byte, flags SubmitFlags) error

	// ConfigureTrickle (re)arms this exchange's trickle timer. Called
	// whenever a session sends or accepts a fresher alarm.
	ConfigureTrickle(cfg TrickleConfig)

	// NoteDuplicate informs the trickle suppression counter that a
	// consistent copy of the current payload was overheard, without
	// resetting the retransmit timer.
	NoteDuplicate()

	// Close cancels all timers bound to this exchange and releases it.
	Close() error
}

// RetransmitCallback is invoked by the transport when an exchange's
// trickle timer fires without having been suppressed.
type RetransmitCallback func(ex Exchange)

// Dialer opens exchanges bound to peers, mirroring the engine's need to
// allocate a new exchange per admitted remote session or per
// local send.
type Dialer interface {
	// Open allocates an exchange for originator (0 for a purely local,
	// not-yet-addressed session). asInitiator marks the exchange so that
	// subsequent overhearings route back to the dispatcher. flags carries
	// admission-time bits that outlive any single Submit call — in
	// practice just FlagAllowDuplicateMsgs, set when admitting a new
	// remote session so its exchange doesn't suppress the very message
	// that triggered admission the first time it's overheard again
	// before the session has a chance to settle into steady-state
	// trickle suppression.
	Open(originator uint64, asInitiator bool, flags SubmitFlags, onRetransmitTimeout RetransmitCallback) (Exchange, error)
}

// TimerHandle identifies a scheduled one-shot callback.
type TimerHandle uint32

// Scheduler models the engine-owned timer/work primitives calls for:
// "arm(handle, duration, callback)" and "cancel(handle)", generalized here
// to grace/linger timers and deferred flush work outside the trickle path.
type Scheduler interface {
	Arm(d time.Duration, callback func()) TimerHandle
	Cancel(h TimerHandle)
}
