// Package flush implements the offload/flush scheduling state machine:
// deciding when accumulated event log data is worth uploading to a
// configured destination, and keeping that decision admission-safe
// against concurrent producers requesting a flush from an ISR-like
// context via a single atomic compare-and-swap.
package flush
