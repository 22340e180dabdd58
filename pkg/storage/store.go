// Package storage provides bbolt-backed persistence for the two pieces of
// engine state that must survive a process restart: event log ring id
// counters and a checkpoint of the session pool.
package storage

// Store is the persistence surface the engine depends on.
type Store interface {
	// Counter returns a persistent event-id counter for the given bucket
	// name, creating it at zero if it does not already exist.
	Counter(bucket string) (*Counter, error)

	// SaveSessionSnapshot persists the current pool snapshot, replacing
	// whatever was stored before.
	SaveSessionSnapshot(snap PoolSnapshot) error

	// LoadSessionSnapshot returns the last saved pool snapshot, or an empty
	// snapshot if none was ever saved.
	LoadSessionSnapshot() (PoolSnapshot, error)

	Close() error
}
