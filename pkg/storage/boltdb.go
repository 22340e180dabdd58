package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/eventlog"
)

var (
	bucketCounters = []byte("counters")
	bucketSnapshot = []byte("pool_snapshot")
	snapshotKey    = []byte("current")
)

// BoltStore implements Store on top of a single bbolt database file,
// using one bucket per concern.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "alarmweave.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCounters, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Counter returns a persistent counter backed by bucket's key within the
// counters bucket, initializing it at zero if absent.
func (s *BoltStore) Counter(bucket string) (*Counter, error) {
	key := []byte(bucket)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if b.Get(key) != nil {
			return nil
		}
		return b.Put(key, encodeCounter(0))
	})
	if err != nil {
		return nil, err
	}
	return &Counter{db: s.db, key: key}, nil
}

// Counter is a persistent, monotonically increasing event-id vendor
// satisfying eventlog.Counter, backed by one key in the counters bucket.
// Each Next() call commits a bbolt transaction before returning, so a
// crash never re-vends an id that was already handed to a caller.
type Counter struct {
	db  *bolt.DB
	key []byte
}

// Next persists and returns the next value in sequence.
func (c *Counter) Next() (uint64, error) {
	var next uint64
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		cur := decodeCounter(b.Get(c.key))
		next = cur
		return b.Put(c.key, encodeCounter(cur+1))
	})
	return next, err
}

func encodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeCounter(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// CounterFactory adapts s into the counterFor callback eventlog.NewLog
// accepts: a ring with persistent_counter: true gets a bbolt-backed
// Counter keyed by its counter_bucket name; every other ring falls back to
// the package default in-memory counter.
func (s *BoltStore) CounterFactory() func(config.RingLayout) eventlog.Counter {
	return func(layout config.RingLayout) eventlog.Counter {
		if !layout.PersistentCounter {
			return nil
		}
		bucket := layout.CounterBucket
		if bucket == "" {
			bucket = fmt.Sprintf("ring-%d", layout.Priority)
		}
		c, err := s.Counter(bucket)
		if err != nil {
			return nil
		}
		return c
	}
}

// SessionRecord is the persisted shape of one pool slot, enough to
// reconstruct a session's lifecycle state and current alarm after a
// restart without replaying any wire traffic.
type SessionRecord struct {
	Idx            int                   `json:"idx"`
	IsLocal        bool                  `json:"is_local"`
	Originator     uint64                `json:"originator"`
	State          uint8                 `json:"state"`
	AlarmCtr       uint8                 `json:"alarm_ctr"`
	Conditions     []alarmtypes.Condition `json:"conditions"`
	Where          uint8                 `json:"where"`
	SessionIDValid bool                  `json:"session_id_valid"`
	SessionID      uint32                `json:"session_id"`
	ExtEvtSN       uint32                `json:"ext_evt_sn"`
}

// PoolSnapshot is every occupied slot in the session pool at the moment it
// was taken.
type PoolSnapshot struct {
	Sessions []SessionRecord `json:"sessions"`
}

// SaveSessionSnapshot replaces the persisted pool snapshot.
func (s *BoltStore) SaveSessionSnapshot(snap PoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Put(snapshotKey, data)
	})
}

// LoadSessionSnapshot returns the last persisted snapshot, or an empty one
// if none was ever saved.
func (s *BoltStore) LoadSessionSnapshot() (PoolSnapshot, error) {
	var snap PoolSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshot).Get(snapshotKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &snap)
	})
	return snap, err
}
