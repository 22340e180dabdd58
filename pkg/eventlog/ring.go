package eventlog

import (
	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/log"
)

// Counter vends monotonically increasing event ids for one ring. RAMCounter
// is the default; a storage-backed implementation lives in pkg/storage for
// rings whose layout names a counter_bucket.
type Counter interface {
	Next() (uint64, error)
}

// RAMCounter is an in-memory monotone Counter that resets to zero on
// restart.
type RAMCounter struct{ next uint64 }

func (c *RAMCounter) Next() (uint64, error) {
	v := c.next
	c.next++
	return v, nil
}

// maxExternalSlots bounds how many concurrent external-event registrations
// one ring can hold.
const maxExternalSlots = 4

// Ring is one byte-circular buffer holding concatenated event records of a
// single priority tier, plus whatever higher-priority records are
// transiently in flight while ensureSpace promotes them upward. Records
// are appended at the tail and evicted from the head; data is kept as a
// plain slice trimmed from the front rather than a literal wraparound
// index, which is equivalent in observable behavior and far harder to get
// wrong.
type Ring struct {
	Priority uint8

	capacity int
	data     []byte

	firstEventTS   int64
	lastEventTS    int64
	utcInitialized bool
	firstEventUTC  int64
	lastEventUTC   int64

	counter Counter
	slots   []*externalSlot

	prev, next *Ring

	// appData stashes the byte requirement ensure_space owes this ring
	// while it recurses into next, so the unwind can resume here.
	appData int
}

// NewRing constructs a ring of the given priority and byte capacity. A nil
// counter defaults to an in-memory RAMCounter.
func NewRing(priority uint8, capacityBytes int, counter Counter) *Ring {
	if counter == nil {
		counter = &RAMCounter{}
	}
	return &Ring{Priority: priority, capacity: capacityBytes, counter: counter}
}

func (r *Ring) FreeBytes() int { return r.capacity - len(r.data) }
func (r *Ring) Capacity() int  { return r.capacity }
func (r *Ring) Len() int       { return len(r.data) }
func (r *Ring) IsEmpty() bool  { return len(r.data) == 0 }

// IsFinalDestination reports whether this ring is where events of the
// given importance permanently live: no higher ring exists, or this
// ring's own priority already covers importance (nothing smaller-tiered
// would have been a legitimate home, so by the time an event reaches here
// unpromoted it belongs here for good).
func (r *Ring) IsFinalDestination(importance uint8) bool {
	return r.next == nil || r.Priority >= importance
}

func (r *Ring) peekHead() (recordHeader, bool) {
	if len(r.data) < recordHeaderLen {
		return recordHeader{}, false
	}
	h := decodeHeader(r.data[:recordHeaderLen])
	if len(r.data) < recordTotalLen(h) {
		return recordHeader{}, false
	}
	return h, true
}

func (r *Ring) peekHeadPayload(h recordHeader) []byte {
	return r.data[recordHeaderLen : recordHeaderLen+int(h.PayloadLen)]
}

// firstEventID reports the id of the oldest stored record, if any. An
// empty ring has no meaningful first id; callers that use this for
// external-slot staleness checks treat "no head" as vacuously stale.
func (r *Ring) firstEventID() (uint64, bool) {
	h, ok := r.peekHead()
	if !ok {
		return 0, false
	}
	return h.EventID, true
}

// advanceHeadPast permanently removes the oldest stored record from this
// ring (ensure_space is either dropping it, because this ring is its final
// destination, or has already copied it upward with promoteHeadTo) and
// resynchronizes first_event_ts/first_event_utc against the new head so
// absolute time is preserved.
func (r *Ring) advanceHeadPast(h recordHeader) {
	total := recordTotalLen(h)
	r.data = append(r.data[:0], r.data[total:]...)
	if newHead, ok := r.peekHead(); ok {
		r.firstEventTS += int64(newHead.DeltaMsec)
		if newHead.HasUTC {
			r.firstEventUTC += newHead.DeltaUTCMsec
		}
	}
}

// vendEventID advances this ring's counter and returns the id it handed
// out. On a persistence failure the value is still returned — the caller
// already committed to writing the event.
func (r *Ring) vendEventID() uint64 {
	id, err := r.counter.Next()
	if err != nil {
		ringLogger := log.WithRing(r.Priority)
		ringLogger.Warn().Err(err).Msg("event id counter advance failed")
	}
	return id
}

func (r *Ring) vendIDRange(n int) (uint64, error) {
	first, err := r.counter.Next()
	if err != nil {
		return 0, err
	}
	for i := 1; i < n; i++ {
		if _, err := r.counter.Next(); err != nil {
			ringLogger := log.WithRing(r.Priority)
			ringLogger.Warn().Err(err).Msg("external event id counter advance failed")
			break
		}
	}
	return first, nil
}

// appendRecord writes one record to the tail, computing its delta-time
// fields against this ring's own timeline. The caller must have already
// ensured capacity via (*Log).ensureSpace.
func (r *Ring) appendRecord(importance uint8, eventID uint64, ts int64, utc int64, hasUTC bool, opts EventOptions, payload []byte) error {
	h := recordHeader{
		Importance: importance,
		EventID:    eventID,
		HasEventID: true,
		PayloadLen: uint16(len(payload)),

		HasRelated:        opts.RelatedEventID != 0,
		RelatedImportance: opts.RelatedImportance,
		RelatedEventID:    opts.RelatedEventID,

		ProfileID:        opts.ProfileID,
		SchemaVersion:    opts.SchemaVersion,
		MinCompatVersion: opts.MinCompatVersion,

		HasResource:     opts.ResourceID != 0,
		ResourceID:      opts.ResourceID,
		TraitInstanceID: opts.TraitInstanceID,

		EventType: opts.EventType,
	}

	if r.IsEmpty() {
		r.firstEventTS = ts
		h.DeltaMsec = 0
	} else {
		h.DeltaMsec = int32(ts - r.lastEventTS)
	}

	if hasUTC {
		h.HasUTC = true
		if !r.utcInitialized {
			r.firstEventUTC = utc
			r.utcInitialized = true
			h.DeltaUTCMsec = 0
		} else {
			h.DeltaUTCMsec = utc - r.lastEventUTC
		}
	}

	rec := encodeHeader(h)
	rec = append(rec, payload...)
	if len(rec) > r.FreeBytes() {
		return alarmerr.ErrBufferTooSmall
	}

	r.data = append(r.data, rec...)
	r.lastEventTS = ts
	if hasUTC {
		r.lastEventUTC = utc
	}
	return nil
}

// promoteHeadTo copies this ring's head record onto dst's tail: the raw
// payload moves unchanged, but the delta-time fields are rewritten so
// they stay correct against dst's own timeline rather than this ring's.
// The unadjusted header is returned so callers can still reason about its
// importance and byte length.
func (r *Ring) promoteHeadTo(dst *Ring) (recordHeader, error) {
	h, ok := r.peekHead()
	if !ok {
		return recordHeader{}, alarmerr.ErrIncorrectState
	}
	total := recordTotalLen(h)
	if total > dst.FreeBytes() {
		return h, alarmerr.ErrBufferTooSmall
	}
	payload := r.peekHeadPayload(h)

	absTS := r.firstEventTS
	absUTC := r.firstEventUTC

	adjusted := h
	if dst.IsEmpty() {
		adjusted.DeltaMsec = 0
		dst.firstEventTS = absTS
		if h.HasUTC {
			dst.firstEventUTC = absUTC
			dst.utcInitialized = true
			adjusted.DeltaUTCMsec = 0
		}
	} else {
		adjusted.DeltaMsec = int32(absTS - dst.lastEventTS)
		if h.HasUTC && dst.utcInitialized {
			adjusted.DeltaUTCMsec = absUTC - dst.lastEventUTC
		}
	}

	rec := encodeHeader(adjusted)
	rec = append(rec, payload...)
	dst.data = append(dst.data, rec...)
	dst.lastEventTS = absTS
	if h.HasUTC {
		dst.lastEventUTC = absUTC
	}
	return h, nil
}

// decodeAll resynthesizes every record currently stored in the ring with
// an absolute timestamp, oldest first.
func (r *Ring) decodeAll() []decodedRecord {
	var out []decodedRecord
	off := 0
	ts := r.firstEventTS
	utc := r.firstEventUTC
	first := true
	for off < len(r.data) {
		h := decodeHeader(r.data[off : off+recordHeaderLen])
		payload := r.data[off+recordHeaderLen : off+recordHeaderLen+int(h.PayloadLen)]
		if !first {
			ts += int64(h.DeltaMsec)
			if h.HasUTC {
				utc += h.DeltaUTCMsec
			}
		}
		first = false
		out = append(out, decodedRecord{header: h, payload: payload, ts: ts, utc: utc})
		off += recordTotalLen(h)
	}
	return out
}
