package eventlog

import "github.com/alarmweave/alarmweave/pkg/alarmerr"

// EventWriter consumes a stream of EventRecord values in fetch order. An
// implementation must report a short write by returning ErrBufferTooSmall
// so the caller can stop cleanly rather than emit a truncated record.
type EventWriter interface {
	WriteEvent(rec EventRecord) error
}

// BufferWriter is a fixed-capacity EventWriter for one retrieval window.
// It reframes the absolute timestamps it receives into delta form: the
// first event it writes carries a zero system-time delta, and every event
// after that carries its delta against the previous one. The header has
// no absolute system-time field, so the window's starting time is not
// written. The UTC field, when present, holds each event's absolute UTC
// timestamp rather than a delta. A
// write that would overflow the buffer rolls back to the length it had
// before the attempt and returns ErrBufferTooSmall, leaving the buffer
// byte-identical to before the failed call.
type BufferWriter struct {
	capacity int
	buf      []byte
	wrote    int
	first    bool
	lastTS   int64
}

// NewBufferWriter constructs a BufferWriter with the given byte capacity.
func NewBufferWriter(capacity int) *BufferWriter {
	return &BufferWriter{capacity: capacity, first: true}
}

func (w *BufferWriter) WriteEvent(rec EventRecord) error {
	checkpoint := len(w.buf)

	// The event id is only meaningful for the first event of a retrieval
	// window; every event after that is identified purely by its position
	// in the stream, matching the original BlitEvent convention.
	h := recordHeader{
		Importance: rec.Importance,
		EventID:    rec.EventID,
		HasEventID: w.first,
		PayloadLen: uint16(len(rec.Payload)),

		HasRelated:        rec.HasRelatedEvent(),
		RelatedImportance: rec.RelatedImportance,
		RelatedEventID:    rec.RelatedEventID,

		ProfileID:        rec.ProfileID,
		SchemaVersion:    rec.SchemaVersion,
		MinCompatVersion: rec.MinCompatVersion,

		HasResource:     rec.HasResource(),
		ResourceID:      rec.ResourceID,
		TraitInstanceID: rec.TraitInstanceID,

		EventType: rec.EventType,
	}
	if w.first {
		h.DeltaMsec = 0
	} else {
		h.DeltaMsec = int32(rec.Timestamp - w.lastTS)
	}
	if rec.HasUTC {
		h.HasUTC = true
		h.DeltaUTCMsec = rec.UTCTimestamp
	}

	encoded := append(encodeHeader(h), rec.Payload...)
	if len(w.buf)+len(encoded) > w.capacity {
		w.buf = w.buf[:checkpoint]
		return alarmerr.ErrBufferTooSmall
	}

	w.buf = append(w.buf, encoded...)
	w.first = false
	w.lastTS = rec.Timestamp
	w.wrote++
	return nil
}

// Bytes returns everything written so far.
func (w *BufferWriter) Bytes() []byte { return w.buf }

// Count returns how many events were successfully written.
func (w *BufferWriter) Count() int { return w.wrote }
