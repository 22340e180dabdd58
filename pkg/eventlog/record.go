package eventlog

import "encoding/binary"

// flag bits packed into a record's single flags byte.
const (
	flagHasUTC      = 1 << 0
	flagHasEventID  = 1 << 1
	flagHasRelated  = 1 << 2
	flagHasResource = 1 << 3
)

// recordHeaderLen is the fixed-size prefix stored ahead of every event's
// payload, mirroring the tag set LoggingManagement's BlitEvent writes
// ahead of application event data: importance(1) + event id(8) +
// delta-system-time(4) + flags(1) + delta-utc-time(8) + related
// importance(1) + related event id(8) + trait profile id(4) + schema
// version(2) + min-compatible schema version(2) + resource id(8) + trait
// instance id(8) + event type(4) + payload length(2).
const recordHeaderLen = 1 + 8 + 4 + 1 + 8 + 1 + 8 + 4 + 2 + 2 + 8 + 8 + 4 + 2

// EventOptions carries the per-event metadata the engine itself stamps
// ahead of the caller's opaque payload, rather than fields the caller
// packs into the payload. Zero values mean "absent": RelatedEventID == 0
// means no related event, and ResourceID == 0 means the event originated
// locally (TraitInstanceID is only stored when ResourceID is non-zero).
type EventOptions struct {
	RelatedImportance uint8
	RelatedEventID    uint64

	ProfileID        uint32
	SchemaVersion    uint16
	MinCompatVersion uint16

	ResourceID      uint64
	TraitInstanceID uint64

	EventType uint32
}

type recordHeader struct {
	Importance uint8
	EventID    uint64
	DeltaMsec  int32

	HasUTC       bool
	DeltaUTCMsec int64

	// HasEventID controls whether EventID is meaningful to a reader. Ring
	// storage always sets it; BufferWriter clears it on every event after
	// the first one in a retrieval window, matching the original event
	// id's "present only for the first event of a window" convention.
	HasEventID bool

	HasRelated        bool
	RelatedImportance uint8
	RelatedEventID    uint64

	ProfileID        uint32
	SchemaVersion    uint16
	MinCompatVersion uint16

	HasResource     bool
	ResourceID      uint64
	TraitInstanceID uint64

	EventType uint32

	PayloadLen uint16
}

func encodeHeader(h recordHeader) []byte {
	buf := make([]byte, recordHeaderLen)
	off := 0

	buf[off] = h.Importance
	off++
	binary.LittleEndian.PutUint64(buf[off:off+8], h.EventID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h.DeltaMsec))
	off += 4

	var flags byte
	if h.HasUTC {
		flags |= flagHasUTC
	}
	if h.HasEventID {
		flags |= flagHasEventID
	}
	if h.HasRelated {
		flags |= flagHasRelated
	}
	if h.HasResource {
		flags |= flagHasResource
	}
	buf[off] = flags
	off++

	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(h.DeltaUTCMsec))
	off += 8

	buf[off] = h.RelatedImportance
	off++
	binary.LittleEndian.PutUint64(buf[off:off+8], h.RelatedEventID)
	off += 8

	binary.LittleEndian.PutUint32(buf[off:off+4], h.ProfileID)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], h.SchemaVersion)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], h.MinCompatVersion)
	off += 2

	binary.LittleEndian.PutUint64(buf[off:off+8], h.ResourceID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], h.TraitInstanceID)
	off += 8

	binary.LittleEndian.PutUint32(buf[off:off+4], h.EventType)
	off += 4

	binary.LittleEndian.PutUint16(buf[off:off+2], h.PayloadLen)
	return buf
}

func decodeHeader(buf []byte) recordHeader {
	off := 0
	h := recordHeader{}

	h.Importance = buf[off]
	off++
	h.EventID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	h.DeltaMsec = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4

	flags := buf[off]
	off++
	h.HasUTC = flags&flagHasUTC != 0
	h.HasEventID = flags&flagHasEventID != 0
	h.HasRelated = flags&flagHasRelated != 0
	h.HasResource = flags&flagHasResource != 0

	h.DeltaUTCMsec = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8

	h.RelatedImportance = buf[off]
	off++
	h.RelatedEventID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	h.ProfileID = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	h.SchemaVersion = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	h.MinCompatVersion = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2

	h.ResourceID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	h.TraitInstanceID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	h.EventType = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	h.PayloadLen = binary.LittleEndian.Uint16(buf[off : off+2])
	return h
}

func recordTotalLen(h recordHeader) int { return recordHeaderLen + int(h.PayloadLen) }

// EventRecord is one event as handed to an EventWriter during a fetch:
// fully resynthesized with an absolute timestamp, independent of how it
// happens to be delta-encoded in whichever ring currently holds it, plus
// every tag the engine stamped on it ahead of its opaque payload.
type EventRecord struct {
	Importance   uint8
	EventID      uint64
	Timestamp    int64
	UTCTimestamp int64
	HasUTC       bool

	RelatedImportance uint8
	RelatedEventID    uint64

	ProfileID        uint32
	SchemaVersion    uint16
	MinCompatVersion uint16

	ResourceID      uint64
	TraitInstanceID uint64

	EventType uint32

	Payload []byte
}

// HasRelatedEvent reports whether this record names a related event.
func (r EventRecord) HasRelatedEvent() bool { return r.RelatedEventID != 0 }

// HasResource reports whether this record originated from a non-local
// resource and carries a resource/trait-instance id pair.
func (r EventRecord) HasResource() bool { return r.ResourceID != 0 }

// decodedRecord is an EventRecord plus the header fields a fetch loop
// needs (notably Importance again, for filtering) while it is still being
// read out of a ring's backing bytes.
type decodedRecord struct {
	header  recordHeader
	payload []byte
	ts      int64
	utc     int64
}
