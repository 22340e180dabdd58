package eventlog

import (
	"github.com/alarmweave/alarmweave/pkg/alarmerr"
	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/log"
	"github.com/alarmweave/alarmweave/pkg/metrics"
)

// Log is the full ring stack, ordered lowest to highest priority, wired
// from config.Log's layout.
type Log struct {
	rings []*Ring
}

// NewLog builds the ring stack described by layouts and links each ring
// to its neighbors. counterFor, if non-nil, is consulted per ring so a
// caller can back some rings with a persistent counter (pkg/storage) and
// leave the rest on the default in-memory one.
func NewLog(layouts []config.RingLayout, counterFor func(config.RingLayout) Counter) (*Log, error) {
	if len(layouts) == 0 {
		return nil, alarmerr.ErrInvalidArgument
	}

	rings := make([]*Ring, len(layouts))
	for i, layout := range layouts {
		var c Counter
		if counterFor != nil {
			c = counterFor(layout)
		}
		rings[i] = NewRing(layout.Priority, layout.CapacityBytes, c)
	}
	for i := range rings {
		if i > 0 {
			rings[i].prev = rings[i-1]
		}
		if i < len(rings)-1 {
			rings[i].next = rings[i+1]
		}
	}
	return &Log{rings: rings}, nil
}

// Rings returns the ring stack, lowest priority first.
func (l *Log) Rings() []*Ring { return l.rings }

// importanceBuffer walks from the lowest ring forward to find the final
// destination ring for importance (GetImportanceBuffer). An importance
// above every ring's priority has no home ring and yields nil.
func (l *Log) importanceBuffer(importance uint8) *Ring {
	if importance > l.MaxImportance() {
		return nil
	}
	for _, r := range l.rings {
		if r.IsFinalDestination(importance) {
			return r
		}
	}
	return nil
}

// CurrentImportance is the priority of the lowest ring, where every write
// enters. It is fixed by the ring layout; importances below it are still
// accepted and live in the lowest ring.
func (l *Log) CurrentImportance() uint8 { return l.rings[0].Priority }

// MaxImportance is the highest tier any ring can permanently home.
func (l *Log) MaxImportance() uint8 { return l.rings[len(l.rings)-1].Priority }

// RingFillLevels reports each ring's current byte usage and capacity,
// keyed by priority, for metrics collection.
func (l *Log) RingFillLevels() map[uint8]struct{ Fill, Capacity int } {
	out := make(map[uint8]struct{ Fill, Capacity int }, len(l.rings))
	for _, r := range l.rings {
		out[r.Priority] = struct{ Fill, Capacity int }{Fill: r.Len(), Capacity: r.Capacity()}
	}
	return out
}

func (l *Log) indexOf(r *Ring) int {
	for i, rr := range l.rings {
		if rr == r {
			return i
		}
	}
	return -1
}

// chainFromRoot returns every ring from the lowest up to and including
// dest: the rings that can hold events of dest's importance. Promotion
// moves older records upward, so a fetch reads this slice from its end.
func (l *Log) chainFromRoot(dest *Ring) []*Ring {
	idx := l.indexOf(dest)
	if idx < 0 {
		return nil
	}
	return l.rings[:idx+1]
}

// ensureSpace implements the eviction/promotion algorithm: it always
// starts at the lowest ring, evicting records whose final destination is
// the current ring outright, promoting everything else one hop up, and
// recursing (via the appData stash) when the next ring also lacks room.
func (l *Log) ensureSpace(requiredSpace int, startRing *Ring) error {
	eventBuffer := startRing
	if requiredSpace <= eventBuffer.FreeBytes() {
		return nil
	}

	for {
		if requiredSpace > eventBuffer.capacity {
			return alarmerr.ErrBufferTooSmall
		}

		if requiredSpace > eventBuffer.FreeBytes() {
			head, ok := eventBuffer.peekHead()
			if !ok {
				return alarmerr.ErrBufferTooSmall
			}

			if eventBuffer.IsFinalDestination(head.Importance) {
				eventBuffer.advanceHeadPast(head)
				metrics.RingEvictionsTotal.Inc()
				continue
			}

			next := eventBuffer.next
			if next == nil {
				return alarmerr.ErrBufferTooSmall
			}

			needed := recordTotalLen(head)
			if needed <= next.FreeBytes() {
				if _, err := eventBuffer.promoteHeadTo(next); err != nil {
					return err
				}
				eventBuffer.advanceHeadPast(head)
				metrics.RingPromotionsTotal.Inc()
				continue
			}

			eventBuffer.appData = requiredSpace
			eventBuffer = next
			requiredSpace = needed
			continue
		}

		if eventBuffer == startRing {
			break
		}
		eventBuffer = eventBuffer.prev
		requiredSpace = eventBuffer.appData
	}
	return nil
}

// AddEvent implements write path. Every event enters at the
// lowest-priority ring regardless of its own importance; only the id it
// is stamped with comes from its eventual home ring's counter. The event
// migrates upward over time, purely as a side effect of later writes
// needing room at the bottom of the stack.
func (l *Log) AddEvent(importance uint8, ts int64, utc int64, hasUTC bool, opts EventOptions, payload []byte) (uint64, error) {
	dest := l.importanceBuffer(importance)
	if dest == nil {
		return 0, alarmerr.ErrInvalidArgument
	}

	needed := recordHeaderLen + len(payload)
	timer := metrics.NewTimer()
	err := l.ensureSpace(needed, l.rings[0])
	timer.ObserveDuration(metrics.EventLogEnsureSpaceDuration)
	if err != nil {
		return 0, err
	}

	id := dest.vendEventID()
	if err := l.rings[0].appendRecord(importance, id, ts, utc, hasUTC, opts, payload); err != nil {
		return 0, err
	}

	ringLogger := log.WithRing(l.rings[0].Priority)
	ringLogger.Debug().
		Uint64("event_id", id).Uint8("importance", importance).Msg("event logged")
	return id, nil
}

// FetchEventsSince implements fetch_events_since: it collects
// every matching record across the chain of rings that could still hold
// importance-tagged events (from the lowest ring up through importance's
// final destination), then drives a single id cursor across them,
// splicing in registered external ranges as it crosses them. sinceID is
// updated in place to reflect progress even when the fetch stops early on
// a short write, so the caller can resume from where it left off.
func (l *Log) FetchEventsSince(w EventWriter, importance uint8, sinceID *uint64) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EventLogFetchDuration)

	dest := l.importanceBuffer(importance)
	if dest == nil {
		return alarmerr.ErrInvalidArgument
	}

	var matching []decodedRecord
	chain := l.chainFromRoot(dest)
	for j := len(chain) - 1; j >= 0; j-- {
		for _, rec := range chain[j].decodeAll() {
			if rec.header.Importance == importance {
				matching = append(matching, rec)
			}
		}
	}

	current := *sinceID
	i := 0
	for {
		if slot := dest.externalSlotFor(current); slot != nil {
			next, err := slot.fetchCB(w, current, &ExternalEventHandle{ring: dest, slot: slot})
			if err != nil {
				*sinceID = current
				return err
			}
			current = next
			continue
		}

		if i >= len(matching) {
			break
		}
		rec := matching[i]
		i++

		if rec.header.EventID < current {
			continue
		}

		out := EventRecord{
			Importance:   rec.header.Importance,
			EventID:      rec.header.EventID,
			Timestamp:    rec.ts,
			UTCTimestamp: rec.utc,
			HasUTC:       rec.header.HasUTC,

			RelatedImportance: rec.header.RelatedImportance,
			RelatedEventID:    rec.header.RelatedEventID,

			ProfileID:        rec.header.ProfileID,
			SchemaVersion:    rec.header.SchemaVersion,
			MinCompatVersion: rec.header.MinCompatVersion,

			ResourceID:      rec.header.ResourceID,
			TraitInstanceID: rec.header.TraitInstanceID,

			EventType: rec.header.EventType,

			Payload: rec.payload,
		}
		if err := w.WriteEvent(out); err != nil {
			*sinceID = current
			return alarmerr.ErrEndOfStream
		}
		current = rec.header.EventID + 1
	}

	*sinceID = current
	return alarmerr.ErrEndOfStream
}

// RegisterExternalEvents reserves numEvents consecutive ids on importance's
// final destination ring for an out-of-band event source.
func (l *Log) RegisterExternalEvents(importance uint8, numEvents int, fetch ExternalFetchFunc, notify ExternalNotifyFunc) (*ExternalEventHandle, error) {
	dest := l.importanceBuffer(importance)
	if dest == nil {
		return nil, alarmerr.ErrInvalidArgument
	}
	return dest.registerExternalEvents(numEvents, fetch, notify)
}

// NotifyEventsDelivered notifies every external registration on
// importance's ring whose reserved range intersects the delivered range.
func (l *Log) NotifyEventsDelivered(importance uint8, lastDeliveredID uint64, recipient string) error {
	dest := l.importanceBuffer(importance)
	if dest == nil {
		return alarmerr.ErrInvalidArgument
	}
	dest.notifyDelivered(lastDeliveredID, recipient)
	return nil
}
