package eventlog

import "github.com/alarmweave/alarmweave/pkg/alarmerr"

// ExternalFetchFunc is invoked when a fetch's cursor enters a registered
// external range; it is responsible for writing whatever events it has
// for [sinceID, slot's last id] and returning the cursor position to
// resume the splice from.
type ExternalFetchFunc func(w EventWriter, sinceID uint64, slot *ExternalEventHandle) (nextID uint64, err error)

// ExternalNotifyFunc is invoked by NotifyEventsDelivered for each slot
// whose reserved range intersects a delivery confirmation.
type ExternalNotifyFunc func(slot *ExternalEventHandle, lastDelivered uint64, recipient string)

type externalSlot struct {
	firstID  uint64
	lastID   uint64
	fetchCB  ExternalFetchFunc
	notifyCB ExternalNotifyFunc
}

// ExternalEventHandle identifies one external-event registration so its
// owner can unregister it later.
type ExternalEventHandle struct {
	ring *Ring
	slot *externalSlot
}

// Unregister nulls out this registration's callbacks. The slot itself
// becomes reclaimable once the ring's oldest stored id moves past the
// slot's reserved range.
func (h *ExternalEventHandle) Unregister() {
	h.slot.fetchCB = nil
	h.slot.notifyCB = nil
}

// registerExternalEvents allocates a free (or stale) slot on the ring,
// vends numEvents consecutive ids for it, and wires the callbacks. A slot
// is stale once its reserved range lies entirely behind the ring's
// current head — everything it could have described is already gone.
func (r *Ring) registerExternalEvents(numEvents int, fetch ExternalFetchFunc, notify ExternalNotifyFunc) (*ExternalEventHandle, error) {
	if numEvents <= 0 || fetch == nil {
		return nil, alarmerr.ErrInvalidArgument
	}

	var target *externalSlot
	for _, s := range r.slots {
		if s.fetchCB != nil {
			continue
		}
		firstID, ok := r.firstEventID()
		if !ok || s.lastID <= firstID {
			target = s
			break
		}
	}
	if target == nil {
		if len(r.slots) >= maxExternalSlots {
			return nil, alarmerr.ErrOutOfSlots
		}
		target = &externalSlot{}
		r.slots = append(r.slots, target)
	}

	first, err := r.vendIDRange(numEvents)
	if err != nil {
		return nil, err
	}
	target.firstID = first
	target.lastID = first + uint64(numEvents) - 1
	target.fetchCB = fetch
	target.notifyCB = notify
	return &ExternalEventHandle{ring: r, slot: target}, nil
}

// externalSlotFor returns the live slot covering id, if any.
func (r *Ring) externalSlotFor(id uint64) *externalSlot {
	for _, s := range r.slots {
		if s.fetchCB == nil {
			continue
		}
		if id >= s.firstID && id <= s.lastID {
			return s
		}
	}
	return nil
}

// notifyDelivered walks every slot on the ring, invoking notifyCB for any
// whose reserved range intersects [.., lastDeliveredID].
// Callbacks may unregister their own slot from within.
func (r *Ring) notifyDelivered(lastDeliveredID uint64, recipient string) {
	for _, s := range r.slots {
		if s.notifyCB == nil {
			continue
		}
		if lastDeliveredID < s.firstID {
			continue
		}
		bound := lastDeliveredID
		if bound > s.lastID {
			bound = s.lastID
		}
		s.notifyCB(&ExternalEventHandle{ring: r, slot: s}, bound, recipient)
	}
}
