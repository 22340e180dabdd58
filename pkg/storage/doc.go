/*
Package storage provides the two pieces of engine state that must survive
a process restart: persistent event-id counters for rings configured with
persistent_counter: true, and a checkpoint of the session pool's occupied
slots, both backed by a single bbolt database file.

Event ids must never repeat across a restart — a subscriber resuming a
fetch_events_since cursor depends on strictly increasing ids within a
priority's stream. Counter commits its new value before returning the old
one, so a crash between vend and use never re-vends an id already handed
out.

The pool snapshot is best-effort: SaveSessionSnapshot stores one
checkpoint of slot occupancy and LoadSessionSnapshot returns it. Nothing
in this module calls either, so cmd/alarmweaved neither saves the pool on
shutdown nor restores it on start. A snapshot is not a substitute for the wire protocol's own replay-suppression and
session-id-epoch mechanisms, which remain authoritative once traffic
resumes.
*/
package storage
