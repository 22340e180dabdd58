/*
Package eventlog implements a priority-ring event log engine: a linked
stack of fixed-capacity circular byte buffers, one per importance tier,
ordered lowest to highest.

Every new event is appended to the lowest-priority ring regardless of its own
importance. Only the id it is stamped with comes from its eventual home
ring's counter. As the lowest ring fills, ensure_space evicts or promotes its
head record into the next ring up, one hop at a time, until the record either
reaches the ring it permanently belongs to (and is dropped for good once that
ring itself must make room) or the whole stack is satisfied. This buffers
low-importance noise briefly while guaranteeing high-importance events
survive long enough to reach durable storage or a subscriber.
*/
package eventlog
