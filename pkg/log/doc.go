// Package log wraps zerolog to give alarmweave's engine, pool, and event
// log packages structured, leveled logging with consistent component and
// session/ring context fields.
package log
