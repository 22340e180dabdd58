// Package localnet is the default, shipped implementation of
// pkg/transport's collaborator interfaces: a link-local UDP broadcast
// Dialer/Exchange pair and a wall-clock Scheduler backed by time.AfterFunc.
//
// pkg/transport deliberately declares Dialer, Exchange, and Scheduler as
// interfaces the engine depends on without committing to a concrete mesh
// stack. That boundary stays real even with this package present: localnet
// is one option among many a deployment could plug in, chosen here so
// cmd/alarmweaved has something to bind to when it isn't embedded inside a
// larger mesh runtime. It favors a single UDP broadcast socket per process
// over a full multicast mesh stack, matching the scale the rest of the
// engine targets — a handful of neighbors on one link, not a routed
// internetwork.
package localnet
