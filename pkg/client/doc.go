/*
Package client provides a Go client for an alarmweave node's admin API.

It is deliberately two clients in one file, for two different transports
a deployment might require:

  - Client wraps pkg/api.Server's JSON-over-HTTP surface: list sessions,
    inspect one session, fetch a window of logged events, check the offload
    scheduler's state, and ask a node to sign a hush request. Response
    shapes are plain structs decoded with encoding/json; there is no
    protobuf message anywhere in this half.

  - HealthProbe dials a node's grpc.health.v1 endpoint directly, for a
    service mesh or load balancer that expects native gRPC health checks
    rather than an HTTP GET. It uses google.golang.org/grpc's own
    pre-generated grpc_health_v1 stubs, so no code generation step is
    needed to exercise a real RPC round trip.

Both halves point at the same node; a caller picks whichever protocol its
surrounding infrastructure already speaks.
*/
package client
