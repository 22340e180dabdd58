/*
Package api exposes the engine's introspection and hush-issuing surface as
JSON over plain net/http: list occupied session pool slots, inspect one
slot's current alarm, summarize the event log's ring fill levels, check the
offload scheduler's state, fetch a window of logged events, and sign a hush
request for out-of-band transmission.

Server never touches the transport layer directly — SendHushRequest signs
and packs a request and hands the bytes back hex-encoded; submitting them
onto the mesh is the caller's job. This keeps the admin surface readable
from a browser or curl without pulling a wire codec into the client.

HealthServer is a second, independent mux for liveness/readiness/metrics,
so a load balancer's health probe never competes with admin traffic on the
same listener. cmd/alarmweaved runs both on separate ports.

Timestamps in event responses are google.golang.org/protobuf's
timestamppb.Timestamp, marshaled by plain encoding/json against its
exported Seconds/Nanos fields rather than full protojson — there is no
protobuf wire message anywhere in this package, only the well-known
timestamp type reused for a stable, language-neutral JSON shape.
*/
package api
