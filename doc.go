// Package gazefan is a runtime event-distribution engine: it accepts typed
// data events from an upstream producer (a sensor or telemetry pipeline)
// and fans each event out to a per-session, runtime-mutable set of
// transport adapters. Sessions are isolated from each other; each owns its
// own adapters and one event-routing table, and both can be mutated at
// runtime without dropping the other transports.
//
// The usual flow is: build a validated SessionConfig with ConfigManager
// (optionally starting from a named template), create a session from it
// with SessionManager, then feed events in through RouteEvent. Every
// dispatch fans out to the routed adapters concurrently and returns a
// DistributionResult with one outcome per target; a failing target never
// aborts delivery to the rest.
//
// # Distributors
//
// Nine transport adapters ship in the distributor sub-packages:
//   - mqtt: per-event topic publish via the Paho client
//   - http: outbound JSON POST with bounded retries
//   - websocket: broadcast server, one Send reaches every connected client
//   - udp: raw datagrams to a target list, JSON or OpenTrack layout
//   - sse: server-sent-events stream
//   - nats, kafka, amqp: broker publishes over Watermill
//   - channel: in-process pub/sub for tests and local consumers
//
// New transports register a factory and capabilities with the distributor
// registry under a new name; nothing in the engine special-cases any
// variant.
//
// # Delivery semantics
//
// Fan-out is partial-failure tolerant and nothing more: there is no
// exactly-once delivery across transports, no cross-transport ordering,
// and no buffering across a reconfigure. Reconfigure swaps a connection
// atomically from the caller's perspective, and deliberately does not
// restore the old connection when the new one fails; re-reconfigure with
// the old parameters to roll back.
package gazefan
