// Package relay contains the run loop and the delivery fan-out.
//
// # Overview
//
// The run loop consumes the transport's event stream one event at a time.
// Channel messages are filtered against the current policy snapshot and, when
// allowed, fanned out to every recipient; command messages are handed to the
// admin gateway. Because processing is serialized, a relay completes (or
// fails) in full before the next event is looked at.
//
// # State Machine
//
// The loop is in exactly one of three states:
//
//   - Running: reading and processing events
//   - Backoff: paused for a bounded duration after a failure or rate limit
//   - Stopped: terminal, on shutdown or stream closure
//
// A rate-limit signal pauses for the duration the server requested; any other
// processing failure pauses for the recovery delay (15s by default). The pause
// applies to the whole stream, commands included, which is the point: the
// rate limit is per-sender on the transport side.
//
// # Failure Isolation
//
// Within one fan-out, each recipient is attempted independently. A recipient
// that permanently blocks delivery is removed from the roster on the spot; a
// transiently failing recipient is skipped and retried on the next relayed
// message. Panics while processing an event are contained and surface as
// ordinary errors, so one malformed event cannot take the service down.
package relay
