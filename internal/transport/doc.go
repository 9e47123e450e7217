// Package transport defines the messaging abstraction the relay core is
// written against.
//
// The relay deals in numeric peer IDs and opaque message IDs; a Transport
// implementation owns the mapping to its network's native identifiers.
// Delivery failures are classified into the taxonomy the relay core acts on:
// ErrPermanentlyBlocked prunes a recipient, RateLimitedError pauses the
// event stream, and anything else is treated as transient.
package transport
