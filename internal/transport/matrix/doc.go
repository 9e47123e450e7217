// Package matrix implements the relay transport against a Matrix homeserver.
//
// # Overview
//
// The transport syncs with the homeserver via mautrix, turning room messages
// into relay events: messages in configured source rooms become channel
// messages, messages in one-to-one rooms become commands. Outbound delivery
// (forward, text, redact) goes through the same client.
//
// # Peer Directory
//
// Matrix identifiers are strings; the relay core works with int64 peer IDs.
// The SQLite-backed Directory records every peer the relay encounters under a
// stable FNV-1a derived ID and resolves IDs back to Matrix identifiers at
// delivery time. Direct (one-to-one) rooms are recorded per user so command
// replies and recipient deliveries can be routed without re-discovering them.
//
// # Error Mapping
//
// Matrix API errors are translated into the relay taxonomy:
//
//   - M_FORBIDDEN: the peer cannot be reached anymore, ErrPermanentlyBlocked
//   - M_LIMIT_EXCEEDED: RateLimitedError carrying the server's retry_after_ms
//   - anything else: passed through, treated as transient
//
// # Duplicate Suppression
//
// Sync can redeliver events after reconnects. Event IDs pass through a TTL
// cache before anything is emitted, and events timestamped before the process
// started are dropped so the initial sync's history replay is never relayed.
package matrix
