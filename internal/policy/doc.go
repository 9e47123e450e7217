// Package policy owns the relay's durable policy document.
//
// # Overview
//
// The policy document is the single authority on relay behavior: who receives
// relayed messages, which keywords suppress a message, which senders are
// ignored, and whether source messages are deleted after relay. It lives in
// one JSON file and is mutated exclusively through the Store.
//
// # Document Format
//
// The file is a JSON object with four well-known keys:
//
//	{
//	  "recipients": [101, -100200300],
//	  "keywords": ["такси"],
//	  "ignored_users": [555],
//	  "delete_source_message": false
//	}
//
// Unknown keys are preserved verbatim across load/save cycles, so a newer
// build can leave data behind that an older build will not destroy.
//
// # Load Behavior
//
// Open never fails:
//
//   - Missing file: a default document is created and persisted.
//   - Partial document: missing keys are repaired with defaults; present
//     values are kept.
//   - Corrupt or unreadable file: the error is logged, an in-memory default
//     takes over, and the broken file is left untouched for manual recovery.
//
// # Mutation Semantics
//
// All set mutations are idempotent and report whether they changed anything.
// Every successful change is written back before the mutation returns, using
// a temp-file-plus-rename so the file on disk is always a complete document.
// When the write fails, set mutations roll back to the pre-call state and
// return an error wrapping ErrPersistence.
//
// # Concurrency
//
// Store methods are safe for concurrent use. Readers take a Snapshot, an
// independent copy that stays coherent for the duration of one relay
// operation regardless of concurrent mutations.
package policy
