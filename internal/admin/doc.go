// Package admin provides the operator command surface.
//
// # Overview
//
// Operators steer the relay by sending commands in a private room. Commands
// arrive on the same event stream as channel messages and are executed by the
// Gateway, which mutates the policy store and sends exactly one reply per
// command.
//
// # Commands
//
//   - start: show the caller's numeric ID (open to anyone)
//   - status: show the current policy
//   - add / remove / list: manage the recipient roster
//   - add_ignore / remove_ignore / list_ignored: manage ignored senders
//   - add_word / remove_word / list_words: manage blocked keywords
//   - toggle_delete: flip deletion of source messages after relay
//
// A leading "/" or "!" is accepted and command names are case-insensitive.
//
// # Authorization
//
// Every command except "start" checks the caller against the configured
// operator set. Unauthorized callers get a denial reply; nothing else
// happens. "start" exists precisely so a prospective operator can learn the
// ID an existing operator needs to authorize.
package admin
