// Package filter decides whether an inbound channel message is relayed.
//
// The decision chain is fixed: ignored sender, then blocked keyword, then
// deliver. The first matching stage wins and names the suppression reason.
// Keyword matching is case-insensitive substring containment over the message
// text; messages without text skip the keyword stage entirely.
package filter
