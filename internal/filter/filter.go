// ABOUTME: Pure relay decision function evaluated against a policy snapshot
// ABOUTME: First match wins: ignored sender, then blocked keyword, then deliver

package filter

import (
	"strings"

	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

// Reason identifies which stage of the chain decided the outcome.
type Reason string

const (
	ReasonIgnoredSender  Reason = "ignored-sender"
	ReasonBlockedKeyword Reason = "blocked-keyword"
	ReasonAllowed        Reason = "allowed"
)

// Decision is the outcome of evaluating one message against the policy.
type Decision struct {
	Deliver bool
	Reason  Reason
}

// Decide evaluates the message against the policy snapshot. Stages
// short-circuit: a message from an ignored sender is suppressed with
// ReasonIgnoredSender even when it also contains a blocked keyword.
// Messages without text skip keyword matching entirely.
func Decide(msg transport.InboundMessage, snap policy.Snapshot) Decision {
	for _, id := range snap.IgnoredUsers {
		if id == msg.SenderID {
			return Decision{Deliver: false, Reason: ReasonIgnoredSender}
		}
	}

	if msg.Text != "" {
		lowered := strings.ToLower(msg.Text)
		for _, word := range snap.Keywords {
			if word != "" && strings.Contains(lowered, word) {
				return Decision{Deliver: false, Reason: ReasonBlockedKeyword}
			}
		}
	}

	return Decision{Deliver: true, Reason: ReasonAllowed}
}
