// ABOUTME: Tests for the relay decision chain
// ABOUTME: Validates stage ordering, substring matching, and non-text handling

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

func TestDecide(t *testing.T) {
	snap := policy.Snapshot{
		Keywords:     []string{"такси", "spam"},
		IgnoredUsers: []int64{666},
	}

	tests := []struct {
		name    string
		msg     transport.InboundMessage
		deliver bool
		reason  Reason
	}{
		{
			name:    "clean message delivers",
			msg:     transport.InboundMessage{SenderID: 1, Text: "hello there"},
			deliver: true,
			reason:  ReasonAllowed,
		},
		{
			name:    "ignored sender suppressed",
			msg:     transport.InboundMessage{SenderID: 666, Text: "hello"},
			deliver: false,
			reason:  ReasonIgnoredSender,
		},
		{
			name:    "ignored sender wins over blocked keyword",
			msg:     transport.InboundMessage{SenderID: 666, Text: "spam spam spam"},
			deliver: false,
			reason:  ReasonIgnoredSender,
		},
		{
			name:    "keyword substring match is case-insensitive",
			msg:     transport.InboundMessage{SenderID: 1, Text: "Нужно ТАКСИ срочно"},
			deliver: false,
			reason:  ReasonBlockedKeyword,
		},
		{
			name:    "keyword inside a longer word still matches",
			msg:     transport.InboundMessage{SenderID: 1, Text: "antispammer"},
			deliver: false,
			reason:  ReasonBlockedKeyword,
		},
		{
			name:    "non-text message skips keyword stage",
			msg:     transport.InboundMessage{SenderID: 1, Text: ""},
			deliver: true,
			reason:  ReasonAllowed,
		},
		{
			name:    "non-text message from ignored sender still suppressed",
			msg:     transport.InboundMessage{SenderID: 666, Text: ""},
			deliver: false,
			reason:  ReasonIgnoredSender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(tt.msg, snap)
			assert.Equal(t, tt.deliver, decision.Deliver)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestDecide_EmptyPolicy(t *testing.T) {
	decision := Decide(transport.InboundMessage{SenderID: 1, Text: "anything"}, policy.Snapshot{})
	assert.True(t, decision.Deliver)
	assert.Equal(t, ReasonAllowed, decision.Reason)
}
