// ABOUTME: Sequential delivery fan-out with per-recipient failure isolation
// ABOUTME: Prunes permanently blocked recipients and honors the delete-source flag

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

// Fanout delivers one message to every recipient in the roster, one at a
// time. Sequential delivery bounds the outbound call rate and keeps failure
// isolation simple: one recipient's failure never affects the others.
type Fanout struct {
	store     *policy.Store
	transport transport.Transport
	logger    *slog.Logger
}

// NewFanout creates a delivery fan-out backed by the given store and transport.
func NewFanout(store *policy.Store, tr transport.Transport, logger *slog.Logger) *Fanout {
	return &Fanout{
		store:     store,
		transport: tr,
		logger:    logger.With("component", "fanout"),
	}
}

// Relay forwards msg plus a sender annotation to each recipient in snap.
// Per-recipient outcomes:
//   - success: continue
//   - permanent block: remove the recipient from the roster and continue
//   - rate limit: abort the batch and propagate, the loop pauses the stream
//   - anything else: log and continue; the recipient is retried on the next
//     relayed message, not within this call
//
// After the loop, the source message is deleted when the policy flag is set;
// a deletion failure is logged and does not affect recorded outcomes.
func (f *Fanout) Relay(ctx context.Context, msg transport.InboundMessage, snap policy.Snapshot) error {
	relayID := uuid.NewString()
	logger := f.logger.With("relay_id", relayID, "channel", msg.ChannelID, "message", msg.MessageID)

	annotation := annotationText(msg)

	for _, recipient := range snap.Recipients {
		err := f.transport.Forward(ctx, recipient, msg.ChannelID, msg.MessageID)
		if err == nil {
			err = f.transport.SendText(ctx, recipient, annotation)
		}
		if err == nil {
			continue
		}

		var rl *transport.RateLimitedError
		switch {
		case errors.Is(err, transport.ErrPermanentlyBlocked):
			logger.Info("recipient blocked delivery, unsubscribing", "recipient", recipient)
			if _, rmErr := f.store.RemoveRecipient(recipient); rmErr != nil {
				logger.Error("removing blocked recipient", "recipient", recipient, "error", rmErr)
			}
		case errors.As(err, &rl):
			return fmt.Errorf("delivering to %d: %w", recipient, err)
		default:
			logger.Warn("delivery failed, will retry on next message", "recipient", recipient, "error", err)
		}
	}

	if snap.DeleteSourceMessage {
		if err := f.transport.DeleteMessage(ctx, msg.ChannelID, msg.MessageID); err != nil {
			logger.Warn("deleting source message", "error", err)
		}
	}

	return nil
}

// annotationText builds the informational follow-up identifying the sender.
func annotationText(msg transport.InboundMessage) string {
	if msg.SenderName != "" {
		return fmt.Sprintf("Forwarded from %s (%d)", msg.SenderName, msg.SenderID)
	}
	return fmt.Sprintf("Forwarded from %d", msg.SenderID)
}
