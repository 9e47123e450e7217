// ABOUTME: Transport boundary between the relay core and the chat backend
// ABOUTME: Defines the event model, delivery operations, and error taxonomy

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanentlyBlocked is returned by delivery operations when the recipient
// can no longer be reached at all (blocked the bot, left the direct room).
// The fan-out treats it as a signal to prune the recipient from the roster.
var ErrPermanentlyBlocked = errors.New("recipient permanently blocked delivery")

// RateLimitedError carries the server-requested back-off duration. The run
// loop suspends the whole event stream for RetryAfter before resuming.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// EventKind distinguishes the two inbound event streams of the relay:
// messages observed in source channels and commands from private rooms.
type EventKind int

const (
	// KindChannelMessage is a message seen in one of the configured source channels.
	KindChannelMessage EventKind = iota
	// KindCommand is a message received in a private one-to-one room.
	KindCommand
)

// InboundMessage is a read-only view of a message delivered by the transport.
// The relay core never mutates it.
type InboundMessage struct {
	SenderID   int64
	ChannelID  int64
	MessageID  string
	Text       string
	SenderName string // display name or handle; empty when unknown
}

// Event is one unit of work for the run loop.
type Event struct {
	Kind    EventKind
	Message InboundMessage
}

// Transport is the capability set the relay core requires from the chat
// backend. Implementations own identifier resolution and connection state;
// the core only deals in numeric peer IDs and opaque message IDs.
type Transport interface {
	// Events returns the inbound event stream. The channel is closed when the
	// transport shuts down.
	Events() <-chan Event

	// Run connects to the backend and blocks until ctx is cancelled or the
	// connection fails irrecoverably.
	Run(ctx context.Context) error

	// Forward re-delivers the identified message to the recipient.
	Forward(ctx context.Context, toRecipient, fromChannel int64, messageID string) error

	// SendText sends a plain-text message to the recipient.
	SendText(ctx context.Context, toRecipient int64, text string) error

	// DeleteMessage removes the identified message from its channel.
	DeleteMessage(ctx context.Context, channel int64, messageID string) error
}
