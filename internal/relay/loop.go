// ABOUTME: Serialized event-processing loop modeled as an explicit state machine
// ABOUTME: States: Running, Backoff(duration), Stopped; one event processed at a time

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/channel-relay/internal/filter"
	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

// State is the run loop's position in its lifecycle.
type State int

const (
	// StateRunning consumes and processes events.
	StateRunning State = iota
	// StateBackoff pauses the whole stream for a bounded duration.
	StateBackoff
	// StateStopped is terminal; reached only via shutdown or stream closure.
	StateStopped
)

// DefaultRecoveryDelay is the pause after an unexpected processing failure,
// bounding the restart rate against the transport.
const DefaultRecoveryDelay = 15 * time.Second

// CommandHandler processes private-room command messages.
type CommandHandler interface {
	HandleCommand(ctx context.Context, msg transport.InboundMessage) error
}

// Loop consumes the transport's event stream one event at a time: a message
// is filtered, fanned out, and optionally deleted before the next event is
// read, so partial relays never interleave. Commands ride the same stream
// and therefore never race relay reads of the policy document.
type Loop struct {
	store         *policy.Store
	transport     transport.Transport
	fanout        *Fanout
	commands      CommandHandler
	recoveryDelay time.Duration
	logger        *slog.Logger
}

// NewLoop wires the run loop. recoveryDelay <= 0 selects DefaultRecoveryDelay.
func NewLoop(store *policy.Store, tr transport.Transport, fanout *Fanout, commands CommandHandler, recoveryDelay time.Duration, logger *slog.Logger) *Loop {
	if recoveryDelay <= 0 {
		recoveryDelay = DefaultRecoveryDelay
	}
	return &Loop{
		store:         store,
		transport:     tr,
		fanout:        fanout,
		commands:      commands,
		recoveryDelay: recoveryDelay,
		logger:        logger.With("component", "loop"),
	}
}

// Run drives the state machine until ctx is cancelled or the event stream
// closes. Transitions:
//   - Running -> Backoff on a rate-limit signal (pause = signaled duration)
//   - Running -> Backoff on any other handler error (pause = recovery delay)
//   - Backoff -> Running when the pause elapses
//   - any -> Stopped on ctx cancellation; Running -> Stopped on stream close
func (l *Loop) Run(ctx context.Context) error {
	state := StateRunning
	var pause time.Duration
	var streamClosed bool

	for {
		switch state {
		case StateRunning:
			select {
			case <-ctx.Done():
				state = StateStopped
			case ev, ok := <-l.transport.Events():
				if !ok {
					streamClosed = true
					state = StateStopped
					continue
				}
				err := l.handle(ctx, ev)
				var rl *transport.RateLimitedError
				switch {
				case err == nil:
				case errors.As(err, &rl):
					l.logger.Warn("rate limited, pausing event stream", "retry_after", rl.RetryAfter)
					pause = rl.RetryAfter
					state = StateBackoff
				default:
					l.logger.Error("event processing failed, pausing before resume", "error", err, "pause", l.recoveryDelay)
					pause = l.recoveryDelay
					state = StateBackoff
				}
			}

		case StateBackoff:
			select {
			case <-ctx.Done():
				state = StateStopped
			case <-time.After(pause):
				state = StateRunning
			}

		case StateStopped:
			if streamClosed && ctx.Err() == nil {
				return fmt.Errorf("transport event stream closed")
			}
			l.logger.Info("run loop stopped")
			return nil
		}
	}
}

// handle processes one event to completion. Panics are contained and
// converted to errors so a single bad event cannot terminate the service.
func (l *Loop) handle(ctx context.Context, ev transport.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing event: %v", r)
		}
	}()

	switch ev.Kind {
	case transport.KindCommand:
		return l.commands.HandleCommand(ctx, ev.Message)
	case transport.KindChannelMessage:
		return l.relayMessage(ctx, ev.Message)
	default:
		l.logger.Debug("ignoring unknown event kind", "kind", ev.Kind)
		return nil
	}
}

func (l *Loop) relayMessage(ctx context.Context, msg transport.InboundMessage) error {
	snap := l.store.Snapshot()

	decision := filter.Decide(msg, snap)
	if !decision.Deliver {
		l.logger.Debug("message suppressed",
			"reason", decision.Reason,
			"sender", msg.SenderID,
			"channel", msg.ChannelID,
		)
		return nil
	}

	return l.fanout.Relay(ctx, msg, snap)
}
