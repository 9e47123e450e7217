// ABOUTME: Tests for the run loop state machine
// ABOUTME: Covers dispatch, backoff transitions, stream closure, and panic containment

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/channel-relay/internal/transport"
)

type fakeCommands struct {
	mu    sync.Mutex
	calls []transport.InboundMessage
	errs      []error
	panicOnce bool
}

func (f *fakeCommands) HandleCommand(ctx context.Context, msg transport.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnce {
		f.panicOnce = false
		panic("command handler blew up")
	}
	f.calls = append(f.calls, msg)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeCommands) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestLoop(t *testing.T, tr *fakeTransport, commands CommandHandler, delay time.Duration) *Loop {
	t.Helper()
	store := newTestStore(t)
	fanout := NewFanout(store, tr, testLogger())
	return NewLoop(store, tr, fanout, commands, delay, testLogger())
}

func runLoop(ctx context.Context, loop *Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	return done
}

func TestLoop_DispatchesCommands(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{}
	loop := newTestLoop(t, tr, commands, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{SenderID: 9, Text: "/status"}}

	require.Eventually(t, func() bool { return commands.callCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "/status", commands.calls[0].Text)
}

func TestLoop_RelaysChannelMessages(t *testing.T) {
	tr := newFakeTransport()
	loop := newTestLoop(t, tr, &fakeCommands{}, time.Millisecond)
	_, err := loop.store.AddRecipient(77)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindChannelMessage, Message: transport.InboundMessage{SenderID: 5, ChannelID: -1, MessageID: "m1", Text: "hello"}}

	require.Eventually(t, func() bool { return len(tr.forwardedTo()) == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, []int64{77}, tr.forwardedTo())
}

func TestLoop_SuppressedMessageNotRelayed(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{}
	loop := newTestLoop(t, tr, commands, time.Millisecond)
	_, err := loop.store.AddRecipient(77)
	require.NoError(t, err)
	_, err = loop.store.AddIgnored(5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindChannelMessage, Message: transport.InboundMessage{SenderID: 5, ChannelID: -1, MessageID: "m1", Text: "hello"}}
	// A follow-up command proves the suppressed message was fully consumed.
	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{SenderID: 9, Text: "/status"}}

	require.Eventually(t, func() bool { return commands.callCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Empty(t, tr.forwardedTo())
}

func TestLoop_RecoversAfterHandlerError(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{errs: []error{errors.New("boom")}}
	loop := newTestLoop(t, tr, commands, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/bad"}}
	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/good"}}

	// Both events are eventually processed; the second only after the pause.
	require.Eventually(t, func() bool { return commands.callCount() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestLoop_RateLimitPausesStream(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{errs: []error{&transport.RateLimitedError{RetryAfter: 20 * time.Millisecond}}}
	loop := newTestLoop(t, tr, commands, time.Hour) // recovery delay must not be used

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	start := time.Now()
	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/limited"}}
	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/after"}}

	require.Eventually(t, func() bool { return commands.callCount() == 2 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestLoop_PanicIsContained(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{panicOnce: true}
	loop := newTestLoop(t, tr, commands, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/crash"}}
	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/ok"}}

	require.Eventually(t, func() bool { return commands.callCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "/ok", commands.calls[0].Text)
}

func TestLoop_StreamClosureIsAnError(t *testing.T) {
	tr := newFakeTransport()
	loop := newTestLoop(t, tr, &fakeCommands{}, time.Millisecond)

	done := runLoop(context.Background(), loop)
	close(tr.events)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event stream closed")
}

func TestLoop_ContextCancelIsClean(t *testing.T) {
	tr := newFakeTransport()
	loop := newTestLoop(t, tr, &fakeCommands{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)
	cancel()

	assert.NoError(t, <-done)
}

func TestLoop_CancelDuringBackoff(t *testing.T) {
	tr := newFakeTransport()
	commands := &fakeCommands{errs: []error{errors.New("boom")}}
	loop := newTestLoop(t, tr, commands, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, loop)

	tr.events <- transport.Event{Kind: transport.KindCommand, Message: transport.InboundMessage{Text: "/bad"}}
	require.Eventually(t, func() bool { return commands.callCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop while backing off")
	}
}
