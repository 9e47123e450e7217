// ABOUTME: Shared fakes for relay package tests
// ABOUTME: Scriptable in-memory Transport recording delivery calls

package relay

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

type forwardCall struct {
	Recipient int64
	Channel   int64
	MessageID string
}

type textCall struct {
	Recipient int64
	Text      string
}

type deleteCall struct {
	Channel   int64
	MessageID string
}

// fakeTransport records delivery calls and returns scripted per-recipient
// errors. Events are fed by tests through the events channel.
type fakeTransport struct {
	mu     sync.Mutex
	events chan transport.Event

	forwards []forwardCall
	texts    []textCall
	deletes  []deleteCall

	forwardErr map[int64]error
	sendErr    map[int64]error
	deleteErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:     make(chan transport.Event, 16),
		forwardErr: make(map[int64]error),
		sendErr:    make(map[int64]error),
	}
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) Forward(ctx context.Context, toRecipient, fromChannel int64, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, forwardCall{toRecipient, fromChannel, messageID})
	return f.forwardErr[toRecipient]
}

func (f *fakeTransport) SendText(ctx context.Context, toRecipient int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, textCall{toRecipient, text})
	return f.sendErr[toRecipient]
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, channel int64, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{channel, messageID})
	return f.deleteErr
}

func (f *fakeTransport) forwardedTo() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(f.forwards))
	for i, c := range f.forwards {
		ids[i] = c.Recipient
	}
	return ids
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *policy.Store {
	t.Helper()
	return policy.Open(filepath.Join(t.TempDir(), "policy.json"), testLogger())
}
