// ABOUTME: Operator command surface: authorization gate plus policy mutations
// ABOUTME: Every command receives exactly one reply via the transport

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/transport"
)

// Gateway handles private-room commands. Every mutating or listing operation
// first checks the caller against the authorized-operator set; unauthorized
// callers get a permission-denied reply and nothing else is touched. Only
// "start" is open to any caller.
type Gateway struct {
	store     *policy.Store
	transport transport.Transport
	operators map[int64]struct{}
	logger    *slog.Logger
}

// NewGateway creates the command gateway for the given operator set.
func NewGateway(store *policy.Store, tr transport.Transport, operators []int64, logger *slog.Logger) *Gateway {
	ops := make(map[int64]struct{}, len(operators))
	for _, id := range operators {
		ops[id] = struct{}{}
	}
	return &Gateway{
		store:     store,
		transport: tr,
		operators: ops,
		logger:    logger.With("component", "admin"),
	}
}

const usageText = `Commands:
• start — show your ID
• status — show the current policy
• add <id> / remove <id> / list — manage recipients
• add_ignore <id> / remove_ignore <id> / list_ignored — manage ignored senders
• add_word <text> / remove_word <text> / list_words — manage blocked keywords
• toggle_delete — flip deletion of source messages after relay`

// HandleCommand parses and executes one command message, replying to the
// caller. Reply text depends only on the outcome: success confirmation,
// usage/validation message, permission denied, or a persistence-failure
// notice.
func (g *Gateway) HandleCommand(ctx context.Context, msg transport.InboundMessage) error {
	command, arg := parseCommand(msg.Text)
	if command == "" {
		return nil
	}

	if command == "start" {
		return g.reply(ctx, msg.SenderID, fmt.Sprintf("Hello! Your ID is %d.", msg.SenderID))
	}

	if _, ok := g.operators[msg.SenderID]; !ok {
		g.logger.Info("unauthorized command", "sender", msg.SenderID, "command", command)
		return g.reply(ctx, msg.SenderID, "You are not authorized to use this command.")
	}

	switch command {
	case "status":
		return g.reply(ctx, msg.SenderID, g.statusText())
	case "toggle_delete":
		return g.toggleDelete(ctx, msg.SenderID)
	case "add":
		return g.mutateID(ctx, msg.SenderID, command, arg, g.store.AddRecipient, "Recipient %d added.", "Recipient %d is already on the list.")
	case "remove":
		return g.mutateID(ctx, msg.SenderID, command, arg, g.store.RemoveRecipient, "Recipient %d removed.", "Recipient %d is not on the list.")
	case "list":
		return g.reply(ctx, msg.SenderID, listInt64("Current recipients", g.store.Snapshot().Recipients))
	case "add_ignore":
		return g.mutateID(ctx, msg.SenderID, command, arg, g.store.AddIgnored, "Sender %d is now ignored.", "Sender %d is already ignored.")
	case "remove_ignore":
		return g.mutateID(ctx, msg.SenderID, command, arg, g.store.RemoveIgnored, "Sender %d is no longer ignored.", "Sender %d was not ignored.")
	case "list_ignored":
		return g.reply(ctx, msg.SenderID, listInt64("Ignored senders", g.store.Snapshot().IgnoredUsers))
	case "add_word":
		return g.mutateWord(ctx, msg.SenderID, command, arg, g.store.AddKeyword, "Blocked keyword added: %q", "Keyword %q is already on the list.")
	case "remove_word":
		return g.mutateWord(ctx, msg.SenderID, command, arg, g.store.RemoveKeyword, "Blocked keyword removed: %q", "Keyword %q is not on the list.")
	case "list_words":
		return g.reply(ctx, msg.SenderID, listStrings("Blocked keywords", g.store.Snapshot().Keywords))
	default:
		return g.reply(ctx, msg.SenderID, usageText)
	}
}

// parseCommand splits a message into a command name and its raw argument.
// A leading "/" or "!" prefix is accepted and stripped.
func parseCommand(text string) (command, arg string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	parts := strings.SplitN(text, " ", 2)
	command = strings.ToLower(strings.TrimLeft(parts[0], "/!"))
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return command, arg
}

func (g *Gateway) toggleDelete(ctx context.Context, caller int64) error {
	enabled, err := g.store.ToggleDeleteSource()
	if err != nil {
		return g.persistenceReply(ctx, caller, err)
	}
	if enabled {
		return g.reply(ctx, caller, "Source messages will now be deleted after relay.")
	}
	return g.reply(ctx, caller, "Source messages will no longer be deleted after relay.")
}

// mutateID runs an add/remove mutation taking a numeric identifier.
// Identifiers may be negative (channel-style IDs are), so anything
// strconv.ParseInt accepts in base 10 is valid.
func (g *Gateway) mutateID(ctx context.Context, caller int64, command, arg string, op func(int64) (bool, error), changedFmt, unchangedFmt string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return g.reply(ctx, caller, fmt.Sprintf("Usage: %s <numeric id>", command))
	}
	changed, err := op(id)
	if err != nil {
		return g.persistenceReply(ctx, caller, err)
	}
	if changed {
		return g.reply(ctx, caller, fmt.Sprintf(changedFmt, id))
	}
	return g.reply(ctx, caller, fmt.Sprintf(unchangedFmt, id))
}

// mutateWord runs an add/remove mutation taking a keyword, normalized to
// trimmed lowercase before it reaches the store.
func (g *Gateway) mutateWord(ctx context.Context, caller int64, command, arg string, op func(string) (bool, error), changedFmt, unchangedFmt string) error {
	word := strings.ToLower(strings.TrimSpace(arg))
	if word == "" {
		return g.reply(ctx, caller, fmt.Sprintf("Usage: %s <word or phrase>", command))
	}
	changed, err := op(word)
	if err != nil {
		return g.persistenceReply(ctx, caller, err)
	}
	if changed {
		return g.reply(ctx, caller, fmt.Sprintf(changedFmt, word))
	}
	return g.reply(ctx, caller, fmt.Sprintf(unchangedFmt, word))
}

func (g *Gateway) statusText() string {
	snap := g.store.Snapshot()
	deleteState := "off"
	if snap.DeleteSourceMessage {
		deleteState = "on"
	}
	return fmt.Sprintf("Recipients: %s\nBlocked keywords: %s\nIgnored senders: %s\nDelete source after relay: %s",
		joinInt64(snap.Recipients), joinStrings(snap.Keywords), joinInt64(snap.IgnoredUsers), deleteState)
}

func (g *Gateway) persistenceReply(ctx context.Context, caller int64, err error) error {
	g.logger.Error("policy mutation failed", "error", err)
	if sendErr := g.reply(ctx, caller, "Saving the policy failed; the change may not survive a restart. Please retry."); sendErr != nil {
		return sendErr
	}
	return nil
}

// reply sends the single response for a command. Rate-limit errors propagate
// so the run loop can pause the stream; other send failures are logged and
// swallowed, since the command itself already completed.
func (g *Gateway) reply(ctx context.Context, to int64, text string) error {
	err := g.transport.SendText(ctx, to, text)
	if err == nil {
		return nil
	}
	var rl *transport.RateLimitedError
	if errors.As(err, &rl) {
		return err
	}
	g.logger.Warn("sending command reply", "to", to, "error", err)
	return nil
}

func listInt64(title string, ids []int64) string {
	if len(ids) == 0 {
		return title + ": the list is empty."
	}
	var b strings.Builder
	b.WriteString(title + ":")
	for _, id := range ids {
		fmt.Fprintf(&b, "\n• %d", id)
	}
	return b.String()
}

func listStrings(title string, words []string) string {
	if len(words) == 0 {
		return title + ": the list is empty."
	}
	var b strings.Builder
	b.WriteString(title + ":")
	for _, w := range words {
		fmt.Fprintf(&b, "\n• %s", w)
	}
	return b.String()
}

func joinInt64(ids []int64) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func joinStrings(words []string) string {
	if len(words) == 0 {
		return "(none)"
	}
	return strings.Join(words, ", ")
}
