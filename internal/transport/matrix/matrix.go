// ABOUTME: Matrix-backed Transport implementation using mautrix
// ABOUTME: Translates sync events, delivery calls, and Matrix errors for the relay core

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/channel-relay/internal/transport"
)

// Config holds the Matrix connection settings and the room/operator topology.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// SourceRooms are the channels whose messages are considered for relay.
	SourceRooms []string
}

const (
	// eventBuffer bounds the inbound queue between sync and the run loop.
	eventBuffer = 256
	// seenTTL and seenMax size the duplicate-event window.
	seenTTL = 5 * time.Minute
	seenMax = 10000
)

// Transport implements transport.Transport against a Matrix homeserver.
// Numeric peer IDs are resolved through the persistent Directory; the relay
// core never sees a Matrix identifier.
type Transport struct {
	client *mautrix.Client
	dir    *Directory
	logger *slog.Logger

	userID  id.UserID
	sources map[id.RoomID]int64
	rooms   map[int64]id.RoomID
	events  chan transport.Event
	seen    *seenCache

	// startTime filters out messages replayed by the initial sync.
	startTime time.Time
}

// New creates the Matrix transport. The source rooms are recorded in the
// directory immediately so their numeric channel IDs resolve from the start.
func New(cfg Config, dir *Directory, logger *slog.Logger) (*Transport, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	t := &Transport{
		client:    client,
		dir:       dir,
		logger:    logger.With("component", "matrix"),
		userID:    id.UserID(cfg.UserID),
		sources:   make(map[id.RoomID]int64, len(cfg.SourceRooms)),
		rooms:     make(map[int64]id.RoomID, len(cfg.SourceRooms)),
		events:    make(chan transport.Event, eventBuffer),
		seen:      newSeenCache(seenTTL, seenMax),
		startTime: time.Now(),
	}

	for _, room := range cfg.SourceRooms {
		roomID := id.RoomID(room)
		peerID, err := dir.RecordRoom(context.Background(), roomID)
		if err != nil {
			return nil, fmt.Errorf("recording source room %s: %w", room, err)
		}
		t.sources[roomID] = peerID
		t.rooms[peerID] = roomID
	}

	return t, nil
}

// SourceChannelIDs returns the numeric IDs of the configured source rooms.
func (t *Transport) SourceChannelIDs() []int64 {
	ids := make([]int64, 0, len(t.rooms))
	for peerID := range t.rooms {
		ids = append(ids, peerID)
	}
	return ids
}

// Events returns the inbound event stream.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Run starts syncing with the homeserver and blocks until ctx is cancelled
// or the sync fails. The event channel is closed on return.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.events)

	syncer, ok := t.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", t.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, t.handleMessageEvent)
	syncer.OnEventType(event.StateMember, t.handleMemberEvent)

	t.logger.Info("connecting to matrix homeserver", "user_id", t.userID)
	err := t.client.SyncWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	return nil
}

// handleMessageEvent turns a sync message event into a relay event.
func (t *Transport) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == t.userID {
		return
	}
	// Initial sync replays recent history; only live events are relayed.
	if time.UnixMilli(evt.Timestamp).Before(t.startTime) {
		return
	}
	if t.seen.checkAndMark(evt.ID.String()) {
		t.logger.Debug("dropping duplicate event", "event_id", evt.ID)
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	text := ""
	if content.MsgType == event.MsgText {
		text = content.Body
	}

	senderID, err := t.dir.RecordUser(ctx, evt.Sender, evt.Sender.Localpart())
	if err != nil {
		t.logger.Error("recording sender", "sender", evt.Sender, "error", err)
		return
	}

	msg := transport.InboundMessage{
		SenderID:   senderID,
		MessageID:  evt.ID.String(),
		Text:       text,
		SenderName: evt.Sender.Localpart(),
	}

	if channelID, isSource := t.sources[evt.RoomID]; isSource {
		msg.ChannelID = channelID
		t.emit(ctx, transport.Event{Kind: transport.KindChannelMessage, Message: msg})
		return
	}

	// Commands are accepted from private one-to-one rooms only.
	if !t.isDirectRoom(ctx, evt.RoomID, evt.Sender) {
		t.logger.Debug("ignoring message from non-source, non-direct room", "room", evt.RoomID)
		return
	}
	if text == "" {
		return
	}
	msg.ChannelID = PeerID(evt.RoomID.String())
	t.emit(ctx, transport.Event{Kind: transport.KindCommand, Message: msg})
}

// handleMemberEvent auto-joins rooms the bot is invited to, recording
// direct-chat invitations in the directory so replies can be routed.
func (t *Transport) handleMemberEvent(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsMember()
	if content == nil || content.Membership != event.MembershipInvite {
		return
	}
	if id.UserID(evt.GetStateKey()) != t.userID {
		return
	}

	if _, err := t.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		t.logger.Warn("joining invited room", "room", evt.RoomID, "error", err)
		return
	}
	t.logger.Info("joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)

	if content.IsDirect {
		if err := t.dir.SetDirectRoom(ctx, evt.Sender, evt.RoomID); err != nil {
			t.logger.Error("recording direct room", "room", evt.RoomID, "error", err)
		}
	}
}

// isDirectRoom reports whether roomID is a one-to-one room with sender,
// consulting the directory first and falling back to the member list.
func (t *Transport) isDirectRoom(ctx context.Context, roomID id.RoomID, sender id.UserID) bool {
	if user, ok, err := t.dir.UserForDirectRoom(ctx, roomID); err == nil && ok {
		return user == sender
	}

	members, err := t.client.JoinedMembers(ctx, roomID)
	if err != nil {
		t.logger.Warn("listing room members", "room", roomID, "error", err)
		return false
	}
	if len(members.Joined) != 2 {
		return false
	}
	if _, botPresent := members.Joined[t.userID]; !botPresent {
		return false
	}
	if _, senderPresent := members.Joined[sender]; !senderPresent {
		return false
	}
	if err := t.dir.SetDirectRoom(ctx, sender, roomID); err != nil {
		t.logger.Error("recording direct room", "room", roomID, "error", err)
	}
	return true
}

// emit delivers an event to the run loop, respecting shutdown.
func (t *Transport) emit(ctx context.Context, ev transport.Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

// Forward fetches the original message from its source room and re-sends its
// content to the recipient, preserving the message body verbatim.
func (t *Transport) Forward(ctx context.Context, toRecipient, fromChannel int64, messageID string) error {
	sourceRoom, ok := t.rooms[fromChannel]
	if !ok {
		matrixID, kind, err := t.dir.Resolve(ctx, fromChannel)
		if err != nil || kind != peerKindRoom {
			return fmt.Errorf("unknown source channel %d", fromChannel)
		}
		sourceRoom = id.RoomID(matrixID)
	}

	evt, err := t.client.GetEvent(ctx, sourceRoom, id.EventID(messageID))
	if err != nil {
		return fmt.Errorf("fetching source message: %w", t.mapError(err))
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil {
		return fmt.Errorf("parsing source message: %w", err)
	}

	target, err := t.deliveryRoom(ctx, toRecipient)
	if err != nil {
		return err
	}

	if _, err := t.client.SendMessageEvent(ctx, target, event.EventMessage, evt.Content.Parsed); err != nil {
		return fmt.Errorf("forwarding to %d: %w", toRecipient, t.mapError(err))
	}
	return nil
}

// SendText sends a plain-text message to the recipient.
func (t *Transport) SendText(ctx context.Context, toRecipient int64, text string) error {
	target, err := t.deliveryRoom(ctx, toRecipient)
	if err != nil {
		return err
	}
	if _, err := t.client.SendText(ctx, target, text); err != nil {
		return fmt.Errorf("sending to %d: %w", toRecipient, t.mapError(err))
	}
	return nil
}

// DeleteMessage redacts the identified message in its channel.
func (t *Transport) DeleteMessage(ctx context.Context, channel int64, messageID string) error {
	room, ok := t.rooms[channel]
	if !ok {
		matrixID, kind, err := t.dir.Resolve(ctx, channel)
		if err != nil || kind != peerKindRoom {
			return fmt.Errorf("unknown channel %d", channel)
		}
		room = id.RoomID(matrixID)
	}
	if _, err := t.client.RedactEvent(ctx, room, id.EventID(messageID)); err != nil {
		return fmt.Errorf("redacting message: %w", t.mapError(err))
	}
	return nil
}

// deliveryRoom resolves a recipient peer to the room messages are sent to:
// room peers deliver in place, user peers deliver to their direct room,
// created on demand.
func (t *Transport) deliveryRoom(ctx context.Context, recipient int64) (id.RoomID, error) {
	matrixID, kind, err := t.dir.Resolve(ctx, recipient)
	if err != nil {
		if errors.Is(err, ErrUnknownPeer) {
			// Never-seen recipients cannot be reached at all; treat as a
			// permanent failure so the roster self-heals.
			return "", fmt.Errorf("recipient %d: %w", recipient, transport.ErrPermanentlyBlocked)
		}
		return "", err
	}

	if kind == peerKindRoom {
		return id.RoomID(matrixID), nil
	}

	if room, ok, err := t.dir.DirectRoom(ctx, recipient); err != nil {
		return "", err
	} else if ok {
		return room, nil
	}

	resp, err := t.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{id.UserID(matrixID)},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", fmt.Errorf("creating direct room for %d: %w", recipient, t.mapError(err))
	}
	if err := t.dir.SetDirectRoom(ctx, id.UserID(matrixID), resp.RoomID); err != nil {
		t.logger.Error("recording created direct room", "room", resp.RoomID, "error", err)
	}
	return resp.RoomID, nil
}

// mapError translates Matrix API errors into the relay error taxonomy:
// M_FORBIDDEN becomes a permanent block, M_LIMIT_EXCEEDED a rate-limit
// signal carrying the server's retry_after_ms. Everything else passes
// through as a transient failure.
func (t *Transport) mapError(err error) error {
	var httpErr mautrix.HTTPError
	if !errors.As(err, &httpErr) || httpErr.RespError == nil {
		return err
	}

	switch httpErr.RespError.ErrCode {
	case mautrix.MForbidden.ErrCode:
		return fmt.Errorf("%s: %w", httpErr.RespError.Err, transport.ErrPermanentlyBlocked)
	case mautrix.MLimitExceeded.ErrCode:
		retry := 5 * time.Second
		if ms, ok := httpErr.RespError.ExtraData["retry_after_ms"].(float64); ok && ms > 0 {
			retry = time.Duration(ms) * time.Millisecond
		}
		return &transport.RateLimitedError{RetryAfter: retry}
	default:
		return err
	}
}
