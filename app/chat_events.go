package roomchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/putto11262002/roomchat/core"
	"github.com/putto11262002/roomchat/pkg/sanitize"
)

// inbound
const (
	AuthEvent           = "auth"
	MessageEvent        = "message"
	GetHistoryEvent     = "get_history"
	DeleteMessageEvent  = "delete_message"
	JoinChatEvent       = "join_chat"
	GenerateInviteEvent = "generate_invite"
	SubmitAppealEvent   = "submit_appeal"
	BanUserEvent        = "ban_user"
)

// outbound, besides MessageEvent, DeleteMessageEvent and core.ErrorEvent
const (
	ChatHistoryEvent  = "chat_history"
	UserBannedEvent   = "user_banned"
	InviteCodeEvent   = "invite_code"
	NotificationEvent = "notification"
)

const imageURLPrefix = "/images/"

var (
	errNotAuthenticated = core.NewInsensitiveError(core.KindAuthRequired, "Not authenticated")
	errIdentityMismatch = core.NewInsensitiveError(core.KindAuthRequired, "Identity mismatch")
	errBannedSender     = core.NewInsensitiveError(core.KindPermissionDenied, "You are banned and cannot send messages")
	errSecretDenied     = core.NewInsensitiveError(core.KindPermissionDenied, "Access denied to secret chat")
	errDeleteDenied     = core.NewInsensitiveError(core.KindPermissionDenied, "You are not allowed to delete this message")
	errBanDenied        = core.NewInsensitiveError(core.KindPermissionDenied, "You are not allowed to ban users")
	errUserNotFound     = core.NewInsensitiveError(core.KindNotFound, "User not found")
	errEmptyMessage     = core.NewInsensitiveError(core.KindValidationFailed, "Empty message")
	errInvalidImageURL  = core.NewInsensitiveError(core.KindValidationFailed, "Invalid image url")
	errSlowDown         = core.NewInsensitiveError(core.KindRateLimited, "Slow down")
)

// maxCount bounds a decoded Count.
const maxCount = math.MaxInt32

// Count is an integer that clients may send as a JSON number or a numeric
// string. Values beyond maxCount are clamped and anything else decodes as
// zero.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		*c = 0
		return nil
	}
	*c = Count(min(max(f, -maxCount), maxCount))
	return nil
}

// OrDefault returns the count, or def when it is not positive.
func (c Count) OrDefault(def int) int {
	if c < 1 {
		return def
	}
	return int(c)
}

type AuthEventPayload struct {
	Username string `json:"username"`
}

type MessageEventPayload struct {
	Chat     string         `json:"chat"`
	Text     *string        `json:"text"`
	ReplyTo  *core.ReplyRef `json:"replyTo"`
	IsImage  bool           `json:"isImage"`
	ImageURL *string        `json:"imageUrl"`
}

type GetHistoryEventPayload struct {
	Chat string `json:"chat"`
}

type DeleteMessageEventPayload struct {
	Chat      string `json:"chat"`
	MessageID string `json:"messageId"`
}

type JoinChatEventPayload struct {
	Code string `json:"code"`
}

type GenerateInviteEventPayload struct {
	MaxUses Count `json:"maxUses"`
}

type SubmitAppealEventPayload struct {
	Appeal string `json:"appeal"`
}

type BanUserEventPayload struct {
	Username string `json:"username"`
	Duration Count  `json:"duration"`
	Reason   string `json:"reason"`
}

type ChatHistoryEventPayload struct {
	Chat     string         `json:"chat"`
	Messages []core.Message `json:"messages"`
}

type UserBannedEventPayload struct {
	Moderator string `json:"moderator"`
	Duration  int    `json:"duration"`
	Reason    string `json:"reason"`
}

type InviteCodeEventPayload struct {
	Code string `json:"code"`
}

type NotificationEventPayload struct {
	Message string `json:"message"`
}

func decodePayload(e *core.Event, v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s event payload: %w", e.Type, err)
	}
	return nil
}

// identity returns the identity bound to the connection the event came from.
func (app *App) identity(e *core.Event) (core.Identity, error) {
	identity, ok := app.wsManager.Identity(e.ConnID)
	if !ok {
		return core.Identity{}, errNotAuthenticated
	}
	return identity, nil
}

func (app *App) notify(connID int, message string) error {
	return app.eventRouter.EmitToConn(NotificationEvent, NotificationEventPayload{Message: message}, connID)
}

// AuthEventHandler binds the connection to a user. The first bind wins;
// later auth events on the same connection are ignored.
func (app *App) AuthEventHandler(ctx context.Context, e *core.Event) error {
	var payload AuthEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	if payload.Username == "" {
		return nil
	}
	if _, bound := app.wsManager.Identity(e.ConnID); bound {
		return nil
	}
	if app.config.Auth.StrictRealtime && payload.Username != app.wsManager.SessionUser(e.ConnID) {
		return errIdentityMismatch
	}

	identity := core.Identity{
		Username: payload.Username,
		IsAdmin:  app.admins.IsAdmin(payload.Username),
	}
	if app.wsManager.Bind(e.ConnID, identity) {
		app.logger.Debug("connection authenticated",
			slog.Int("connection", e.ConnID), slog.String("user", identity.Username))
	}
	return nil
}

func (app *App) MessageEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	var payload MessageEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if payload.Text != nil && strings.HasPrefix(*payload.Text, "/") {
		if handled, err := app.runCommand(ctx, e.ConnID, identity, payload.Chat, *payload.Text); handled {
			return err
		}
	}

	now := app.now()
	if _, banned := app.bans.BannedUntil(ctx, identity.Username, now); banned {
		return errBannedSender
	}
	if !core.IsRoom(payload.Chat) {
		return core.ErrInvalidRoom
	}
	if payload.Chat == core.SecretRoom && !app.admins.IsSuperAdmin(identity.Username) {
		return errSecretDenied
	}

	msg := core.Message{
		Chat:     payload.Chat,
		Username: identity.Username,
		IsAdmin:  identity.IsAdmin,
		IsImage:  payload.IsImage,
	}
	if payload.Text != nil {
		if text := sanitize.Text(*payload.Text); text != "" {
			msg.Text = &text
		}
	}
	if payload.IsImage {
		if payload.ImageURL == nil || !strings.HasPrefix(*payload.ImageURL, imageURLPrefix) ||
			strings.Contains(*payload.ImageURL, "..") {
			return errInvalidImageURL
		}
		msg.ImageURL = payload.ImageURL
	} else if msg.Text == nil {
		return errEmptyMessage
	}
	if ref := payload.ReplyTo; ref != nil && ref.ID != "" {
		msg.ReplyTo = &core.ReplyRef{
			ID:       ref.ID,
			Username: sanitize.Text(ref.Username),
			Text:     sanitize.Text(ref.Text),
		}
	}

	if !app.limiter.Allow(identity.Username, now) {
		return errSlowDown
	}

	stored, err := app.chatStore.AppendMessage(ctx, msg)
	if err != nil {
		return err
	}
	return app.broadcast(stored.Chat, MessageEvent, stored)
}

// GetHistoryEventHandler sends the log of a room to the requesting
// connection. Unknown rooms are ignored.
func (app *App) GetHistoryEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	var payload GetHistoryEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	if !core.IsRoom(payload.Chat) {
		return nil
	}
	if payload.Chat == core.SecretRoom && !app.admins.IsSuperAdmin(identity.Username) {
		return errSecretDenied
	}

	messages, err := app.chatStore.Messages(ctx, payload.Chat)
	if err != nil {
		return err
	}
	return app.eventRouter.EmitToConn(ChatHistoryEvent,
		ChatHistoryEventPayload{Chat: payload.Chat, Messages: messages}, e.ConnID)
}

func (app *App) DeleteMessageEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	var payload DeleteMessageEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	_, err = app.chatStore.DeleteMessage(ctx, payload.Chat, payload.MessageID, func(m core.Message) error {
		if m.Username != identity.Username && !identity.IsAdmin {
			return errDeleteDenied
		}
		return nil
	})
	if err != nil {
		return err
	}
	return app.broadcast(payload.Chat, DeleteMessageEvent, payload)
}

func (app *App) JoinChatEventHandler(ctx context.Context, e *core.Event) error {
	if _, err := app.identity(e); err != nil {
		return err
	}
	var payload JoinChatEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if _, err := app.invites.RedeemInvite(ctx, payload.Code); err != nil {
		return err
	}
	return app.notify(e.ConnID, fmt.Sprintf("You have joined the chat with code %s", payload.Code))
}

func (app *App) GenerateInviteEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	if !app.admins.IsSuperAdmin(identity.Username) {
		return core.NewInsensitiveError(core.KindPermissionDenied,
			fmt.Sprintf("Only %s can generate invite codes", app.admins.SuperAdmin()))
	}
	var payload GenerateInviteEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	code, err := app.invites.CreateInvite(ctx, identity.Username, payload.MaxUses.OrDefault(1))
	if err != nil {
		return err
	}
	return app.eventRouter.EmitToConn(InviteCodeEvent, InviteCodeEventPayload{Code: code}, e.ConnID)
}

// SubmitAppealEventHandler posts the appeal as a system message to the
// appeal room.
func (app *App) SubmitAppealEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	var payload SubmitAppealEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	text := fmt.Sprintf("APPEAL from %s: %s", identity.Username, sanitize.Text(payload.Appeal))
	stored, err := app.chatStore.AppendMessage(ctx, core.Message{
		Chat:     core.AppealRoom,
		Text:     &text,
		Username: core.SystemUsername,
		IsAdmin:  true,
	})
	if err != nil {
		return err
	}
	if err := app.broadcast(core.AppealRoom, MessageEvent, stored); err != nil {
		return err
	}
	return app.notify(e.ConnID, "Your appeal has been submitted")
}

func (app *App) BanUserEventHandler(ctx context.Context, e *core.Event) error {
	identity, err := app.identity(e)
	if err != nil {
		return err
	}
	var payload BanUserEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	return app.banUser(ctx, e.ConnID, identity, payload.Username, payload.Duration.OrDefault(1), payload.Reason)
}
