package roomchat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/putto11262002/roomchat/core"
	"github.com/putto11262002/roomchat/pkg/sanitize"
)

const defaultBanReason = "No reason provided"

var errBanUsage = core.NewInsensitiveError(core.KindValidationFailed, "Usage: /ban username days reason")

// CommandCall is a slash command parsed from a chat message.
type CommandCall struct {
	ConnID   int
	Identity core.Identity
	Chat     string
	Args     []string
}

type Command struct {
	AdminOnly bool
	Run       func(ctx context.Context, call CommandCall) error
}

func (app *App) commandTable() map[string]Command {
	return map[string]Command{
		"ban":   {AdminOnly: true, Run: app.banCommand},
		"clear": {AdminOnly: true, Run: app.clearCommand},
		// consumed without effect
		"kick": {Run: func(context.Context, CommandCall) error { return nil }},
	}
}

// runCommand runs the slash command in text. It reports false when text is
// not a command the user may run, in which case the text is posted as an
// ordinary message.
func (app *App) runCommand(ctx context.Context, connID int, identity core.Identity, chat, text string) (bool, error) {
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return false, nil
	}
	cmd, ok := app.commands[strings.ToLower(fields[0])]
	if !ok || (cmd.AdminOnly && !identity.IsAdmin) {
		return false, nil
	}

	app.logger.Debug("running command", slog.String("command", fields[0]), slog.String("user", identity.Username))
	return true, cmd.Run(ctx, CommandCall{
		ConnID:   connID,
		Identity: identity,
		Chat:     chat,
		Args:     fields[1:],
	})
}

func (app *App) banCommand(ctx context.Context, call CommandCall) error {
	if len(call.Args) < 2 {
		return errBanUsage
	}
	days, _ := strconv.Atoi(call.Args[1])
	days = min(max(days, 1), maxCount)
	return app.banUser(ctx, call.ConnID, call.Identity, call.Args[0], days, strings.Join(call.Args[2:], " "))
}

// clearCommand empties a room and tells every client. The notice is not
// stored.
func (app *App) clearCommand(ctx context.Context, call CommandCall) error {
	if !core.IsRoom(call.Chat) {
		return core.ErrRoomNotFound
	}
	if call.Chat == core.SecretRoom && !app.admins.IsSuperAdmin(call.Identity.Username) {
		return errSecretDenied
	}
	if err := app.chatStore.ClearRoom(ctx, call.Chat); err != nil {
		return err
	}

	id, err := app.chatStore.NewMessageID()
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Chat has been cleared by %s", call.Identity.Username)
	return app.broadcast(call.Chat, MessageEvent, core.Message{
		ID:        id,
		Chat:      call.Chat,
		Text:      &text,
		Username:  core.SystemUsername,
		IsAdmin:   true,
		Timestamp: app.now().UnixMilli(),
	})
}

// banUser bans target for days and tells both the banned user and the
// moderator.
func (app *App) banUser(ctx context.Context, connID int, moderator core.Identity, target string, days int, reason string) error {
	if !moderator.IsAdmin {
		return errBanDenied
	}
	if !app.users.UserExists(ctx, target) {
		return errUserNotFound
	}
	if app.admins.IsSuperAdmin(target) {
		return core.NewInsensitiveError(core.KindPermissionDenied,
			fmt.Sprintf("Cannot ban %s", app.admins.SuperAdmin()))
	}
	if reason = sanitize.Text(reason); reason == "" {
		reason = defaultBanReason
	}

	if err := app.bans.Ban(ctx, target, core.BanExpiry(app.now(), days)); err != nil {
		return err
	}
	app.logger.Info("user banned", slog.String("user", target), slog.String("moderator", moderator.Username),
		slog.Int("days", days))

	banned := UserBannedEventPayload{Moderator: moderator.Username, Duration: days, Reason: reason}
	if err := app.eventRouter.EmitTo(UserBannedEvent, banned, target); err != nil {
		return err
	}
	return app.notify(connID, fmt.Sprintf("User %s has been banned for %d days", target, days))
}

// broadcast sends an event about room to every connection. Events about the
// secret room only reach the super-admin.
func (app *App) broadcast(room, t string, payload interface{}) error {
	if room == core.SecretRoom {
		return app.eventRouter.EmitWhere(t, payload, func(i core.Identity) bool {
			return app.admins.IsSuperAdmin(i.Username)
		})
	}
	return app.eventRouter.Emit(t, payload)
}

// limiterPruneSize is the number of tracked users above which stale entries
// are dropped.
const limiterPruneSize = 1024

// sendLimiter enforces a minimum interval between two messages of a user.
type sendLimiter struct {
	interval time.Duration
	last     *core.SyncMap[string, time.Time]
}

func newSendLimiter(interval time.Duration) *sendLimiter {
	return &sendLimiter{interval: interval, last: core.NewSyncMap[string, time.Time]()}
}

// Allow reports whether username may send at now and records the send.
func (l *sendLimiter) Allow(username string, now time.Time) bool {
	if l.interval <= 0 {
		return true
	}
	if l.last.Len() > limiterPruneSize {
		l.last.DeleteFunc(func(_ string, last time.Time) bool {
			return now.Sub(last) >= l.interval
		})
	}
	return l.last.Update(username, func(prev time.Time, ok bool) (time.Time, bool) {
		if ok && now.Sub(prev) < l.interval {
			return prev, false
		}
		return now, true
	})
}
