package roomchat

import (
	"context"
	"log/slog"

	"github.com/putto11262002/roomchat/core"
)

const (
	banModerator = "Admin"
	banReason    = "Violation of rules"
)

// authenticate checks the credentials and the ban list. A banned user gets
// a view to render instead of a session.
func (app *App) authenticate(ctx context.Context, username, password string) (*core.Session, *bannedView, error) {
	ok, err := app.users.ComparePassword(ctx, username, password)
	if err != nil {
		if !ok {
			return nil, nil, err
		}
		app.logger.Warn("upgrading legacy password", slog.String("user", username), slog.String("err", err.Error()))
	}
	if !ok {
		return nil, nil, core.ErrBadCredentials
	}

	now := app.now()
	if until, banned := app.bans.BannedUntil(ctx, username, now); banned {
		return nil, &bannedView{
			Username:  username,
			Days:      core.RemainingDays(until, now),
			Moderator: banModerator,
			Reason:    banReason,
		}, nil
	}

	session, err := app.authStore.NewSession(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	return session, nil, nil
}

func (app *App) register(ctx context.Context, username, password string) (*core.Session, error) {
	err := app.users.CreateUser(ctx, core.Registration{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	app.logger.Info("user registered", slog.String("user", username))
	return app.authStore.NewSession(ctx, username)
}
