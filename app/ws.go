package roomchat

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/putto11262002/roomchat/core"
	"github.com/putto11262002/roomchat/pkg/router"
)

// WSHandler upgrades the request to a realtime connection. In strict mode
// the request must carry a session, and the connection may later only
// authenticate as that session's user.
func (app *App) WSHandler(w http.ResponseWriter, r *http.Request) error {
	session, ok := core.LookupSession(r)
	if !ok && app.config.Auth.StrictRealtime {
		return router.NewJsonError(http.StatusUnauthorized, "unauthenticated")
	}

	if _, err := app.wsManager.Connect(session.Username, w, r); err != nil {
		// the upgrader has already written the response
		app.logger.Debug("upgrade failed", slog.String("err", err.Error()))
	}
	return nil
}

func (app *App) checkOrigin(r *http.Request) bool {
	if app.config.allowsAnyOrigin() {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(app.config.AllowedOrigins, origin)
}
