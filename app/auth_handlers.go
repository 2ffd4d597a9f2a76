package roomchat

import (
	"log/slog"
	"net/http"

	"github.com/putto11262002/roomchat/core"
)

func (app *App) IndexHandler(w http.ResponseWriter, r *http.Request) error {
	session, ok := core.LookupSession(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}
	isSuperAdmin := app.admins.IsSuperAdmin(session.Username)
	return app.render(w, http.StatusOK, "chat", chatView{
		Username:     session.Username,
		IsAdmin:      app.admins.IsAdmin(session.Username),
		IsSuperAdmin: isSuperAdmin,
		Rooms:        app.servers.Rooms(isSuperAdmin),
	})
}

func (app *App) LoginPageHandler(w http.ResponseWriter, r *http.Request) error {
	return app.render(w, http.StatusOK, "login", formView{})
}

func (app *App) LoginHandler(w http.ResponseWriter, r *http.Request) error {
	username, password := r.PostFormValue("username"), r.PostFormValue("password")

	session, banned, err := app.authenticate(r.Context(), username, password)
	if err != nil {
		if msg, ok := core.PublicMessage(err); ok {
			return app.render(w, http.StatusOK, "login", formView{Username: username, Error: msg})
		}
		return err
	}
	if banned != nil {
		return app.render(w, http.StatusOK, "banned", banned)
	}

	http.SetCookie(w, core.SessionCookie(*session))
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (app *App) RegisterPageHandler(w http.ResponseWriter, r *http.Request) error {
	return app.render(w, http.StatusOK, "register", formView{})
}

func (app *App) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	username, password := r.PostFormValue("username"), r.PostFormValue("password")

	session, err := app.register(r.Context(), username, password)
	if err != nil {
		if msg, ok := core.PublicMessage(err); ok {
			return app.render(w, http.StatusOK, "register", formView{Username: username, Error: msg})
		}
		return err
	}

	http.SetCookie(w, core.SessionCookie(*session))
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// LogoutHandler always clears the cookie, even when the session could not
// be revoked.
func (app *App) LogoutHandler(w http.ResponseWriter, r *http.Request) error {
	if session, ok := core.LookupSession(r); ok {
		if err := app.authStore.DestroySession(r.Context(), session); err != nil {
			app.logger.Error("revoking session", slog.String("user", session.Username), slog.String("err", err.Error()))
		}
	}
	http.SetCookie(w, core.ExpiredSessionCookie())
	http.Redirect(w, r, "/login", http.StatusFound)
	return nil
}
