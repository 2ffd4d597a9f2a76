package roomchat

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"

	"github.com/putto11262002/roomchat/core"
)

//go:embed templates
var templateFiles embed.FS

//go:embed public
var publicFiles embed.FS

func templatesFS() fs.FS {
	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func embeddedPublicFS() fs.FS {
	sub, err := fs.Sub(publicFiles, "public")
	if err != nil {
		panic(err)
	}
	return sub
}

// formView is the data of the login and register pages.
type formView struct {
	Username string
	Error    string
}

type bannedView struct {
	Username  string
	Days      int
	Moderator string
	Reason    string
}

type chatView struct {
	Username     string
	IsAdmin      bool
	IsSuperAdmin bool
	Rooms        []core.RoomInfo
}

func (app *App) render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := app.templates.Render(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
