package roomchat

import (
	"encoding/json"
	"net/http"

	"github.com/putto11262002/roomchat/core"
)

type MeResponse struct {
	Username     string `json:"username"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

func (app *App) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(MeResponse{
		Username:     session.Username,
		IsAdmin:      app.admins.IsAdmin(session.Username),
		IsSuperAdmin: app.admins.IsSuperAdmin(session.Username),
	})
}

// RoomsHandler lists the room catalogue. The secret room is listed for the
// super-admin only.
func (app *App) RoomsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	rooms := app.servers.Rooms(app.admins.IsSuperAdmin(session.Username))
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(rooms)
}
