package core

import (
	"slices"
)

// AdminList is the static admin allow-list read from admins.json.
// The super-admin is always an admin, whether listed or not.
type AdminList struct {
	doc        *Document[[]string]
	superAdmin string
}

func NewAdminList(path, superAdmin string) *AdminList {
	return &AdminList{
		doc:        NewDocument(path, func() []string { return []string{} }),
		superAdmin: superAdmin,
	}
}

func (l *AdminList) Load() error {
	return l.doc.Load()
}

func (l *AdminList) SuperAdmin() string {
	return l.superAdmin
}

func (l *AdminList) IsSuperAdmin(username string) bool {
	return username != "" && username == l.superAdmin
}

func (l *AdminList) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	if l.IsSuperAdmin(username) {
		return true
	}
	var ok bool
	l.doc.Read(func(admins []string) {
		ok = slices.Contains(admins, username)
	})
	return ok
}

// RoomInfo describes a room in the catalogue shown to clients.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ServerList is the room catalogue read from servers.json. Entries that do
// not name a known room are ignored, and known rooms missing from the file
// are appended with their ID as name.
type ServerList struct {
	doc *Document[[]RoomInfo]
}

func NewServerList(path string) *ServerList {
	return &ServerList{
		doc: NewDocument(path, func() []RoomInfo { return []RoomInfo{} }),
	}
}

func (l *ServerList) Load() error {
	return l.doc.Load()
}

// Rooms returns the catalogue. The secret room is included only when
// withSecret is set.
func (l *ServerList) Rooms(withSecret bool) []RoomInfo {
	var listed []RoomInfo
	l.doc.Read(func(rooms []RoomInfo) {
		listed = slices.Clone(rooms)
	})

	out := make([]RoomInfo, 0, len(Rooms))
	seen := make(map[string]bool, len(Rooms))
	add := func(r RoomInfo) {
		if !IsRoom(r.ID) || seen[r.ID] || (r.ID == SecretRoom && !withSecret) {
			return
		}
		if r.Name == "" {
			r.Name = r.ID
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	for _, r := range listed {
		add(r)
	}
	for _, id := range Rooms {
		add(RoomInfo{ID: id})
	}
	return out
}
