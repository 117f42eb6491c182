package presence

import "time"

// Status is the aggregated availability of one identity in one room.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Entry is the presence record for a (room, identity) pair.
// Status is online exactly when Connections > 0.
type Entry struct {
	Username    string    `json:"username"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
	Connections int       `json:"-"`
}

// Delta is the wire shape of a presence change and of each roster row.
type Delta struct {
	Username string    `json:"username"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Delta returns the public view of the entry.
func (e Entry) Delta() Delta {
	return Delta{
		Username: e.Username,
		Status:   e.Status,
		LastSeen: e.LastSeen,
	}
}

// Connection is one live transport session.
type Connection struct {
	ID       string `json:"id"`
	RepoID   string `json:"repoId,omitempty"`
	Username string `json:"username,omitempty"`
}

// Joined reports whether the connection has entered a room.
func (c Connection) Joined() bool {
	return c.RepoID != "" && c.Username != ""
}
