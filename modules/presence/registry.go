package presence

import (
	"fmt"
	"sync"
	"time"

	domain "github.com/example/repochat/domain/presence"
	"github.com/example/repochat/events"
	"github.com/go-monolith/mono/pkg/types"
	nanoid "github.com/jaevor/go-nanoid"
)

// Deliverer writes an event to a set of connections. Implementations must
// only enqueue and must not call back into the Registry.
type Deliverer interface {
	Deliver(connIDs []string, event string, payload any)
}

type discardDeliverer struct{}

func (discardDeliverer) Deliver([]string, string, any) {}

// Registry maps live connections to their room and identity and keeps the
// presence tracker in step with joins and leaves.
//
// Presence deltas are handed to the Deliverer while the registry lock is
// held, so deltas for a room are enqueued in the order the transitions
// happened.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*domain.Connection
	members map[string]map[string]struct{} // room -> connIDs
	tracker *Tracker
	out     Deliverer
	newID   func() string
	logger  types.Logger
}

// NewRegistry creates a Registry. now may be nil to use the wall clock.
func NewRegistry(logger types.Logger, now func() time.Time) (*Registry, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection id generator: %w", err)
	}
	return &Registry{
		conns:   make(map[string]*domain.Connection),
		members: make(map[string]map[string]struct{}),
		tracker: NewTracker(now),
		out:     discardDeliverer{},
		newID:   gen,
		logger:  logger,
	}, nil
}

// SetDeliverer sets the output path for presence frames.
func (r *Registry) SetDeliverer(d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d == nil {
		d = discardDeliverer{}
	}
	r.out = d
}

// Connect allocates a slot for a new transport connection.
func (r *Registry) Connect() string {
	id := r.newID()

	r.mu.Lock()
	r.conns[id] = &domain.Connection{ID: id}
	r.mu.Unlock()

	r.logger.Debug("Connection registered", "connID", id)
	return id
}

// Join places the connection in room under identity. A connection already
// joined elsewhere leaves its old pair first. Empty room or identity, and
// unknown connections, are ignored; the return value reports whether the
// join was applied.
func (r *Registry) Join(connID, room, identity string) bool {
	if room == "" || identity == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}

	if c.RepoID == room && c.Username == identity {
		if d, ok := r.tracker.Refresh(room, identity); ok {
			r.out.Deliver(r.memberIDsLocked(room), events.PresenceDelta, d)
		}
		r.out.Deliver([]string{connID}, events.PresenceState, r.tracker.Roster(room))
		return true
	}

	if c.Joined() {
		r.leaveLocked(c)
	}

	c.RepoID = room
	c.Username = identity
	set, ok := r.members[room]
	if !ok {
		set = make(map[string]struct{})
		r.members[room] = set
	}
	set[connID] = struct{}{}

	d := r.tracker.RecordJoin(room, identity)
	r.out.Deliver(r.memberIDsLocked(room), events.PresenceDelta, d)
	r.out.Deliver([]string{connID}, events.PresenceState, r.tracker.Roster(room))

	r.logger.Info("Connection joined room", "connID", connID, "repoId", room, "username", identity)
	return true
}

// Disconnect leaves the joined pair, if any, and drops the slot.
// Unknown connections are ignored.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	if c.Joined() {
		r.leaveLocked(c)
	}
	delete(r.conns, connID)
	r.logger.Debug("Connection removed", "connID", connID)
}

// leaveLocked must be called with r.mu held.
func (r *Registry) leaveLocked(c *domain.Connection) {
	room, identity := c.RepoID, c.Username
	if set, ok := r.members[room]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	c.RepoID = ""
	c.Username = ""

	if d, changed := r.tracker.RecordLeave(room, identity); changed {
		r.out.Deliver(r.memberIDsLocked(room), events.PresenceDelta, d)
	}
}

func (r *Registry) memberIDsLocked(room string) []string {
	set := r.members[room]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Members returns the connections currently joined to room.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberIDsLocked(room)
}

// Connection returns a copy of the connection record.
func (r *Registry) Connection(connID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return *c, true
}

// Room returns the room the connection is joined to.
func (r *Registry) Room(connID string) (string, bool) {
	c, ok := r.Connection(connID)
	if !ok || !c.Joined() {
		return "", false
	}
	return c.RepoID, true
}

// Roster returns the presence roster of room.
func (r *Registry) Roster(room string) []domain.Delta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracker.Roster(room)
}

// Entry returns the presence entry for identity in room.
func (r *Registry) Entry(room, identity string) (domain.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracker.Entry(room, identity)
}

// EvictOffline drops offline entries last seen before cutoff.
func (r *Registry) EvictOffline(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Evict(cutoff)
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with a presence roster.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracker.RoomCount()
}
