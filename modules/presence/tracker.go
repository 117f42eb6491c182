package presence

import (
	"time"

	domain "github.com/example/repochat/domain/presence"
)

// roomRoster holds the entries of one room in first-appearance order.
type roomRoster struct {
	order   []string
	entries map[string]*domain.Entry
}

// Tracker aggregates connection counts into per-room presence entries.
// It is not safe for concurrent use; the Registry serializes access.
type Tracker struct {
	rooms map[string]*roomRoster
	now   func() time.Time
}

// NewTracker creates a Tracker using now as its clock.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		rooms: make(map[string]*roomRoster),
		now:   now,
	}
}

// RecordJoin adds one connection for identity in room and returns the
// resulting delta. Last-seen is always refreshed.
func (t *Tracker) RecordJoin(room, identity string) domain.Delta {
	r, ok := t.rooms[room]
	if !ok {
		r = &roomRoster{entries: make(map[string]*domain.Entry)}
		t.rooms[room] = r
	}

	e, ok := r.entries[identity]
	if !ok {
		e = &domain.Entry{Username: identity}
		r.entries[identity] = e
		r.order = append(r.order, identity)
	}
	e.Connections++
	e.Status = domain.StatusOnline
	e.LastSeen = t.now()
	return e.Delta()
}

// Refresh stamps last-seen for an identity already online in room without
// touching its connection count.
func (t *Tracker) Refresh(room, identity string) (domain.Delta, bool) {
	e, ok := t.entry(room, identity)
	if !ok {
		return domain.Delta{}, false
	}
	e.LastSeen = t.now()
	return e.Delta(), true
}

// RecordLeave removes one connection for identity in room. The count is
// floored at zero. changed reports an online to offline transition; it is
// false while other connections remain and for unknown identities.
func (t *Tracker) RecordLeave(room, identity string) (delta domain.Delta, changed bool) {
	e, ok := t.entry(room, identity)
	if !ok {
		return domain.Delta{}, false
	}
	if e.Connections > 0 {
		e.Connections--
	}
	if e.Connections == 0 && e.Status != domain.StatusOffline {
		e.Status = domain.StatusOffline
		e.LastSeen = t.now()
		changed = true
	}
	return e.Delta(), changed
}

// Roster returns every identity ever seen in room, in first-appearance order.
func (t *Tracker) Roster(room string) []domain.Delta {
	r, ok := t.rooms[room]
	if !ok {
		return []domain.Delta{}
	}
	out := make([]domain.Delta, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Delta())
	}
	return out
}

// Entry returns a copy of the presence entry for identity in room.
func (t *Tracker) Entry(room, identity string) (domain.Entry, bool) {
	e, ok := t.entry(room, identity)
	if !ok {
		return domain.Entry{}, false
	}
	return *e, true
}

// Evict drops offline entries last seen before cutoff and returns how many
// were removed. Rooms left empty are removed too.
func (t *Tracker) Evict(cutoff time.Time) int {
	removed := 0
	for room, r := range t.rooms {
		kept := r.order[:0]
		for _, name := range r.order {
			e := r.entries[name]
			if e.Status == domain.StatusOffline && e.LastSeen.Before(cutoff) {
				delete(r.entries, name)
				removed++
				continue
			}
			kept = append(kept, name)
		}
		r.order = kept
		if len(r.order) == 0 {
			delete(t.rooms, room)
		}
	}
	return removed
}

// RoomCount returns the number of rooms with at least one entry.
func (t *Tracker) RoomCount() int {
	return len(t.rooms)
}

func (t *Tracker) entry(room, identity string) (*domain.Entry, bool) {
	r, ok := t.rooms[room]
	if !ok {
		return nil, false
	}
	e, ok := r.entries[identity]
	return e, ok
}
