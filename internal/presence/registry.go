package presence

import (
	"slices"
	"sync"
)

// At most one Entry exists per (RoomID, UserID).
type Entry struct {
	ConnectionID string `json:"-"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"name"`
	RoomID       string `json:"-"`
}

type Stats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

type Registry struct {
	mu    sync.Mutex
	rooms map[string][]Entry
	// connection id -> rooms where that connection owns the entry
	owned map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string][]Entry),
		owned: make(map[string][]string),
	}
}

// Join keeps the existing entry when the user is already in the room.
func (r *Registry) Join(roomID, connectionID, userID, displayName string) ([]Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for _, e := range members {
		if e.UserID == userID {
			return slices.Clone(members), false
		}
	}

	members = append(members, Entry{
		ConnectionID: connectionID,
		UserID:       userID,
		DisplayName:  displayName,
		RoomID:       roomID,
	})
	r.rooms[roomID] = members
	r.owned[connectionID] = append(r.owned[connectionID], roomID)
	return slices.Clone(members), true
}

// Leave returns the rooms whose membership changed.
func (r *Registry) Leave(connectionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomIDs, ok := r.owned[connectionID]
	if !ok {
		return nil
	}
	delete(r.owned, connectionID)

	changed := make([]string, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		members := r.rooms[roomID]
		idx := slices.IndexFunc(members, func(e Entry) bool { return e.ConnectionID == connectionID })
		if idx < 0 {
			continue
		}
		members = slices.Delete(members, idx, idx+1)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		} else {
			r.rooms[roomID] = members
		}
		changed = append(changed, roomID)
	}
	return changed
}

func (r *Registry) Snapshot(roomID string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rooms[roomID])
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Rooms: len(r.rooms)}
	for _, members := range r.rooms {
		s.Members += len(members)
	}
	return s
}
