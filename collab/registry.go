// Package collab implements live note collaboration: room membership, presence rosters and
// edit relay between the connections editing the same note.
package collab

import (
	"collabnotes/core"
	"collabnotes/metrics"
	"sort"
	"sync"
	"time"
)

// Conn is one authenticated real-time connection.
type Conn interface {
	ID() string
	// UserID is bound at handshake and never changes.
	UserID() string
	SendRoster(RosterUpdate) error
	SendNoteUpdate(NoteUpdate) error
	SendError(message string) error
}

// RosterUpdate lists the users present in a note's room.
type RosterUpdate struct {
	NoteID string          `json:"noteId"`
	Users  []core.Identity `json:"users"`
}

// NoteUpdate carries the full content of a note after a persisted edit.
type NoteUpdate struct {
	NoteID    string    `json:"noteId"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoomSummary is the listing form of an active room.
type RoomSummary struct {
	ID    string `json:"id"`
	Users int    `json:"users"`
}

type room struct {
	conns map[string]Conn
	// counts holds the number of joined connections per user. A user is present iff count > 0.
	counts map[string]int

	rosterMu sync.Mutex
	editMu   sync.Mutex
}

// Registry maps note ids to the connections and users present in each note's room.
// Rooms are created on first join and kept when they empty out, so the per-room locks
// stay stable for the life of the process.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func (r *Registry) room(noteID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomLocked(noteID)
}

func (r *Registry) roomLocked(noteID string) *room {
	rm, ok := r.rooms[noteID]
	if !ok {
		rm = &room{conns: make(map[string]Conn), counts: make(map[string]int)}
		r.rooms[noteID] = rm
	}
	return rm
}

// Join adds conn to the note's room. It reports false when conn was already a member.
func (r *Registry) Join(noteID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.roomLocked(noteID)
	if _, ok := rm.conns[conn.ID()]; ok {
		return false
	}
	rm.conns[conn.ID()] = conn
	rm.counts[conn.UserID()]++
	if rm.counts[conn.UserID()] == 1 {
		metrics.PresentUsers.Inc()
	}
	return true
}

// Leave removes conn from the note's room. It reports false when conn was not a member,
// which makes a leave racing a disconnect a no-op for whichever path runs second.
func (r *Registry) Leave(noteID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[noteID]
	if !ok {
		return false
	}
	return rm.remove(conn)
}

// RemoveFromAll removes conn from every room and returns the affected note ids.
func (r *Registry) RemoveFromAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for noteID, rm := range r.rooms {
		if rm.remove(conn) {
			affected = append(affected, noteID)
		}
	}
	sort.Strings(affected)
	return affected
}

func (rm *room) remove(conn Conn) bool {
	if _, ok := rm.conns[conn.ID()]; !ok {
		return false
	}
	delete(rm.conns, conn.ID())

	userID := conn.UserID()
	rm.counts[userID]--
	if rm.counts[userID] <= 0 {
		delete(rm.counts, userID)
		metrics.PresentUsers.Dec()
	}
	return true
}

// IsMember reports whether the connection has joined the note's room and not left it.
func (r *Registry) IsMember(noteID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[noteID]
	if !ok {
		return false
	}
	_, ok = rm.conns[connID]
	return ok
}

// Members returns the sorted ids of the users present in the note's room.
func (r *Registry) Members(noteID string) []string {
	members, _ := r.snapshot(noteID)
	return members
}

func (r *Registry) snapshot(noteID string) ([]string, []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[noteID]
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(rm.counts))
	for userID := range rm.counts {
		members = append(members, userID)
	}
	sort.Strings(members)

	conns := make([]Conn, 0, len(rm.conns))
	for _, c := range rm.conns {
		conns = append(conns, c)
	}
	return members, conns
}

// Peers returns the connections in the note's room other than exceptConnID.
func (r *Registry) Peers(noteID, exceptConnID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[noteID]
	if !ok {
		return nil
	}
	peers := make([]Conn, 0, len(rm.conns))
	for id, c := range rm.conns {
		if id != exceptConnID {
			peers = append(peers, c)
		}
	}
	return peers
}

// Rooms lists the non-empty rooms, busiest first.
func (r *Registry) Rooms() []RoomSummary {
	r.mu.Lock()
	summaries := make([]RoomSummary, 0, len(r.rooms))
	for noteID, rm := range r.rooms {
		if len(rm.counts) > 0 {
			summaries = append(summaries, RoomSummary{ID: noteID, Users: len(rm.counts)})
		}
	}
	r.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Users != summaries[j].Users {
			return summaries[i].Users > summaries[j].Users
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}
