package collab

import (
	"collabnotes/core"
	"collabnotes/stores/memory"
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	id     string
	userID string

	mu       sync.Mutex
	rosters  []RosterUpdate
	updates  []NoteUpdate
	errors   []string
	sendFail bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) SendRoster(u RosterUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFail {
		return errors.New("connection closed")
	}
	c.rosters = append(c.rosters, u)
	return nil
}

func (c *fakeConn) SendNoteUpdate(u NoteUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFail {
		return errors.New("connection closed")
	}
	c.updates = append(c.updates, u)
	return nil
}

func (c *fakeConn) SendError(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, message)
	return nil
}

func (c *fakeConn) lastRoster(t *testing.T) RosterUpdate {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rosters) == 0 {
		t.Fatalf("conn %s received no roster", c.id)
	}
	return c.rosters[len(c.rosters)-1]
}

func (c *fakeConn) rosterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rosters)
}

func (c *fakeConn) noteUpdates() []NoteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NoteUpdate(nil), c.updates...)
}

func (c *fakeConn) errorMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

func rosterIDs(u RosterUpdate) []string {
	ids := make([]string, 0, len(u.Users))
	for _, user := range u.Users {
		ids = append(ids, user.ID)
	}
	return ids
}

func rosterHas(u RosterUpdate, userID string) bool {
	for _, user := range u.Users {
		if user.ID == userID {
			return true
		}
	}
	return false
}

type fakeVerifier map[string]string

func (v fakeVerifier) Verify(token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errors.New("signature is invalid")
	}
	return userID, nil
}

// failingWrites rejects every content write.
type failingWrites struct {
	Store
}

func (failingWrites) SetContent(ctx context.Context, id, content string) (*core.Note, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	hub   *Hub
	store Store
	notes core.NoteStore
	users map[string]string // username -> id
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{store: store, notes: store, users: make(map[string]string)}
	for _, name := range usernames {
		u := &core.User{Username: name, Email: name + "@example.com"}
		if err := store.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%s) failed: %v", name, err)
		}
		f.users[name] = u.ID
	}
	f.hub = NewHub(NewRegistry(), store, fakeVerifier{}, nil)
	return f
}

func (f *fixture) note(t *testing.T, owner string, shared bool) string {
	t.Helper()
	n := &core.Note{Title: "doc", Content: "initial", OwnerID: f.users[owner], IsShared: shared}
	if err := f.notes.CreateNote(context.Background(), n); err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	return n.ID
}

func (f *fixture) connect(t *testing.T, connID, username string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(connID, f.users[username])
	s := f.hub.Connect(context.Background(), conn)
	t.Cleanup(func() {
		s.Disconnect()
		<-s.Done()
	})
	return s, conn
}
