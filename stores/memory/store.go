package memory

import (
	"collabnotes/core"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements both NoteStore and UserStore in process memory.
type memStore struct {
	mu    sync.RWMutex
	notes map[string]core.Note
	users map[string]core.User
	// byEmail and bySubject index users by their unique keys.
	byEmail   map[string]string
	bySubject map[string]string
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		notes:     make(map[string]core.Note),
		users:     make(map[string]core.User),
		byEmail:   make(map[string]string),
		bySubject: make(map[string]string),
	}
}

func (s *memStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("note_id", id)
	if note, ok := s.notes[id]; ok {
		log.Debug("Note retrieved successfully")
		return &note, nil
	}
	log.Debug("Note with specified ID not found")
	return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
}

func (s *memStore) ListNotes(ctx context.Context, filter core.NoteFilter) ([]*core.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]*core.Note, 0, len(s.notes))
	for _, note := range s.notes {
		if filter.Match(&note) {
			n := note
			notes = append(notes, &n)
		}
	}
	logrus.WithField("user_id", filter.VisibleTo).Debugf("Listed %d notes", len(notes))
	return notes, nil
}

func (s *memStore) CreateNote(ctx context.Context, note *core.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("owner cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	note.ID = ulid.Make().String()
	note.CreatedAt = now
	note.UpdatedAt = now
	s.notes[note.ID] = *note

	logrus.WithFields(logrus.Fields{
		"note_id": note.ID,
		"user_id": note.OwnerID,
	}).Info("Note created successfully")
	return nil
}

func (s *memStore) UpdateNote(ctx context.Context, ownerID string, note *core.Note) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[note.ID]
	if !ok || existing.OwnerID != ownerID {
		return nil, fmt.Errorf("note %s for owner %s: %w", note.ID, ownerID, core.ErrNotFound)
	}

	existing.Title = note.Title
	existing.Content = note.Content
	existing.IsShared = note.IsShared
	existing.UpdatedAt = time.Now()
	s.notes[note.ID] = existing

	logrus.WithFields(logrus.Fields{"note_id": note.ID, "user_id": ownerID}).Info("Note updated successfully")
	return &existing, nil
}

func (s *memStore) DeleteNote(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[id]
	if !ok || existing.OwnerID != ownerID {
		return fmt.Errorf("note %s for owner %s: %w", id, ownerID, core.ErrNotFound)
	}
	delete(s.notes, id)

	logrus.WithFields(logrus.Fields{"note_id": id, "user_id": ownerID}).Info("Note deleted successfully")
	return nil
}

func (s *memStore) SetContent(ctx context.Context, id, content string) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
	}
	existing.Content = content
	existing.UpdatedAt = time.Now()
	s.notes[id] = existing
	return &existing, nil
}

func (s *memStore) CreateUser(ctx context.Context, user *core.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if email != "" {
		if _, taken := s.byEmail[email]; taken {
			return fmt.Errorf("user with email %s: %w", email, core.ErrConflict)
		}
	}

	user.ID = ulid.Make().String()
	user.Email = email
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	if email != "" {
		s.byEmail[email] = user.ID
	}
	if user.Subject != "" {
		s.bySubject[user.Subject] = user.ID
	}

	logrus.WithField("user_id", user.ID).Info("User created successfully")
	return nil
}

func (s *memStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
	}
	user := s.users[id]
	return &user, nil
}

func (s *memStore) UpsertExternalUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.RLock()
	id, ok := s.bySubject[user.Subject]
	existing := s.users[id]
	s.mu.RUnlock()
	if ok {
		return &existing, nil
	}

	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *memStore) ResolveIdentities(ctx context.Context, ids []string) ([]core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]core.Identity, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			identities = append(identities, core.Identity{ID: user.ID, Username: user.Username})
		}
	}
	return identities, nil
}
