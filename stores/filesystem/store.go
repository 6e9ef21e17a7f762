package filesystem

import (
	"collabnotes/core"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
	// mu serialises read-modify-write cycles on the JSON files.
	mu sync.Mutex
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"notes", "users"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create base directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

// objectPath returns the file for an object, rejecting ids that would escape its directory.
func (s *fsStore) objectPath(kind, id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("%q: %w", id, core.ErrInvalidID)
	}
	return filepath.Join(s.basePath, kind, id+".json"), nil
}

func readJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fsStore) readNote(id string) (*core.Note, error) {
	path, err := s.objectPath("notes", id)
	if err != nil {
		return nil, err
	}
	note, err := readJSON[core.Note](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
		}
		logrus.WithError(err).WithField("path", path).Error("Failed to read note file")
		return nil, err
	}
	return note, nil
}

func (s *fsStore) writeNote(note *core.Note) error {
	path, err := s.objectPath("notes", note.ID)
	if err != nil {
		return err
	}
	if err := writeJSON(path, note); err != nil {
		logrus.WithError(err).WithField("path", path).Error("Failed to write note file")
		return err
	}
	return nil
}

func (s *fsStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readNote(id)
}

func (s *fsStore) ListNotes(ctx context.Context, filter core.NoteFilter) ([]*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.basePath, "notes")
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	notes := make([]*core.Note, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		note, err := readJSON[core.Note](filepath.Join(dir, file.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read note file %s, skipping", file.Name())
			continue
		}
		if filter.Match(note) {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (s *fsStore) CreateNote(ctx context.Context, note *core.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("owner cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	note.ID = ulid.Make().String()
	note.CreatedAt = now
	note.UpdatedAt = now
	if err := s.writeNote(note); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"note_id": note.ID, "user_id": note.OwnerID}).Info("Note created successfully")
	return nil
}

func (s *fsStore) UpdateNote(ctx context.Context, ownerID string, note *core.Note) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readNote(note.ID)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != ownerID {
		return nil, fmt.Errorf("note %s for owner %s: %w", note.ID, ownerID, core.ErrNotFound)
	}
	existing.Title = note.Title
	existing.Content = note.Content
	existing.IsShared = note.IsShared
	existing.UpdatedAt = time.Now()
	if err := s.writeNote(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *fsStore) DeleteNote(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readNote(id)
	if err != nil {
		return err
	}
	if existing.OwnerID != ownerID {
		return fmt.Errorf("note %s for owner %s: %w", id, ownerID, core.ErrNotFound)
	}
	path, _ := s.objectPath("notes", id)
	return os.Remove(path)
}

func (s *fsStore) SetContent(ctx context.Context, id, content string) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readNote(id)
	if err != nil {
		return nil, err
	}
	existing.Content = content
	existing.UpdatedAt = time.Now()
	if err := s.writeNote(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// storedUser keeps the password hash, which core.User hides from JSON.
type storedUser struct {
	core.User
	PasswordHash string `json:"passwordHash,omitempty"`
}

func (s *fsStore) eachUser(fn func(u *core.User) bool) error {
	dir := filepath.Join(s.basePath, "users")
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		stored, err := readJSON[storedUser](filepath.Join(dir, file.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read user file %s, skipping", file.Name())
			continue
		}
		user := stored.User
		user.PasswordHash = stored.PasswordHash
		if !fn(&user) {
			return nil
		}
	}
	return nil
}

func (s *fsStore) findUser(match func(u *core.User) bool) (*core.User, error) {
	var found *core.User
	err := s.eachUser(func(u *core.User) bool {
		if match(u) {
			found = u
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, core.ErrNotFound
	}
	return found, nil
}

func (s *fsStore) createUserLocked(user *core.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email != "" {
		if _, err := s.findUser(func(u *core.User) bool { return u.Email == email }); err == nil {
			return fmt.Errorf("user with email %s: %w", email, core.ErrConflict)
		}
	}

	user.ID = ulid.Make().String()
	user.Email = email
	user.CreatedAt = time.Now()

	path, err := s.objectPath("users", user.ID)
	if err != nil {
		return err
	}
	if err := writeJSON(path, storedUser{User: *user, PasswordHash: user.PasswordHash}); err != nil {
		return err
	}
	logrus.WithField("user_id", user.ID).Info("User created successfully")
	return nil
}

func (s *fsStore) CreateUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(user)
}

func (s *fsStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.findUser(func(u *core.User) bool { return u.Email == email })
	if err != nil {
		return nil, fmt.Errorf("user with email %s: %w", email, err)
	}
	return user, nil
}

func (s *fsStore) UpsertExternalUser(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Subject != "" {
		if existing, err := s.findUser(func(u *core.User) bool { return u.Subject == user.Subject }); err == nil {
			return existing, nil
		}
	}
	if err := s.createUserLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *fsStore) ResolveIdentities(ctx context.Context, ids []string) ([]core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities := make([]core.Identity, 0, len(ids))
	for _, id := range ids {
		path, err := s.objectPath("users", id)
		if err != nil {
			continue
		}
		stored, err := readJSON[storedUser](path)
		if err != nil {
			continue
		}
		identities = append(identities, core.Identity{ID: stored.ID, Username: stored.Username})
	}
	return identities, nil
}
