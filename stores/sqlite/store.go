package sqlite

import (
	"collabnotes/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	// One writer keeps SetContent from interleaving with UpdateNote.
	db.SetMaxOpenConns(1)

	notesTableStmt := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		api_data TEXT,
		is_shared INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err = db.Exec(notesTableStmt); err != nil {
		log.Fatalf("failed to create notes table: %v", err)
	}

	usersTableStmt := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT UNIQUE,
		password_hash TEXT,
		subject TEXT UNIQUE,
		created_at DATETIME NOT NULL
	);`
	if _, err = db.Exec(usersTableStmt); err != nil {
		log.Fatalf("failed to create users table: %v", err)
	}

	return &sqliteStore{db}
}

const noteColumns = "id, owner_id, title, content, api_data, is_shared, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*core.Note, error) {
	var note core.Note
	var apiData sql.NullString
	if err := row.Scan(&note.ID, &note.OwnerID, &note.Title, &note.Content, &apiData, &note.IsShared, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return nil, err
	}
	if apiData.Valid && apiData.String != "" {
		var geo core.GeoData
		if err := json.Unmarshal([]byte(apiData.String), &geo); err == nil {
			note.APIData = &geo
		}
	}
	return &note, nil
}

func (s *sqliteStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)
	note, err := scanNote(s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("Note with specified ID not found")
			return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve note")
		return nil, err
	}
	return note, nil
}

func (s *sqliteStore) ListNotes(ctx context.Context, filter core.NoteFilter) ([]*core.Note, error) {
	query := "SELECT " + noteColumns + " FROM notes WHERE 1 = 1"
	var args []any
	if filter.VisibleTo != "" {
		query += " AND (owner_id = ? OR is_shared = 1)"
		args = append(args, filter.VisibleTo)
	}
	if filter.Search != "" {
		query += " AND (instr(lower(title), ?) > 0 OR instr(lower(content), ?) > 0)"
		needle := strings.ToLower(filter.Search)
		args = append(args, needle, needle)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*core.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (s *sqliteStore) CreateNote(ctx context.Context, note *core.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("owner cannot be empty")
	}

	var apiData sql.NullString
	if note.APIData != nil {
		raw, err := json.Marshal(note.APIData)
		if err != nil {
			return err
		}
		apiData = sql.NullString{String: string(raw), Valid: true}
	}

	now := time.Now().UTC()
	id := ulid.Make().String()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notes ("+noteColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, note.OwnerID, note.Title, note.Content, apiData, note.IsShared, now, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to create note")
		return err
	}

	note.ID = id
	note.CreatedAt = now
	note.UpdatedAt = now
	logrus.WithFields(logrus.Fields{"note_id": id, "user_id": note.OwnerID}).Info("Note created successfully")
	return nil
}

func (s *sqliteStore) UpdateNote(ctx context.Context, ownerID string, note *core.Note) (*core.Note, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, is_shared = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		note.Title, note.Content, note.IsShared, time.Now().UTC(), note.ID, ownerID)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("note %s for owner %s: %w", note.ID, ownerID, core.ErrNotFound)
	}
	return s.GetNote(ctx, note.ID)
}

func (s *sqliteStore) DeleteNote(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("note %s for owner %s: %w", id, ownerID, core.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) SetContent(ctx context.Context, id, content string) (*core.Note, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notes SET content = ?, updated_at = ? WHERE id = ?", content, time.Now().UTC(), id)
	if err != nil {
		logrus.WithError(err).WithField("note_id", id).Error("Failed to write note content")
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("note %s: %w", id, core.ErrNotFound)
	}
	return s.GetNote(ctx, id)
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *core.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	id := ulid.Make().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, subject, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, user.Username, nullIfEmpty(email), nullIfEmpty(user.PasswordHash), nullIfEmpty(user.Subject), now)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("user with email %s: %w", email, core.ErrConflict)
		}
		return err
	}

	user.ID = id
	user.Email = email
	user.CreatedAt = now
	logrus.WithField("user_id", id).Info("User created successfully")
	return nil
}

func (s *sqliteStore) scanUser(row rowScanner) (*core.User, error) {
	var user core.User
	var email, hash, subject sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &email, &hash, &subject, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Email = email.String
	user.PasswordHash = hash.String
	user.Subject = subject.String
	return &user, nil
}

func (s *sqliteStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, subject, created_at FROM users WHERE email = ?", email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with email %s: %w", email, core.ErrNotFound)
	}
	return user, err
}

func (s *sqliteStore) UpsertExternalUser(ctx context.Context, user *core.User) (*core.User, error) {
	existing, err := s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, subject, created_at FROM users WHERE subject = ?", user.Subject))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *sqliteStore) ResolveIdentities(ctx context.Context, ids []string) ([]core.Identity, error) {
	if len(ids) == 0 {
		return []core.Identity{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, username FROM users WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := make([]core.Identity, 0, len(ids))
	for rows.Next() {
		var identity core.Identity
		if err := rows.Scan(&identity.ID, &identity.Username); err != nil {
			return identities, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

func nullIfEmpty(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
