package core

import (
	"context"
	"strings"
	"time"
)

type (
	// GeoData is the location snapshot attached to a note when it is created.
	GeoData struct {
		IP          string `json:"ip"`
		City        string `json:"city"`
		Region      string `json:"region"`
		CountryName string `json:"country_name"`
	}

	// Note is a text document owned by one user and optionally shared with everyone.
	Note struct {
		ID        string    `json:"_id"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		APIData   *GeoData  `json:"apiData,omitempty"`
		OwnerID   string    `json:"owner"`
		IsShared  bool      `json:"isShared"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// NoteFilter selects the notes visible to a user.
	NoteFilter struct {
		// VisibleTo limits results to notes owned by this user or shared.
		VisibleTo string
		// Search is a case-insensitive substring matched against title or content.
		Search string
	}

	// NoteStore is the persistence layer for notes.
	NoteStore interface {
		// GetNote returns the note or an error wrapping ErrNotFound.
		GetNote(ctx context.Context, id string) (*Note, error)

		// ListNotes returns every note matching the filter, unsorted.
		ListNotes(ctx context.Context, filter NoteFilter) ([]*Note, error)

		// CreateNote assigns an ID and timestamps and stores the note.
		CreateNote(ctx context.Context, note *Note) error

		// UpdateNote replaces title, content and shared flag of a note owned by ownerID.
		// It returns an error wrapping ErrNotFound when the note is missing or owned by
		// someone else.
		UpdateNote(ctx context.Context, ownerID string, note *Note) (*Note, error)

		// DeleteNote removes a note owned by ownerID.
		DeleteNote(ctx context.Context, ownerID, id string) error

		// SetContent overwrites the note body. Last write wins.
		SetContent(ctx context.Context, id, content string) (*Note, error)
	}
)

// CanBeReadBy reports whether userID owns the note or the note is shared.
func (n *Note) CanBeReadBy(userID string) bool {
	return n.OwnerID == userID || n.IsShared
}

// Match reports whether the note passes the filter.
func (f NoteFilter) Match(n *Note) bool {
	if f.VisibleTo != "" && !n.CanBeReadBy(f.VisibleTo) {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(n.Title), needle) ||
		strings.Contains(strings.ToLower(n.Content), needle)
}
