package collab

import (
	"collabnotes/core"
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type NoteGetter interface {
	GetNote(ctx context.Context, id string) (*core.Note, error)
}

// AccessChecker decides who may join a note's room. The note is fetched on every call
// because its shared flag can change between joins.
type AccessChecker struct {
	notes NoteGetter
}

func NewAccessChecker(notes NoteGetter) *AccessChecker {
	return &AccessChecker{notes: notes}
}

// CanJoin reports whether userID owns the note or the note is shared. Any lookup failure denies.
func (a *AccessChecker) CanJoin(ctx context.Context, noteID, userID string) bool {
	if noteID == "" || userID == "" {
		return false
	}
	note, err := a.notes.GetNote(ctx, noteID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) && !errors.Is(err, core.ErrInvalidID) {
			logrus.WithError(err).WithField("note_id", noteID).Warn("Access check failed to load note")
		}
		return false
	}
	return note.CanBeReadBy(userID)
}
