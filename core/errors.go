package core

import "errors"

var (
	// ErrAuthentication means the credential was missing, malformed, expired or forged.
	ErrAuthentication = errors.New("authentication error")
	// ErrForbidden means the user may not access the note.
	ErrForbidden = errors.New("not authorized")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	// ErrPersistence means a note write failed.
	ErrPersistence = errors.New("persistence error")
	// ErrPartialResolution means some roster identities could not be resolved.
	ErrPartialResolution = errors.New("partial identity resolution")
	// ErrNotMember means the connection has not joined the note's room.
	ErrNotMember = errors.New("not a member of this note")
	ErrInvalidID = errors.New("invalid id")
)
