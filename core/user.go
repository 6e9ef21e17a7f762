package core

import (
	"context"
	"time"
)

type (
	User struct {
		ID           string    `json:"id"`
		Username     string    `json:"username"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		Subject      string    `json:"subject,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// Identity is the display form of a user shown in presence rosters.
	Identity struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	// UserStore is the persistence layer for accounts.
	UserStore interface {
		// CreateUser stores a new user. It returns ErrConflict when the email is taken.
		CreateUser(ctx context.Context, user *User) error

		// FindUserByEmail returns an error wrapping ErrNotFound when no user matches.
		FindUserByEmail(ctx context.Context, email string) (*User, error)

		// UpsertExternalUser finds a user by external login subject, creating it if needed.
		UpsertExternalUser(ctx context.Context, user *User) (*User, error)

		// ResolveIdentities looks up display identities in one call. Unknown ids are
		// skipped, so the result may be shorter than ids.
		ResolveIdentities(ctx context.Context, ids []string) ([]Identity, error)
	}
)
