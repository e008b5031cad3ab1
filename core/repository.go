package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Repository is the persistence accessor used by the dbAuth handler.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)

	FindByUsername(ctx context.Context, username string) (*User, error)

	FindByResetToken(ctx context.Context, token string) (*User, error)

	CreateUser(ctx context.Context, user *User) error

	UpdatePasswordHash(ctx context.Context, userID, hashedPassword, salt string) error

	// Reset token operations

	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// ClearResetToken nulls the token only if it still equals token.
	ClearResetToken(ctx context.Context, userID, token string) error

	// ConsumeResetToken stores the new password and clears the token in one
	// conditional update keyed on (userID, token). Returns ErrNotFound when the
	// token was already consumed or replaced.
	ConsumeResetToken(ctx context.Context, userID, token, hashedPassword, salt string) error
}
