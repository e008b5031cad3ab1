package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dbauthd/core"
)

const userColumns = `id, username, hashed_password, salt, reset_token, reset_token_expires_at, attributes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one row selected with userColumns.
func scanUser(row rowScanner) (*core.User, error) {
	var user core.User
	var resetToken sql.NullString
	var resetTokenExpiresAt sql.NullInt64
	var attributes string
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.HashedPassword,
		&user.Salt,
		&resetToken,
		&resetTokenExpiresAt,
		&attributes,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if resetToken.Valid {
		token := resetToken.String
		user.ResetToken = &token
	}
	if resetTokenExpiresAt.Valid {
		expiresAt := time.Unix(resetTokenExpiresAt.Int64, 0)
		user.ResetTokenExpiresAt = &expiresAt
	}
	if attributes != "" {
		if err := json.Unmarshal([]byte(attributes), &user.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode user attributes: %w", err)
		}
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func encodeAttributes(attributes map[string]any) (string, error) {
	if len(attributes) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("failed to encode user attributes: %w", err)
	}
	return string(data), nil
}
