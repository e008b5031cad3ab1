package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dbauthd/core"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	_, err := r.db.Exec(sqliteSchema)
	return err
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*core.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (*core.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *SQLiteRepository) FindByResetToken(ctx context.Context, token string) (*core.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token = ? OR retired_reset_token = ?
		LIMIT 1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, token, token))
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user *core.User) error {
	attributes, err := encodeAttributes(user.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, username, hashed_password, salt, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.HashedPassword,
		user.Salt,
		attributes,
		user.CreatedAt.Unix(),
		user.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, userID, hashedPassword, salt string) error {
	query := `
		UPDATE users
		SET hashed_password = ?, salt = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, hashedPassword, salt, time.Now().Unix(), userID)
	return affectedOne(result, err)
}

func (r *SQLiteRepository) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET reset_token = ?, reset_token_expires_at = ?, retired_reset_token = NULL, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, token, expiresAt.Unix(), time.Now().Unix(), userID)
	return affectedOne(result, err)
}

func (r *SQLiteRepository) ClearResetToken(ctx context.Context, userID, token string) error {
	query := `
		UPDATE users
		SET retired_reset_token = reset_token, reset_token = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().Unix(), userID, token)
	return affectedOne(result, err)
}

func (r *SQLiteRepository) ConsumeResetToken(ctx context.Context, userID, token, hashedPassword, salt string) error {
	query := `
		UPDATE users
		SET hashed_password = ?, salt = ?, reset_token = NULL, reset_token_expires_at = NULL,
		    retired_reset_token = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?
	`
	result, err := r.db.ExecContext(ctx, query, hashedPassword, salt, time.Now().Unix(), userID, token)
	return affectedOne(result, err)
}

func affectedOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "UNIQUE") ||
		strings.Contains(errMsg, "unique")
}

var _ core.Repository = (*SQLiteRepository)(nil)
