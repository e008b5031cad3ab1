package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dbauthd/core"

	"github.com/ydb-platform/ydb-go-sdk/v3"
	"github.com/ydb-platform/ydb-go-sdk/v3/retry"
	yc "github.com/ydb-platform/ydb-go-yc"
)

//go:embed schema/ydb/schema.yql
var ydbSchema string

type YDBConfig struct {
	DSN string `yaml:"dsn"`
	// ServiceAccountKeyFile authenticates with a Yandex Cloud service account key
	ServiceAccountKeyFile string `yaml:"sa_key_file"`
	// MetadataCredentials uses the instance metadata service (Yandex Cloud VMs, functions)
	MetadataCredentials bool `yaml:"metadata_credentials"`
}

// YDBRepository stores users in YDB through the database/sql connector.
// Conditional updates run in serializable transactions retried by the SDK.
type YDBRepository struct {
	driver *ydb.Driver
	db     *sql.DB
}

func NewYDBRepository(ctx context.Context, config YDBConfig) (*YDBRepository, error) {
	var opts []ydb.Option
	switch {
	case config.ServiceAccountKeyFile != "":
		opts = append(opts, yc.WithInternalCA(), yc.WithServiceAccountKeyFileCredentials(config.ServiceAccountKeyFile))
	case config.MetadataCredentials:
		opts = append(opts, yc.WithInternalCA(), yc.WithMetadataCredentials())
	}

	driver, err := ydb.Open(ctx, config.DSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open ydb driver: %w", err)
	}

	connector, err := ydb.Connector(driver,
		ydb.WithTablePathPrefix(driver.Name()),
		ydb.WithAutoDeclare(),
		ydb.WithPositionalArgs(),
	)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to create ydb connector: %w", err)
	}

	repo := &YDBRepository{
		driver: driver,
		db:     sql.OpenDB(connector),
	}

	if err := repo.initSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *YDBRepository) Close() error {
	dbErr := r.db.Close()
	if err := r.driver.Close(context.Background()); err != nil {
		return err
	}
	return dbErr
}

func (r *YDBRepository) initSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ydb.WithQueryMode(ctx, ydb.SchemeQueryMode), ydbSchema)
	return err
}

func (r *YDBRepository) FindByID(ctx context.Context, id string) (*core.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *YDBRepository) FindByUsername(ctx context.Context, username string) (*core.User, error) {
	query := `SELECT ` + userColumns + ` FROM users VIEW idx_users_username WHERE username = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *YDBRepository) FindByResetToken(ctx context.Context, token string) (*core.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token = ? OR retired_reset_token = ?
		LIMIT 1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, token, token))
}

func (r *YDBRepository) CreateUser(ctx context.Context, user *core.User) error {
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
		if isUniqueConstraintError(err) || strings.Contains(err.Error(), "Conflict with existing key") {
			return core.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *YDBRepository) UpdatePasswordHash(ctx context.Context, userID, hashedPassword, salt string) error {
	return r.updateWhere(ctx, `id = ?`, []any{userID}, `
		UPDATE users
		SET hashed_password = ?, salt = ?, updated_at = ?
		WHERE id = ?
	`, hashedPassword, salt, time.Now().Unix(), userID)
}

func (r *YDBRepository) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return r.updateWhere(ctx, `id = ?`, []any{userID}, `
		UPDATE users
		SET reset_token = ?, reset_token_expires_at = ?, retired_reset_token = NULL, updated_at = ?
		WHERE id = ?
	`, token, expiresAt.Unix(), time.Now().Unix(), userID)
}

func (r *YDBRepository) ClearResetToken(ctx context.Context, userID, token string) error {
	return r.updateWhere(ctx, `id = ? AND reset_token = ?`, []any{userID, token}, `
		UPDATE users
		SET retired_reset_token = reset_token, reset_token = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?
	`, time.Now().Unix(), userID, token)
}

func (r *YDBRepository) ConsumeResetToken(ctx context.Context, userID, token, hashedPassword, salt string) error {
	return r.updateWhere(ctx, `id = ? AND reset_token = ?`, []any{userID, token}, `
		UPDATE users
		SET hashed_password = ?, salt = ?, reset_token = NULL, reset_token_expires_at = NULL,
		    retired_reset_token = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?
	`, hashedPassword, salt, time.Now().Unix(), userID, token)
}

// updateWhere checks that a row matches cond and applies update in the same
// transaction. A concurrent writer breaks the transaction's locks and the
// retry re-evaluates cond, so the update is applied at most once per match.
func (r *YDBRepository) updateWhere(ctx context.Context, cond string, condArgs []any, update string, updateArgs ...any) error {
	return retry.DoTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		var count uint64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, condArgs...).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return core.ErrNotFound
		}
		_, err := tx.ExecContext(ctx, update, updateArgs...)
		return err
	}, retry.WithIdempotent(true))
}

var _ core.Repository = (*YDBRepository)(nil)
