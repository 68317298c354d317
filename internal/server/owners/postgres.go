package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/dbx"
)

// PostgresRegistry stores ownership in the files table.
type PostgresRegistry struct {
	db *sql.DB
}

// Open connects to Postgres through the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Claim(ctx context.Context, fileKey, ownerID string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO files (key, owner_id) VALUES ($1, $2)
			 ON CONFLICT (key) DO NOTHING`,
			fileKey, ownerID)
		if err != nil {
			return fmt.Errorf("%w: error performing sql request: %w", common.ErrStoreUnavailable, err)
		}

		current, err := ownerOf(ctx, tx, fileKey, true)
		if err != nil {
			return err
		}
		if current != ownerID {
			return fmt.Errorf("%w: %s belongs to another user", common.ErrorForbidden, fileKey)
		}
		return nil
	})
}

func (r *PostgresRegistry) CheckOwner(ctx context.Context, fileKey, ownerID string) error {
	current, err := ownerOf(ctx, r.db, fileKey, false)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current != ownerID {
		return fmt.Errorf("%w: %s belongs to another user", common.ErrorForbidden, fileKey)
	}
	return nil
}

func (r *PostgresRegistry) Release(ctx context.Context, fileKey string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE key = $1`, fileKey); err != nil {
		return fmt.Errorf("%w: error performing sql request: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func ownerOf(ctx context.Context, q dbx.DBTX, fileKey string, lock bool) (string, error) {
	query := `SELECT owner_id FROM files WHERE key = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var owner string
	err := q.QueryRowContext(ctx, query, fileKey).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: error performing sql request: %w", common.ErrStoreUnavailable, err)
	}
	return owner, nil
}
