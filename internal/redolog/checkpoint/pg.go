package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps checkpoints in a PostgreSQL table next to the mailbox data,
// so a checkpoint can be advanced by the same database that holds the
// mutations it covers.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to databaseURL and creates the checkpoint table if it
// does not exist.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, &StoreError{Op: "open", Backend: "pg", Err: fmt.Errorf("parse database URL: %w", err)}
	}
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, &StoreError{Op: "open", Backend: "pg", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StoreError{Op: "ping", Backend: "pg", Err: err}
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, &StoreError{Op: "migrate", Backend: "pg", Err: err}
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS redo_checkpoints (
		mailbox_id BIGINT PRIMARY KEY,
		seq BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) Read(ctx context.Context, mailboxID uint64) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT seq FROM redo_checkpoints WHERE mailbox_id = $1`,
		int64(mailboxID), //nolint:gosec
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &StoreError{Op: "read", Backend: "pg", MailboxID: mailboxID, Err: err}
	}
	return uint64(seq), nil //nolint:gosec
}

// Write upserts the checkpoint keeping the greater of the stored and
// requested values; a stored value above the request is a regression.
func (s *PGStore) Write(ctx context.Context, mailboxID uint64, seq uint64) error {
	query := `
		INSERT INTO redo_checkpoints (mailbox_id, seq)
		VALUES ($1, $2)
		ON CONFLICT (mailbox_id) DO UPDATE
		SET seq = GREATEST(redo_checkpoints.seq, EXCLUDED.seq), updated_at = now()
		RETURNING seq
	`
	var stored int64
	err := s.pool.QueryRow(ctx, query,
		int64(mailboxID), //nolint:gosec
		int64(seq),       //nolint:gosec
	).Scan(&stored)
	if err != nil {
		return &StoreError{Op: "write", Backend: "pg", MailboxID: mailboxID, Err: err}
	}
	return checkMonotonic(mailboxID, uint64(stored), seq) //nolint:gosec
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
