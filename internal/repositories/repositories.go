package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/jmoiron/sqlx"
)

// NextSequence increments and returns the next sequence number for the given table inside tx.
//
// Sequence numbers give queue entries a stable insertion order that survives equal timestamps.
func NextSequence(ctx context.Context, tx *sqlx.Tx, table string) (int, error) {
	sequenceTable := table + "_sequence"

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	if err := tx.GetContext(ctx, &sequence, fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	return sequence, nil
}

// SQLStore implements [models.Store] on top of the session and queue repositories.
type SQLStore struct {
	db *sqlx.DB
	*SessionRepository
	*QueueRepository
}

var _ models.Store = (*SQLStore)(nil)

// NewSQLStore creates a [SQLStore] for an open, migrated database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:                db,
		SessionRepository: NewSessionRepository(db),
		QueueRepository:   NewQueueRepository(db),
	}
}

// Begin starts a [models.StoreTx] bound to ctx.
func (s *SQLStore) Begin(ctx context.Context) (models.StoreTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{ctx: ctx, tx: tx}, nil
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
