package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TxRunner opens one database transaction per operation with a bounded lock wait.
type TxRunner struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewTxRunner(db *sql.DB, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{db: db, lockTimeout: lockTimeout}
}

// Run executes fn inside a transaction. Any error from fn rolls the whole
// transaction back; lock contention surfaces as ErrLockTimeout.
func (r *TxRunner) Run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translateDBError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return translateDBError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		return translateDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return translateDBError(fmt.Errorf("commit: %w", err))
	}
	return nil
}
