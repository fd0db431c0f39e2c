package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// TxManager hands out units of work over a *sql.DB.  A unit of work either
// commits every statement executed through its *sql.Tx or none of them.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager bound to db.
func NewTxManager(db *sql.DB) *TxManager { return &TxManager{db: db} }

// DB exposes the pool for reads that must happen outside a unit of work,
// such as re-reading a counter after a failed reservation.
func (m *TxManager) DB() *sql.DB { return m.db }

// RunInTx begins a transaction, calls fn and commits when fn returns nil.
// Any error returned by fn, a failed commit or a panic inside fn rolls the
// transaction back.  The error returned by fn is passed through unchanged
// so callers can still match typed errors with errors.As; driver errors
// from begin/commit are classified (see Classify).
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.Printf("database: rollback failed: %v", rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit tx: %w", err))
	}
	committed = true
	return nil
}
