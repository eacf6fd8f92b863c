package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/database"
)

type txKey struct{}

// querier is the subset of *sql.DB and *sql.Tx used by the repositories.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transactor scopes a unit of work in a database transaction. The open
// transaction travels in the context handed to fn; repositories pick it up
// so every statement of the unit runs on the same connection.
type Transactor struct {
	db *database.DB
}

// NewTransactor returns a Transactor bound to db.
func NewTransactor(db *database.DB) *Transactor { return &Transactor{db: db} }

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on any other exit path, including panics.
// Calls nested inside an outer WithTx join the outer transaction.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit transaction", err)
	}
	committed = true
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// conn returns the transaction carried by ctx or the pool.
func conn(ctx context.Context, db *database.DB) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// forUpdate returns the row-locking suffix for SELECTs that precede a write
// on the same row. SQLite write transactions already hold the database lock.
func forUpdate(d database.Dialect) string {
	if d == database.MySQL {
		return " FOR UPDATE"
	}
	return ""
}

func storeError(op string, err error) error {
	return apperr.Transient(fmt.Errorf("%s: %w", op, err))
}
