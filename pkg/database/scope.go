package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoScope is returned when a repository is called without a database scope in context.
var ErrNoScope = errors.New("no database scope in context")

// Querier is the subset of pgx shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope wraps an acquired connection and, inside InTx, the open transaction on it.
// Repositories read the scope from context so the same code runs inside or outside a transaction.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Querier returns the transaction when one is open, otherwise the connection.
func (s *Scope) Querier() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// InTx reports whether the scope carries an open transaction.
func (s *Scope) InTx() bool {
	return s.tx != nil
}

// Close releases the connection to the pool.
// Only the scope returned by Acquire owns the connection; transaction scopes must not be closed.
func (s *Scope) Close() {
	if s.Conn == nil || s.tx != nil {
		return
	}
	s.Conn.Release()
}

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

type contextKey string

// ScopeKey is the context key for storing the database scope.
const ScopeKey contextKey = "dbScope"

// GetScope retrieves the database scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// GetQuerier returns the querier of the scope stored in context.
func GetQuerier(ctx context.Context) (Querier, error) {
	scope, ok := GetScope(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	return scope.Querier(), nil
}

// InTx runs fn in a transaction on the connection of the scope stored in context.
// A nested call opens a savepoint, so an inner failure can be rolled back on its own
// while the outer transaction decides the final outcome.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return ErrNoScope
	}

	var (
		tx  pgx.Tx
		err error
	)
	if scope.tx != nil {
		tx, err = scope.tx.Begin(ctx)
	} else {
		tx, err = scope.Conn.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(SetScope(ctx, &Scope{Conn: scope.Conn, tx: tx})); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AdvisoryXactLock takes a transaction-scoped advisory lock on key.
// The lock is released when the surrounding transaction ends.
func AdvisoryXactLock(ctx context.Context, key string) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return ErrNoScope
	}
	if !scope.InTx() {
		return fmt.Errorf("advisory lock %q requires a transaction", key)
	}
	if _, err := scope.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("failed to lock %q: %w", key, err)
	}
	return nil
}
