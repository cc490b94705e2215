package database

import "context"

// TxRunner opens database scopes and transactions for services.
// Services depend on this interface so unit tests can run them without a database.
type TxRunner interface {
	// WithScope returns a context carrying a database scope.
	// The cleanup function must be called when the scope is no longer needed.
	WithScope(ctx context.Context) (context.Context, func(), error)
	// InTx runs fn in a transaction, acquiring a scope first if ctx has none.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeProvider creates scoped contexts backed by a DB.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

var _ TxRunner = (*ScopeProvider)(nil)

// WithScope reuses a scope already present in ctx, otherwise acquires a new connection.
func (p *ScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	if _, ok := GetScope(ctx); ok {
		return ctx, func() {}, nil
	}
	scope, err := p.db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}

// InTx runs fn in a transaction.
func (p *ScopeProvider) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scopedCtx, cleanup, err := p.WithScope(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return InTx(scopedCtx, fn)
}
