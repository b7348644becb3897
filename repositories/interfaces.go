package repositories

import (
	"context"

	"github.com/upb/inventory-authz/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// AuditRepository stores authorization decisions
type AuditRepository interface {
	// Insert stores a single decision
	Insert(ctx context.Context, log *models.AuthDecisionLog) error

	// InsertBatch stores several decisions atomically
	InsertBatch(ctx context.Context, logs []*models.AuthDecisionLog) error

	// ListRecent returns up to limit decisions, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error)

	// CountByOutcome returns the number of stored decisions per outcome
	CountByOutcome(ctx context.Context) (map[models.DecisionOutcome]int64, error)

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error
}
