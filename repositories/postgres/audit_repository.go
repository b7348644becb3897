package postgres

import (
	"context"
	"fmt"

	"github.com/upb/inventory-authz/models"
	"github.com/upb/inventory-authz/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, request_id, user_id, role, route, method, outcome, reason,
		       resource, action, ip_address, user_agent, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	tx     *TransactionManager
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		tx:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuthDecisionLog) error {
	query := `
		INSERT INTO authz_audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.RequestID,
		log.UserID,
		log.Role,
		log.Route,
		log.Method,
		log.Outcome,
		log.Reason,
		log.Resource,
		log.Action,
		log.IPAddress,
		log.UserAgent,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("outcome", string(log.Outcome)))
	return nil
}

// InsertBatch inserts logs in a single transaction
func (r *AuditRepository) InsertBatch(ctx context.Context, logs []*models.AuthDecisionLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		for _, log := range logs {
			if err := r.Insert(ctx, log); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRecent returns up to limit decisions, newest first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM authz_audit_logs
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuthDecisionLog
	for rows.Next() {
		log := &models.AuthDecisionLog{}
		if err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.UserID,
			&log.Role,
			&log.Route,
			&log.Method,
			&log.Outcome,
			&log.Reason,
			&log.Resource,
			&log.Action,
			&log.IPAddress,
			&log.UserAgent,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}

// CountByOutcome returns the number of stored decisions per outcome
func (r *AuditRepository) CountByOutcome(ctx context.Context) (map[models.DecisionOutcome]int64, error) {
	query := `SELECT outcome, COUNT(*) FROM authz_audit_logs GROUP BY outcome`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DecisionOutcome]int64)
	for rows.Next() {
		var outcome models.DecisionOutcome
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[outcome] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit counts: %w", err)
	}

	return counts, nil
}

// Ping reports whether the database is reachable
func (r *AuditRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)
