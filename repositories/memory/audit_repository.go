// Package memory holds in-process repository implementations used when no
// database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/upb/inventory-authz/models"
	"github.com/upb/inventory-authz/repositories"
)

// AuditRepository keeps the most recent decisions in a bounded ring.
type AuditRepository struct {
	mu       sync.RWMutex
	logs     []*models.AuthDecisionLog
	next     int
	full     bool
	counts   map[models.DecisionOutcome]int64
	capacity int
}

// NewAuditRepository creates a repository holding at most capacity entries.
// Outcome counts cover every insert, including evicted entries.
func NewAuditRepository(capacity int) *AuditRepository {
	if capacity <= 0 {
		capacity = 1
	}
	return &AuditRepository{
		logs:     make([]*models.AuthDecisionLog, capacity),
		counts:   make(map[models.DecisionOutcome]int64),
		capacity: capacity,
	}
}

// Insert stores log, evicting the oldest entry when full
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuthDecisionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(log)
	return nil
}

// InsertBatch stores logs under one lock
func (r *AuditRepository) InsertBatch(ctx context.Context, logs []*models.AuthDecisionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range logs {
		r.insertLocked(log)
	}
	return nil
}

func (r *AuditRepository) insertLocked(log *models.AuthDecisionLog) {
	copied := *log
	r.logs[r.next] = &copied
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	r.counts[log.Outcome]++
}

// ListRecent returns up to limit decisions, newest first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = r.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]*models.AuthDecisionLog, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		copied := *r.logs[idx]
		out = append(out, &copied)
	}
	return out, nil
}

// CountByOutcome returns the number of inserted decisions per outcome
func (r *AuditRepository) CountByOutcome(ctx context.Context) (map[models.DecisionOutcome]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.DecisionOutcome]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out, nil
}

// Ping always succeeds
func (r *AuditRepository) Ping(context.Context) error {
	return nil
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)
