package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/internal/observability"
	"github.com/upb/inventory-authz/models"
	"github.com/upb/inventory-authz/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when recording before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")

	// ErrBufferFull is returned when an event is dropped for back-pressure
	ErrBufferFull = errors.New("audit event buffer full")
)

// Service records authorization decisions asynchronously. Recording never
// blocks the request path; when the buffer is full the event is dropped.
type Service struct {
	repo        repositories.AuditRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	eventChan   chan *models.AuthDecisionLog
	workerCount int
	bufferSize  int
	batchSize   int
	logAllowed  bool
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int  // Size of the event buffer channel
	WorkerCount int  // Number of concurrent workers
	BatchSize   int  // Maximum events written per store call
	LogAllowed  bool // Record allow decisions as well as denies
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
		BatchSize:   50,
	}
}

// NewService creates a new audit Service
func NewService(repo repositories.AuditRepository, logger *zap.Logger, metrics *observability.Metrics, cfg Config) *Service {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		metrics:     metrics,
		eventChan:   make(chan *models.AuthDecisionLog, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		bufferSize:  cfg.BufferSize,
		batchSize:   cfg.BatchSize,
		logAllowed:  cfg.LogAllowed,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued events to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return errors.New("audit service stop timed out after " + timeout.String())
	}
}

// Record queues log without blocking
func (s *Service) Record(log *models.AuthDecisionLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- log:
		return nil
	default:
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("request_id", log.RequestID),
			zap.String("outcome", string(log.Outcome)))
		return ErrBufferFull
	}
}

// ObserveDecision implements auth.DecisionObserver. Denies are always
// recorded; allows only when configured. Public routes are never recorded.
func (s *Service) ObserveDecision(_ context.Context, req auth.AuthRequest, d auth.Decision) {
	if d.State == auth.StatePublic {
		return
	}
	if d.Authorized && !s.logAllowed {
		return
	}

	outcome := models.OutcomeDeny
	if d.Authorized {
		outcome = models.OutcomeAllow
	}

	log := models.NewAuthDecisionLog(outcome, string(d.State)).
		WithTarget(auth.NormalizeRoute(req.Route), req.Method).
		WithPermission(string(d.Resource), string(d.Action)).
		WithRequest(req.Meta.RequestID, req.Meta.RemoteAddr, req.Meta.UserAgent)
	if d.Payload != nil {
		log.WithIdentity(d.Payload.UserID, string(d.Payload.Role))
	}

	// drops are already counted and logged by Record
	_ = s.Record(log)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for first := range s.eventChan {
		batch := s.drain(first)
		if err := s.flush(batch); err != nil {
			s.logger.Error("failed to write audit events",
				zap.Int("worker_id", id),
				zap.Int("events", len(batch)),
				zap.Error(err))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// drain collects whatever is already queued, up to the batch size
func (s *Service) drain(first *models.AuthDecisionLog) []*models.AuthDecisionLog {
	batch := []*models.AuthDecisionLog{first}
	for len(batch) < s.batchSize {
		select {
		case log, ok := <-s.eventChan:
			if !ok {
				return batch
			}
			batch = append(batch, log)
		default:
			return batch
		}
	}
	return batch
}

func (s *Service) flush(batch []*models.AuthDecisionLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if len(batch) == 1 {
		err = s.repo.Insert(ctx, batch[0])
	} else {
		err = s.repo.InsertBatch(ctx, batch)
	}
	s.metrics.RecordAuditWrite(err)
	return err
}

// Recent returns up to limit recorded decisions, newest first
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error) {
	return s.repo.ListRecent(ctx, limit)
}

// Summary returns the number of recorded decisions per outcome
func (s *Service) Summary(ctx context.Context) (map[models.DecisionOutcome]int64, error) {
	return s.repo.CountByOutcome(ctx)
}

// Ping reports whether the audit store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

var _ auth.DecisionObserver = (*Service)(nil)
