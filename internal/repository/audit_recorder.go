package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	"github.com/scout-hq/scout-api/pkg/jobs"
)

// AsyncAuditRecorder wraps a UserRepository so that audit inserts happen on a
// background worker queue instead of the request path. Every other method is
// the embedded repository's. A full queue drops the entry with a log line
// rather than slowing down logins.
type AsyncAuditRecorder struct {
	*UserRepository

	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAsyncAuditRecorder builds the recorder around repo. Call Start before
// use and Stop on shutdown to drain the workers.
func NewAsyncAuditRecorder(repo *UserRepository, logger *zap.Logger) *AsyncAuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AsyncAuditRecorder{
		UserRepository: repo,
		logger:         logger,
	}
	r.queue = jobs.NewQueue("audit", r.persist, jobs.Config{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}, logger)
	return r
}

// Start launches the background workers.
func (r *AsyncAuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop shuts down the workers.
func (r *AsyncAuditRecorder) Stop() {
	r.queue.Stop()
}

// CreateAuditLog enqueues the entry for background persistence. The ID and
// timestamp are fixed here so the record reflects when the action happened,
// not when the worker got to it.
func (r *AsyncAuditRecorder) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := r.queue.Enqueue(jobs.Task{ID: entry.ID, Payload: entry}); err != nil {
		r.logger.Warn("audit entry dropped", zap.String("action", entry.Action), zap.Error(err))
	}
	return nil
}

func (r *AsyncAuditRecorder) persist(ctx context.Context, task jobs.Task) error {
	entry, ok := task.Payload.(*models.AuditLog)
	if !ok {
		return nil
	}
	return r.UserRepository.CreateAuditLog(ctx, entry)
}
