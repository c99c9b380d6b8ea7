package audit

import (
	"context"
	"sync"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// Trail is the independent audit writer. Records are queued and persisted by
// a background goroutine on the root database connection, never inside a
// workflow transaction: a rolled-back transition leaves no record and a
// failed write never unwinds a committed transition.
type Trail struct {
	repo   port.AuditRepository
	queue  chan *models.AuditRecord
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewTrail starts the audit writer with the given queue capacity
func NewTrail(repo port.AuditRepository, buffer int, logger *zap.Logger) *Trail {
	t := &Trail{
		repo:   repo,
		queue:  make(chan *models.AuditRecord, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go t.run()
	return t
}

// Append queues a record. It never blocks and never fails the caller; when
// the queue is full the record is dropped and the drop is logged.
func (t *Trail) Append(record *models.AuditRecord) {
	select {
	case t.queue <- record:
	default:
		t.logger.Error("Audit queue full, record dropped",
			zap.String("action", record.Action),
			zap.Int64("entity_id", record.EntityID))
	}
}

// Close stops accepting records, drains the queue and waits for the writer
func (t *Trail) Close() {
	t.once.Do(func() {
		close(t.queue)
	})
	<-t.done
}

func (t *Trail) run() {
	defer close(t.done)
	for record := range t.queue {
		if err := t.repo.Append(context.Background(), record); err != nil {
			t.logger.Error("Failed to persist audit record",
				zap.String("action", record.Action),
				zap.Int64("entity_id", record.EntityID),
				zap.Error(err))
		}
	}
}

// Verify interface compliance
var _ port.AuditTrail = (*Trail)(nil)
