// Package usage records billable operation outcomes asynchronously.
// Recording is at-least-effort: a failed or dropped write never masks or
// rolls back the primary operation's outcome.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/convertly/server/internal/module/billing"
	"github.com/convertly/server/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record represents a usage record to be persisted.
type Record struct {
	UserID     uuid.UUID
	Tool       string
	Credits    int64
	Success    bool
	DurationMs int
	Error      string
	Timestamp  time.Time
}

// Store persists usage records.
type Store interface {
	CreateUsageRecord(ctx context.Context, record *billing.UsageRecord) error
}

// Recorder records usage asynchronously.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	buffer  chan *Record
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewRecorder creates a new usage recorder.
func NewRecorder(store Store, logger *zap.Logger, m *metrics.Metrics, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:   store,
		logger:  logger.Named("usage-recorder"),
		metrics: m,
		buffer:  make(chan *Record, bufferSize),
		done:    make(chan struct{}),
	}
	r.start()
	return r
}

// Record queues a usage record for persistence. It never fails from the
// caller's point of view; a full buffer drops the record with a warning.
func (r *Recorder) Record(record *Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	select {
	case r.buffer <- record:
	default:
		if r.metrics != nil {
			r.metrics.UsageRecordsDroppedTotal.Inc()
		}
		r.logger.Warn("usage record buffer full, dropping record",
			zap.String("user_id", record.UserID.String()),
			zap.String("tool", record.Tool),
		)
	}
}

// Close stops the recorder and flushes remaining records.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case record := <-r.buffer:
				r.persist(record)
			case <-r.done:
				// Flush remaining records
				for {
					select {
					case record := <-r.buffer:
						r.persist(record)
					default:
						return
					}
				}
			}
		}
	}()
}

func (r *Recorder) persist(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := &billing.UsageRecord{
		UserID:     record.UserID,
		Tool:       record.Tool,
		Credits:    record.Credits,
		Success:    record.Success,
		DurationMs: record.DurationMs,
		Error:      record.Error,
		Timestamp:  record.Timestamp,
	}

	if err := r.store.CreateUsageRecord(ctx, row); err != nil {
		r.logger.Error("failed to persist usage record",
			zap.Error(err),
			zap.String("user_id", record.UserID.String()),
			zap.String("tool", record.Tool),
		)
	}
}
