package tool

import (
	"context"
	"fmt"

	"github.com/convertly/server/internal/module/billing"
	"github.com/convertly/server/internal/module/billing/usage"
	"github.com/convertly/server/internal/module/file"
	"github.com/convertly/server/internal/shared/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreditLedger admission-tests credit reservations.
type CreditLedger interface {
	Reserve(ctx context.Context, userID uuid.UUID, credits int64) (*billing.Reservation, error)
}

// FileLifecycle drives file state transitions around a processing run.
type FileLifecycle interface {
	Get(ctx context.Context, id uuid.UUID) (*file.File, error)
	StartProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, outputPath, outputName string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// UsageSink receives outcome records. Recording is fire-and-forget.
type UsageSink interface {
	Record(record *usage.Record)
}

// Result is the outcome of a successful tool invocation.
type Result struct {
	File    *file.File `json:"file"`
	Output  *Output    `json:"output"`
	Credits int64      `json:"credits"`
}

// Service runs tool invocations: reserve credits first, process only on a
// granted reservation, record the outcome either way.
type Service struct {
	registry *Registry
	ledger   CreditLedger
	files    FileLifecycle
	sink     UsageSink
	clock    clock.Clock
	logger   *zap.Logger
}

// NewService creates a new tool invocation service.
func NewService(registry *Registry, ledger CreditLedger, files FileLifecycle, sink UsageSink, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		ledger:   ledger,
		files:    files,
		sink:     sink,
		clock:    clk,
		logger:   logger.Named("tool"),
	}
}

// Invoke runs the named tool against the user's file. Credits are reserved
// before any work happens; a denied reservation surfaces as
// *QuotaExceededError and runs nothing. The outcome is recorded whether the
// processor succeeds, fails, or is denied.
func (s *Service) Invoke(ctx context.Context, userID, fileID uuid.UUID, toolName string) (*Result, error) {
	p, err := s.registry.Get(toolName)
	if err != nil {
		return nil, err
	}

	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	// Foreign files are indistinguishable from missing ones.
	if f.OwnerID != userID {
		return nil, file.ErrFileNotFound
	}

	res, err := s.ledger.Reserve(ctx, userID, p.Cost())
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		// Denials are recorded with zero credits: nothing was consumed.
		s.record(userID, toolName, 0, false, 0, res.Reason)
		return nil, &QuotaExceededError{Reservation: res}
	}

	if err := s.files.StartProcessing(ctx, fileID); err != nil {
		return nil, err
	}

	started := s.clock.Now()
	out, procErr := p.Process(ctx, f)
	elapsed := int(s.clock.Now().Sub(started).Milliseconds())

	if procErr != nil {
		if failErr := s.files.Fail(ctx, fileID, procErr.Error()); failErr != nil {
			s.logger.Error("failed to mark file failed",
				zap.Error(failErr),
				zap.String("file_id", fileID.String()),
			)
		}
		s.record(userID, toolName, p.Cost(), false, elapsed, procErr.Error())
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessingFailed, toolName, procErr)
	}

	if err := s.files.Complete(ctx, fileID, out.Path, out.Name); err != nil {
		return nil, err
	}
	s.record(userID, toolName, p.Cost(), true, elapsed, "")

	f, err = s.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &Result{File: f, Output: out, Credits: p.Cost()}, nil
}

func (s *Service) record(userID uuid.UUID, tool string, credits int64, success bool, durationMs int, errMsg string) {
	if s.sink == nil {
		return
	}
	s.sink.Record(&usage.Record{
		UserID:     userID,
		Tool:       tool,
		Credits:    credits,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Timestamp:  s.clock.Now().UTC(),
	})
}
