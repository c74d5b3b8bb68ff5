package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/convertly/server/internal/shared/clock"
	"github.com/convertly/server/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TierProvider supplies the current subscription tier for a user.
// The ledger consumes tiers; it never owns or mutates them.
type TierProvider interface {
	Tier(ctx context.Context, userID uuid.UUID) (Tier, error)
}

// LimitKind identifies which limit a denial breached.
type LimitKind string

const (
	LimitDaily   LimitKind = "daily"
	LimitMonthly LimitKind = "monthly"
)

// Reservation is the result of a credit reservation attempt. A denial is a
// normal admission decision, not an error; it names the breached limit so
// the caller can present a precise upgrade prompt.
type Reservation struct {
	Allowed    bool      `json:"allowed"`
	Credits    int64     `json:"credits"`
	Limit      LimitKind `json:"limit,omitempty"`
	LimitValue int64     `json:"limit_value,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Ledger owns the per-user credit counters and reset timestamp, and
// admission-tests reservations against the tier catalog.
type Ledger struct {
	repo        Repository
	tiers       TierProvider
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *metrics.Metrics
	maxAttempts int
}

// NewLedger creates a new credit ledger.
func NewLedger(repo Repository, tiers TierProvider, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics, maxAttempts int) *Ledger {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Ledger{
		repo:        repo,
		tiers:       tiers,
		clock:       clk,
		logger:      logger.Named("ledger"),
		metrics:     m,
		maxAttempts: maxAttempts,
	}
}

// Reserve atomically reserves credits for a billable operation. It must be
// called before the operation runs; only a granted reservation permits
// execution. Zero-credit tools always succeed without touching counters.
//
// Day and month boundary resets are applied lazily: the effective counters
// are computed against the current clock, and the reset is persisted only
// together with a successful reservation. A user who never reserves after a
// boundary keeps stale persisted counters; the next check still computes
// the correct effective values.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID, credits int64) (*Reservation, error) {
	if credits < 0 {
		return nil, ErrInvalidCredits
	}
	if credits == 0 {
		return &Reservation{Allowed: true}, nil
	}

	tier, err := l.tiers.Tier(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := LimitsFor(tier)

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		state, err := l.repo.GetCreditState(ctx, userID)
		if err != nil {
			return nil, err
		}

		now := l.clock.Now().UTC()
		effDaily, effMonthly := state.EffectiveAt(now)

		if !limits.UnlimitedDaily() && effDaily+credits > limits.DailyCredits {
			return l.deny(LimitDaily, limits.DailyCredits, credits), nil
		}
		if !limits.UnlimitedMonthly() && effMonthly+credits > limits.MonthlyCredits {
			return l.deny(LimitMonthly, limits.MonthlyCredits, credits), nil
		}

		// Unlimited tiers skip the admission test but still accumulate
		// counters for observability.
		next := &CreditState{
			UserID:           userID,
			CreditsUsedToday: effDaily + credits,
			CreditsUsedMonth: effMonthly + credits,
			LastCreditReset:  now,
		}

		ok, err := l.repo.CompareAndSwapCredits(ctx, state, next)
		if err != nil {
			return nil, err
		}
		if ok {
			if l.metrics != nil {
				l.metrics.RecordReservation(true, "", credits)
			}
			return &Reservation{Allowed: true, Credits: credits}, nil
		}

		// A concurrent reservation for this user won the write; re-read
		// and re-test against the fresh counters.
		l.logger.Debug("reservation conflict, retrying",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, ErrReservationConflict
}

func (l *Ledger) deny(kind LimitKind, limit, credits int64) *Reservation {
	if l.metrics != nil {
		l.metrics.RecordReservation(false, string(kind), credits)
	}
	return &Reservation{
		Allowed:    false,
		Credits:    credits,
		Limit:      kind,
		LimitValue: limit,
		Reason:     fmt.Sprintf("%s credit limit of %d reached", kind, limit),
	}
}

// UsageStats returns aggregated usage for the analytics surface.
func (l *Ledger) UsageStats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*UsageStats, error) {
	return l.repo.GetUsageStats(ctx, userID, start, end)
}
