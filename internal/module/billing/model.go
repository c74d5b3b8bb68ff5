package billing

import (
	"time"

	"github.com/google/uuid"
)

// Tier represents a subscription tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsValid checks if the tier is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// Unlimited is the sentinel limit meaning "no quota enforcement".
const Unlimited int64 = -1

// Limits holds the credit limits for a tier.
type Limits struct {
	DailyCredits   int64
	MonthlyCredits int64
}

// UnlimitedDaily returns true if the daily limit is the unlimited sentinel.
func (l Limits) UnlimitedDaily() bool { return l.DailyCredits == Unlimited }

// UnlimitedMonthly returns true if the monthly limit is the unlimited sentinel.
func (l Limits) UnlimitedMonthly() bool { return l.MonthlyCredits == Unlimited }

// CreditState holds a user's credit counters and reset timestamp.
// The ledger exclusively owns this row; nothing else may mutate it.
type CreditState struct {
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	CreditsUsedToday int64     `json:"credits_used_today" gorm:"not null;default:0"`
	CreditsUsedMonth int64     `json:"credits_used_month" gorm:"not null;default:0"`
	LastCreditReset  time.Time `json:"last_credit_reset" gorm:"not null"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (CreditState) TableName() string {
	return "user_credits"
}

// EffectiveAt returns the counters after conceptually applying any boundary
// reset the given instant implies. Day and month boundaries are evaluated
// independently: a mid-month day boundary zeroes only the daily counter.
// Nothing is persisted; resets are written together with the next
// successful reservation.
func (s *CreditState) EffectiveAt(now time.Time) (daily, monthly int64) {
	daily = s.CreditsUsedToday
	if s.LastCreditReset.Before(dayStart(now)) {
		daily = 0
	}
	monthly = s.CreditsUsedMonth
	if s.LastCreditReset.Before(monthStart(now)) {
		monthly = 0
	}
	return daily, monthly
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Subscription is the read-side view of the billing collaborator's
// subscription record. Tier changes are written by that collaborator;
// this module only consumes the current tier.
type Subscription struct {
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Tier      Tier      `json:"tier" gorm:"not null;default:free"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Subscription) TableName() string {
	return "subscriptions"
}

// UsageRecord represents a single attempted billable operation.
// Records are append-only and never consulted for quota decisions.
type UsageRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Tool       string    `gorm:"not null"` // opaque tool tag, not interpreted here
	Credits    int64     `gorm:"not null;default:0"`
	Success    bool      `gorm:"not null"`
	DurationMs int       `gorm:"not null;default:0"`
	Error      string
	Timestamp  time.Time `gorm:"not null;index"`
}

// TableName returns the database table name.
func (UsageRecord) TableName() string {
	return "usage_records"
}

// UsageStats aggregates usage records for the analytics surface.
type UsageStats struct {
	TotalCredits    int64                 `json:"total_credits"`
	TotalOperations int                   `json:"total_operations"`
	ByTool          map[string]*ToolUsage `json:"by_tool"`
	ByDay           []*DailyUsage         `json:"by_day"`
}

// ToolUsage aggregates usage per tool.
type ToolUsage struct {
	Tool            string `json:"tool"`
	TotalCredits    int64  `json:"total_credits"`
	TotalOperations int    `json:"total_operations"`
}

// DailyUsage aggregates usage per day.
type DailyUsage struct {
	Date            string `json:"date"`
	TotalCredits    int64  `json:"total_credits"`
	TotalOperations int    `json:"total_operations"`
}
