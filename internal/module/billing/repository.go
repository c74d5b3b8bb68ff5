package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for billing data access.
type Repository interface {
	// Credit state operations
	GetCreditState(ctx context.Context, userID uuid.UUID) (*CreditState, error)
	// CompareAndSwapCredits persists next only if the stored row still
	// matches old. Returns false when a concurrent reservation won.
	CompareAndSwapCredits(ctx context.Context, old, next *CreditState) (bool, error)

	// Usage operations
	CreateUsageRecord(ctx context.Context, record *UsageRecord) error
	GetUsageStats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*UsageStats, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new billing repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Credit State Operations ---

func (r *repository) GetCreditState(ctx context.Context, userID uuid.UUID) (*CreditState, error) {
	var state CreditState
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get credit state: %w", err)
	}
	return &state, nil
}

func (r *repository) CompareAndSwapCredits(ctx context.Context, old, next *CreditState) (bool, error) {
	// Single conditional UPDATE: the WHERE guard on the previously read
	// counters and reset timestamp makes the read-check-write cycle atomic
	// under concurrent reservations for the same user.
	res := r.db.WithContext(ctx).
		Model(&CreditState{}).
		Where(
			"user_id = ? AND credits_used_today = ? AND credits_used_month = ? AND last_credit_reset = ?",
			old.UserID, old.CreditsUsedToday, old.CreditsUsedMonth, old.LastCreditReset,
		).
		Updates(map[string]interface{}{
			"credits_used_today": next.CreditsUsedToday,
			"credits_used_month": next.CreditsUsedMonth,
			"last_credit_reset":  next.LastCreditReset,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("swap credit state: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// --- Usage Operations ---

func (r *repository) CreateUsageRecord(ctx context.Context, record *UsageRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

func (r *repository) GetUsageStats(ctx context.Context, userID uuid.UUID, start, end time.Time) (*UsageStats, error) {
	stats := &UsageStats{
		ByTool: make(map[string]*ToolUsage),
		ByDay:  make([]*DailyUsage, 0),
	}

	// Totals
	var totals struct {
		TotalCredits    int64
		TotalOperations int64
	}
	err := r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("COALESCE(SUM(credits), 0) as total_credits, COUNT(*) as total_operations").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("get usage totals: %w", err)
	}
	stats.TotalCredits = totals.TotalCredits
	stats.TotalOperations = int(totals.TotalOperations)

	// By tool
	var toolStats []struct {
		Tool            string
		TotalCredits    int64
		TotalOperations int64
	}
	err = r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("tool, COALESCE(SUM(credits), 0) as total_credits, COUNT(*) as total_operations").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Group("tool").
		Scan(&toolStats).Error
	if err != nil {
		return nil, fmt.Errorf("get usage by tool: %w", err)
	}
	for _, t := range toolStats {
		stats.ByTool[t.Tool] = &ToolUsage{
			Tool:            t.Tool,
			TotalCredits:    t.TotalCredits,
			TotalOperations: int(t.TotalOperations),
		}
	}

	// By day
	var dailyStats []struct {
		Date            time.Time
		TotalCredits    int64
		TotalOperations int64
	}
	err = r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("DATE(timestamp) as date, COALESCE(SUM(credits), 0) as total_credits, COUNT(*) as total_operations").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, start, end).
		Group("DATE(timestamp)").
		Order("DATE(timestamp) ASC").
		Scan(&dailyStats).Error
	if err != nil {
		return nil, fmt.Errorf("get usage by day: %w", err)
	}
	for _, d := range dailyStats {
		stats.ByDay = append(stats.ByDay, &DailyUsage{
			Date:            d.Date.Format("2006-01-02"),
			TotalCredits:    d.TotalCredits,
			TotalOperations: int(d.TotalOperations),
		})
	}

	return stats, nil
}
