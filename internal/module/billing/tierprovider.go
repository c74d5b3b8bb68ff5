package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// subscriptionTierProvider resolves tiers from the subscriptions table
// maintained by the billing collaborator.
type subscriptionTierProvider struct {
	db *gorm.DB
}

// NewSubscriptionTierProvider creates a tier provider backed by the
// subscriptions table.
func NewSubscriptionTierProvider(db *gorm.DB) TierProvider {
	return &subscriptionTierProvider{db: db}
}

func (p *subscriptionTierProvider) Tier(ctx context.Context, userID uuid.UUID) (Tier, error) {
	var sub Subscription
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get subscription: %w", err)
	}
	return sub.Tier, nil
}

// CachedTierProvider caches tier lookups in Redis. Tiers change rarely
// (only when the billing collaborator updates a subscription), so a short
// TTL keeps the reserve hot path off the subscriptions table. Cache errors
// fall through to the inner provider.
type CachedTierProvider struct {
	inner  TierProvider
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTierProvider wraps a tier provider with a Redis cache.
func NewCachedTierProvider(inner TierProvider, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedTierProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTierProvider{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("tier-cache"),
	}
}

// Tier returns the cached tier, falling back to the inner provider.
func (c *CachedTierProvider) Tier(ctx context.Context, userID uuid.UUID) (Tier, error) {
	key := tierKey(userID)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		tier := Tier(val)
		if tier.IsValid() {
			return tier, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("tier cache read failed", zap.Error(err))
	}

	tier, err := c.inner.Tier(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, string(tier), c.ttl).Err(); err != nil {
		c.logger.Warn("tier cache write failed", zap.Error(err))
	}
	return tier, nil
}

// Invalidate drops the cached tier, e.g. after a subscription change event.
func (c *CachedTierProvider) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, tierKey(userID)).Err()
}

func tierKey(userID uuid.UUID) string {
	return fmt.Sprintf("tier:%s", userID.String())
}
