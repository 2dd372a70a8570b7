package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/store"
)

const (
	KeyCustomerDiscounts  = "pricing:rules:customer_discounts"
	KeyInventoryDiscounts = "pricing:rules:inventory_discounts"
	KeyBogoPromotions     = "pricing:rules:bogo_promotions"
	KeyBundleDeals        = "pricing:rules:bundle_deals"

	DefaultRuleTTL = 5 * time.Minute
)

// CachedRules is a read-through store.RuleRepository. Cache failures are
// logged and fall back to the wrapped repository; repository failures are
// returned unchanged and never cached.
type CachedRules struct {
	next   store.RuleRepository
	cache  RuleCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRules(next store.RuleRepository, c RuleCache, ttl time.Duration, logger *slog.Logger) *CachedRules {
	if c == nil {
		c = NoopRuleCache{}
	}
	if ttl <= 0 {
		ttl = DefaultRuleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRules{next: next, cache: c, ttl: ttl, logger: logger.With("component", "rule_cache")}
}

func (c *CachedRules) ListCustomerDiscounts(ctx context.Context) ([]domain.CustomerDiscount, error) {
	return readThrough(ctx, c, KeyCustomerDiscounts, c.next.ListCustomerDiscounts)
}

func (c *CachedRules) ListInventoryDiscounts(ctx context.Context) ([]domain.InventoryDiscount, error) {
	return readThrough(ctx, c, KeyInventoryDiscounts, c.next.ListInventoryDiscounts)
}

func (c *CachedRules) ListBogoPromotions(ctx context.Context) ([]domain.BogoPromotion, error) {
	return readThrough(ctx, c, KeyBogoPromotions, c.next.ListBogoPromotions)
}

func (c *CachedRules) ListBundleDeals(ctx context.Context) ([]domain.BundleDeal, error) {
	return readThrough(ctx, c, KeyBundleDeals, c.next.ListBundleDeals)
}

// Invalidate drops every cached rule class.
func (c *CachedRules) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, KeyCustomerDiscounts, KeyInventoryDiscounts, KeyBogoPromotions, KeyBundleDeals)
}

func readThrough[T any](ctx context.Context, c *CachedRules, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	raw, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "rule cache read failed", "key", key, "error", err)
	case ok:
		var cached []T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(items)
	if err != nil {
		c.logger.WarnContext(ctx, "rule cache encode failed", "key", key, "error", err)
		return items, nil
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "rule cache write failed", "key", key, "error", err)
	}
	return items, nil
}
