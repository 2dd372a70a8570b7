package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

type countingRules struct {
	calls int
	err   error
}

func (r *countingRules) ListCustomerDiscounts(_ context.Context) ([]domain.CustomerDiscount, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []domain.CustomerDiscount{{
		ID:        "cd-1",
		Name:      "Tier A brand",
		Status:    domain.StatusActive,
		Level:     domain.LevelBrand,
		Target:    "Acme",
		Kind:      domain.KindPercentage,
		Value:     decimal.RequireFromString("8.5"),
		Tiers:     []domain.Tier{domain.TierA},
		Markets:   []string{"IL"},
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}, nil
}

func (r *countingRules) ListInventoryDiscounts(_ context.Context) ([]domain.InventoryDiscount, error) {
	r.calls++
	return nil, r.err
}

func (r *countingRules) ListBogoPromotions(_ context.Context) ([]domain.BogoPromotion, error) {
	r.calls++
	return nil, r.err
}

func (r *countingRules) ListBundleDeals(_ context.Context) ([]domain.BundleDeal, error) {
	r.calls++
	return nil, r.err
}

type brokenCache struct{}

func (brokenCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Delete(_ context.Context, _ ...string) error {
	return errors.New("connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedRulesReadsThrough(t *testing.T) {
	mem, err := NewMemoryRuleCache(16)
	if err != nil {
		t.Fatalf("new memory cache: %v", err)
	}
	repo := &countingRules{}
	cached := NewCachedRules(repo, mem, time.Minute, discardLogger())
	ctx := context.Background()

	first, err := cached.ListCustomerDiscounts(ctx)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := cached.ListCustomerDiscounts(ctx)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}

	if repo.calls != 1 {
		t.Fatalf("expected one repository call, got %d", repo.calls)
	}
	if len(second) != 1 || !second[0].Value.Equal(first[0].Value) || !second[0].StartDate.Equal(first[0].StartDate) {
		t.Fatalf("cached value differs from source: %+v vs %+v", second, first)
	}

	if err := cached.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cached.ListCustomerDiscounts(ctx); err != nil {
		t.Fatalf("read after invalidate: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", repo.calls)
	}
}

func TestCachedRulesDoesNotCacheFailures(t *testing.T) {
	mem, _ := NewMemoryRuleCache(16)
	repo := &countingRules{err: errors.New("db down")}
	cached := NewCachedRules(repo, mem, time.Minute, discardLogger())

	for i := 0; i < 2; i++ {
		if _, err := cached.ListBogoPromotions(context.Background()); err == nil {
			t.Fatalf("expected repository error to surface")
		}
	}
	if repo.calls != 2 {
		t.Fatalf("expected failures to bypass the cache, got %d calls", repo.calls)
	}
}

func TestCachedRulesSurvivesBrokenCache(t *testing.T) {
	repo := &countingRules{}
	cached := NewCachedRules(repo, brokenCache{}, time.Minute, discardLogger())

	discounts, err := cached.ListCustomerDiscounts(context.Background())
	if err != nil {
		t.Fatalf("expected fallback to repository, got %v", err)
	}
	if len(discounts) != 1 {
		t.Fatalf("expected one discount, got %d", len(discounts))
	}
}

func TestMemoryRuleCacheExpires(t *testing.T) {
	mem, _ := NewMemoryRuleCache(4)
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return current }
	ctx := context.Background()

	if err := mem.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := mem.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok, _ := mem.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after expiry")
	}
}
