package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/store"
	"gtipricing/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	customers          map[string]domain.Customer
	products           map[string]domain.Product
	customerDiscounts  []domain.CustomerDiscount
	inventoryDiscounts []domain.InventoryDiscount
	bogoPromotions     []domain.BogoPromotion
	bundleDeals        []domain.BundleDeal
	audits             []domain.PricingAudit
}

func New() *Store {
	return &Store{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
	}
}

// NewSeeded returns a store filled with a small demo catalog and rule set
// whose dates are relative to the current time.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	days := func(n int) time.Time { return now.Add(time.Duration(n) * 24 * time.Hour) }
	expiring := days(12)
	fresh := days(180)
	price := decimal.RequireFromString

	for _, c := range []domain.Customer{
		{ID: "cust-greenleaf", BusinessName: "Green Leaf Dispensary", Tier: domain.TierA, Market: "IL"},
		{ID: "cust-northside", BusinessName: "Northside Wellness", Tier: domain.TierB, Market: "IL"},
		{ID: "cust-lakeshore", BusinessName: "Lakeshore Cannabis Co", Tier: domain.TierC, Market: "MI"},
	} {
		s.customers[c.ID] = c
	}

	for _, p := range []domain.Product{
		{ID: "prod-og-kush-35", Name: "OG Kush 3.5g", Brand: "Cresco", Category: "flower", Subcategory: "indica", BasePrice: price("240"), ExpirationDate: &expiring, THCPercentage: 24.1},
		{ID: "prod-blue-dream-7", Name: "Blue Dream 7g", Brand: "Cresco", Category: "flower", Subcategory: "sativa", BasePrice: price("420"), ExpirationDate: &fresh, THCPercentage: 19.4},
		{ID: "prod-vape-hybrid", Name: "Hybrid Vape Cart 1g", Brand: "Rhythm", Category: "vape", Subcategory: "cartridge", BasePrice: price("35"), ExpirationDate: &fresh, THCPercentage: 82},
		{ID: "prod-gummy-10pk", Name: "Watermelon Gummies 10pk", Brand: "Wana", Category: "edible", Subcategory: "gummy", BasePrice: price("18.50"), ExpirationDate: &expiring, THCPercentage: 0.5},
		{ID: "prod-preroll-5pk", Name: "Pre-roll 5pk", Brand: "Rhythm", Category: "preroll", Subcategory: "hybrid", BasePrice: price("42"), ExpirationDate: &fresh, THCPercentage: 21},
	} {
		s.products[p.ID] = p
	}

	s.customerDiscounts = []domain.CustomerDiscount{
		{ID: "cd-cresco-tier-a", Name: "Cresco Tier A", Status: domain.StatusActive, Level: domain.LevelBrand, Target: "Cresco", Kind: domain.KindPercentage, Value: price("8"), Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-30), Priority: 1},
		{ID: "cd-vape-volume", Name: "Vape wholesale", Status: domain.StatusActive, Level: domain.LevelCategory, Target: "vape", Kind: domain.KindFixed, Value: price("3"), Tiers: []domain.Tier{domain.TierA, domain.TierB}, Markets: []string{"IL", "MI"}, StartDate: days(-10), EndDate: ptr(days(20)), Priority: 1},
		{ID: "cd-legacy-c", Name: "Legacy tier C", Status: domain.StatusInactive, Level: domain.LevelCategory, Target: "flower", Kind: domain.KindPercentage, Value: price("5"), Tiers: []domain.Tier{domain.TierC}, Markets: []string{"MI"}, StartDate: days(-90)},
	}
	s.inventoryDiscounts = []domain.InventoryDiscount{
		{ID: "inv-short-dated", Name: "Short-dated stock", Status: domain.StatusActive, Trigger: domain.TriggerExpiration, TriggerThreshold: 30, Kind: domain.KindPercentage, Value: price("20"), Scope: domain.ScopeAll, Priority: 2},
		{ID: "inv-low-thc-flower", Name: "Low THC flower", Status: domain.StatusActive, Trigger: domain.TriggerTHC, TriggerThreshold: 20, Kind: domain.KindPercentage, Value: price("10"), Scope: domain.ScopeCategory, ScopeValue: "flower", Priority: 2},
	}
	s.bogoPromotions = []domain.BogoPromotion{
		{ID: "bogo-wana", Name: "Wana BOGO", Status: domain.StatusActive, TriggerLevel: domain.LevelBrand, TriggerTarget: "Wana", RewardKind: domain.RewardFree, StartDate: days(-7), EndDate: ptr(days(7))},
	}
	s.bundleDeals = []domain.BundleDeal{
		{ID: "bundle-rhythm", Name: "Rhythm vape + pre-roll", Status: domain.StatusActive, ProductIDs: []string{"prod-vape-hybrid", "prod-preroll-5pk"}, MinQuantity: 1, Kind: domain.KindPercentage, Value: price("10"), StartDate: days(-7)},
	}

	return s
}

func ptr[T any](v T) *T {
	return &v
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListCustomerDiscounts(_ context.Context) ([]domain.CustomerDiscount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.customerDiscounts), nil
}

func (s *Store) ListInventoryDiscounts(_ context.Context) ([]domain.InventoryDiscount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inventoryDiscounts), nil
}

func (s *Store) ListBogoPromotions(_ context.Context) ([]domain.BogoPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bogoPromotions), nil
}

func (s *Store) ListBundleDeals(_ context.Context) ([]domain.BundleDeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bundleDeals), nil
}

func (s *Store) CreatePricingAudit(_ context.Context, entry domain.PricingAudit) error {
	if entry.CustomerID == "" {
		return store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("pra")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

// Audits returns the recorded pricing audits, oldest first.
func (s *Store) Audits() []domain.PricingAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audits)
}

func (s *Store) PutCustomer(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
}

func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// SetRules replaces every rule class at once.
func (s *Store) SetRules(rules domain.RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerDiscounts = slices.Clone(rules.CustomerDiscounts)
	s.inventoryDiscounts = slices.Clone(rules.InventoryDiscounts)
	s.bogoPromotions = slices.Clone(rules.BogoPromotions)
	s.bundleDeals = slices.Clone(rules.BundleDeals)
}
