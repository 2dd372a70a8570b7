package store

import (
	"context"
	"errors"

	"gtipricing/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Catalog resolves customers and products. GetCustomer returns ErrNotFound on
// a miss; GetProductsByIDs simply omits ids it does not know.
type Catalog interface {
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// RuleRepository returns the full, unfiltered rule sets.
type RuleRepository interface {
	ListCustomerDiscounts(ctx context.Context) ([]domain.CustomerDiscount, error)
	ListInventoryDiscounts(ctx context.Context) ([]domain.InventoryDiscount, error)
	ListBogoPromotions(ctx context.Context) ([]domain.BogoPromotion, error)
	ListBundleDeals(ctx context.Context) ([]domain.BundleDeal, error)
}

type AuditStore interface {
	CreatePricingAudit(ctx context.Context, entry domain.PricingAudit) error
}

type Repository interface {
	Catalog
	RuleRepository
	AuditStore
}
