package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"gtipricing/backend/internal/domain"
)

const (
	SourceCustomerDiscounts  = "customer_discounts"
	SourceInventoryDiscounts = "inventory_discounts"
	SourceBogoPromotions     = "bogo_promotions"
	SourceBundleDeals        = "bundle_deals"
)

// sources is everything one pricing request reads from collaborators.
type sources struct {
	customer domain.Customer
	products map[string]domain.Product
	rules    domain.RuleSet
	failures []string
}

// gather resolves the customer first, then reads products and the four rule
// classes concurrently. A failed rule class degrades to an empty set and is
// reported in failures; a failed product read aborts the request.
func (s *Service) gather(ctx context.Context, customerID string, productIDs []string) (sources, error) {
	customer, err := s.catalog.GetCustomer(ctx, customerID)
	if err != nil {
		return sources{}, fmt.Errorf("customer %s: %w", customerID, err)
	}

	src := sources{customer: *customer, products: map[string]domain.Product{}}
	var mu sync.Mutex
	fail := func(ctx context.Context, source string, err error) {
		s.log(ctx).WarnContext(ctx, "pricing without rule source",
			"source", source,
			"error", fmt.Errorf("%w: %w", ErrPartialSourceFailure, err),
		)
		s.sourceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
		mu.Lock()
		src.failures = append(src.failures, source)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(productIDs) > 0 {
		g.Go(func() error {
			products, err := s.catalog.GetProductsByIDs(gctx, productIDs)
			if err != nil {
				return fmt.Errorf("load products: %w", err)
			}
			src.products = products
			return nil
		})
	}
	g.Go(func() error {
		items, err := s.rules.ListCustomerDiscounts(gctx)
		if err != nil {
			fail(gctx, SourceCustomerDiscounts, err)
			return nil
		}
		src.rules.CustomerDiscounts = keepValid(gctx, s, SourceCustomerDiscounts, items, s.checkCustomerDiscount)
		return nil
	})
	g.Go(func() error {
		items, err := s.rules.ListInventoryDiscounts(gctx)
		if err != nil {
			fail(gctx, SourceInventoryDiscounts, err)
			return nil
		}
		src.rules.InventoryDiscounts = keepValid(gctx, s, SourceInventoryDiscounts, items, s.checkInventoryDiscount)
		return nil
	})
	g.Go(func() error {
		items, err := s.rules.ListBogoPromotions(gctx)
		if err != nil {
			fail(gctx, SourceBogoPromotions, err)
			return nil
		}
		src.rules.BogoPromotions = keepValid(gctx, s, SourceBogoPromotions, items, s.checkBogoPromotion)
		return nil
	})
	g.Go(func() error {
		items, err := s.rules.ListBundleDeals(gctx)
		if err != nil {
			fail(gctx, SourceBundleDeals, err)
			return nil
		}
		src.rules.BundleDeals = keepValid(gctx, s, SourceBundleDeals, items, s.checkBundleDeal)
		return nil
	})

	if err := g.Wait(); err != nil {
		return sources{}, err
	}
	sort.Strings(src.failures)
	return src, nil
}

func newRecordValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// keepValid drops records that fail validation so the engine only ever sees
// well-formed rules.
func keepValid[T any](ctx context.Context, s *Service, source string, items []T, check func(T) error) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if err := check(item); err != nil {
			s.log(ctx).WarnContext(ctx, "dropping invalid rule record", "source", source, "error", err)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (s *Service) checkCustomerDiscount(d domain.CustomerDiscount) error {
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("customer discount %q: %w", d.ID, err)
	}
	for _, band := range d.QuantityBreaks {
		if band.MaxQuantity != nil && *band.MaxQuantity < band.MinQuantity {
			return fmt.Errorf("customer discount %q: quantity break %d-%d is empty", d.ID, band.MinQuantity, *band.MaxQuantity)
		}
	}
	return checkWindow(d.ID, d.StartDate, d.EndDate)
}

func (s *Service) checkInventoryDiscount(d domain.InventoryDiscount) error {
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("inventory discount %q: %w", d.ID, err)
	}
	return nil
}

func (s *Service) checkBogoPromotion(p domain.BogoPromotion) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("bogo promotion %q: %w", p.ID, err)
	}
	return checkWindow(p.ID, p.StartDate, p.EndDate)
}

func (s *Service) checkBundleDeal(b domain.BundleDeal) error {
	if err := s.validate.Struct(b); err != nil {
		return fmt.Errorf("bundle deal %q: %w", b.ID, err)
	}
	return checkWindow(b.ID, b.StartDate, b.EndDate)
}

func checkWindow(id string, start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return fmt.Errorf("rule %q ends before it starts", id)
	}
	return nil
}
