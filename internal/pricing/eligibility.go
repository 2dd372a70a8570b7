package pricing

import (
	"maps"
	"slices"
	"time"

	"gtipricing/backend/internal/domain"
)

// FilterEligible returns fresh slices holding only the rules that are active
// and applicable to customer in market at now. Inputs are never modified.
// When a class contains the same id twice, the first record wins.
func FilterEligible(rules domain.RuleSet, customer domain.Customer, market string, now time.Time) domain.RuleSet {
	out := domain.RuleSet{
		CustomerDiscounts:  make([]domain.CustomerDiscount, 0, len(rules.CustomerDiscounts)),
		InventoryDiscounts: make([]domain.InventoryDiscount, 0, len(rules.InventoryDiscounts)),
		BogoPromotions:     make([]domain.BogoPromotion, 0, len(rules.BogoPromotions)),
		BundleDeals:        make([]domain.BundleDeal, 0, len(rules.BundleDeals)),
	}

	seen := make(map[string]struct{})
	for _, discount := range rules.CustomerDiscounts {
		if firstOccurrence(seen, discount.ID) && customerDiscountEligible(discount, customer, market, now) {
			out.CustomerDiscounts = append(out.CustomerDiscounts, cloneCustomerDiscount(discount))
		}
	}

	clear(seen)
	for _, discount := range rules.InventoryDiscounts {
		if firstOccurrence(seen, discount.ID) && discount.Status == domain.StatusActive {
			out.InventoryDiscounts = append(out.InventoryDiscounts, discount)
		}
	}

	clear(seen)
	for _, promo := range rules.BogoPromotions {
		if firstOccurrence(seen, promo.ID) && promo.Status == domain.StatusActive && withinWindow(promo.StartDate, promo.EndDate, now) {
			out.BogoPromotions = append(out.BogoPromotions, promo)
		}
	}

	clear(seen)
	for _, bundle := range rules.BundleDeals {
		if firstOccurrence(seen, bundle.ID) && bundle.Status == domain.StatusActive && withinWindow(bundle.StartDate, bundle.EndDate, now) {
			bundle.ProductIDs = slices.Clone(bundle.ProductIDs)
			bundle.MinQuantities = maps.Clone(bundle.MinQuantities)
			out.BundleDeals = append(out.BundleDeals, bundle)
		}
	}

	return out
}

func customerDiscountEligible(discount domain.CustomerDiscount, customer domain.Customer, market string, now time.Time) bool {
	if discount.Status != domain.StatusActive {
		return false
	}
	if !slices.Contains(discount.Tiers, customer.Tier) {
		return false
	}
	if !slices.Contains(discount.Markets, market) {
		return false
	}
	return withinWindow(discount.StartDate, discount.EndDate, now)
}

// withinWindow treats both bounds as inclusive and a nil end as open-ended.
func withinWindow(start time.Time, end *time.Time, now time.Time) bool {
	if now.Before(start) {
		return false
	}
	return end == nil || !now.After(*end)
}

func firstOccurrence(seen map[string]struct{}, id string) bool {
	if _, dup := seen[id]; dup {
		return false
	}
	seen[id] = struct{}{}
	return true
}

func cloneCustomerDiscount(discount domain.CustomerDiscount) domain.CustomerDiscount {
	discount.Tiers = slices.Clone(discount.Tiers)
	discount.Markets = slices.Clone(discount.Markets)
	discount.QuantityBreaks = slices.Clone(discount.QuantityBreaks)
	return discount
}
