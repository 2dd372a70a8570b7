// Package pricing computes basket prices from catalog snapshots and rule sets.
// Everything here is a pure function of its inputs and safe for concurrent use.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

type Options struct {
	Policy Policy
	// ExclusivePromotions stops a bundle from rewarding a line that already
	// received a BOGO reward.
	ExclusivePromotions bool
}

// Input is one pricing request with every collaborator read already done.
// Rules are the raw, unfiltered sets; Price runs eligibility itself.
type Input struct {
	Customer domain.Customer
	Market   string
	Items    []domain.PricingItem
	Products map[string]domain.Product
	Rules    domain.RuleSet
	Now      time.Time
}

func Price(in Input, opts Options) domain.PricingResult {
	if opts.Policy == "" {
		opts.Policy = PolicyBestDeal
	}
	eligible := FilterEligible(in.Rules, in.Customer, in.Market, in.Now)

	lines, lineErrors := buildLines(in.Items, in.Products)
	discounts := applyDiscounts(lines, in.Customer.Tier, eligible, in.Now, opts.Policy)
	promotions := applyPromotions(lines, eligible, opts.ExclusivePromotions)

	subtotal, final := aggregate(lines)
	return domain.PricingResult{
		CustomerID:        in.Customer.ID,
		Market:            in.Market,
		Lines:             lines,
		Subtotal:          subtotal,
		TotalDiscount:     subtotal.Sub(final),
		FinalTotal:        final,
		AppliedDiscounts:  discounts,
		AppliedPromotions: promotions,
		Errors:            lineErrors,
		PricedAt:          in.Now,
	}
}

func aggregate(lines []domain.PricingLine) (subtotal decimal.Decimal, final decimal.Decimal) {
	subtotal, final = decimal.Zero, decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal())
		final = final.Add(line.LineTotal)
	}
	return subtotal, final
}
