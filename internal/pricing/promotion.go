package pricing

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

// applyPromotions layers BOGO and bundle rewards on top of the discounted
// unit prices. Each rule touches a line at most once and no line total
// drops below zero.
func applyPromotions(lines []domain.PricingLine, rules domain.RuleSet, exclusive bool) []domain.AppliedPromotion {
	applied := make([]domain.AppliedPromotion, 0, len(rules.BogoPromotions)+len(rules.BundleDeals))
	rewardedByBogo := make(map[int]bool)

	for _, promo := range rules.BogoPromotions {
		entry := domain.AppliedPromotion{
			ID:          promo.ID,
			Name:        promo.Name,
			Type:        domain.PromotionBogo,
			Description: describeBogo(promo),
			Savings:     decimal.Zero,
		}
		for i := range lines {
			line := &lines[i]
			if !matchesLevel(promo.TriggerLevel, promo.TriggerTarget, line.Product) {
				continue
			}
			freeUnits := line.Quantity / 2
			if freeUnits == 0 {
				continue
			}
			reward := bogoReward(promo, line.DiscountedPrice)
			savings := takePromotionSavings(line, reward.Mul(decimal.NewFromInt(int64(freeUnits))))
			if savings.Sign() <= 0 {
				continue
			}
			rewardedByBogo[i] = true
			entry.ProductIDs = append(entry.ProductIDs, line.ProductID)
			entry.Savings = entry.Savings.Add(savings)
		}
		if entry.Savings.Sign() > 0 {
			applied = append(applied, entry)
		}
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
	}

	for _, bundle := range rules.BundleDeals {
		if !bundleSatisfied(bundle, requested) {
			continue
		}
		entry := domain.AppliedPromotion{
			ID:          bundle.ID,
			Name:        bundle.Name,
			Type:        domain.PromotionBundle,
			Description: describeBundle(bundle),
			Savings:     decimal.Zero,
		}
		for i := range lines {
			line := &lines[i]
			if !slices.Contains(bundle.ProductIDs, line.ProductID) {
				continue
			}
			if exclusive && rewardedByBogo[i] {
				continue
			}
			units := min(line.Quantity, bundle.MinimumFor(line.ProductID))
			amount := discountAmount(bundle.Kind, bundle.Value, line.DiscountedPrice)
			savings := takePromotionSavings(line, amount.Mul(decimal.NewFromInt(int64(units))))
			if savings.Sign() <= 0 {
				continue
			}
			entry.ProductIDs = append(entry.ProductIDs, line.ProductID)
			entry.Savings = entry.Savings.Add(savings)
		}
		if entry.Savings.Sign() > 0 {
			applied = append(applied, entry)
		}
	}

	return applied
}

func bogoReward(promo domain.BogoPromotion, price decimal.Decimal) decimal.Decimal {
	switch promo.RewardKind {
	case domain.RewardFree:
		return decimal.Max(price, decimal.Zero)
	case domain.RewardPercentage:
		return discountAmount(domain.KindPercentage, promo.RewardValue, price)
	case domain.RewardFixed:
		return discountAmount(domain.KindFixed, promo.RewardValue, price)
	default:
		return decimal.Zero
	}
}

func bundleSatisfied(bundle domain.BundleDeal, requested map[string]int) bool {
	if len(bundle.ProductIDs) == 0 {
		return false
	}
	for _, id := range bundle.ProductIDs {
		if requested[id] < bundle.MinimumFor(id) {
			return false
		}
	}
	return true
}

// takePromotionSavings books savings against the line, capped at what is left
// of the line total, and returns the amount actually taken.
func takePromotionSavings(line *domain.PricingLine, savings decimal.Decimal) decimal.Decimal {
	if savings.Sign() <= 0 || line.LineTotal.Sign() <= 0 {
		return decimal.Zero
	}
	savings = decimal.Min(savings, line.LineTotal)
	line.PromotionSavings = line.PromotionSavings.Add(savings)
	line.LineTotal = line.LineTotal.Sub(savings)
	return savings
}

func describeBogo(promo domain.BogoPromotion) string {
	switch promo.RewardKind {
	case domain.RewardFree:
		return "Buy one, get one free"
	case domain.RewardPercentage:
		return fmt.Sprintf("Buy one, get one %s%% off", promo.RewardValue.String())
	default:
		return fmt.Sprintf("Buy one, get one $%s off", promo.RewardValue.StringFixed(2))
	}
}

func describeBundle(bundle domain.BundleDeal) string {
	off := fmt.Sprintf("$%s off", bundle.Value.StringFixed(2))
	if bundle.Kind == domain.KindPercentage {
		off = fmt.Sprintf("%s%% off", bundle.Value.String())
	}
	return fmt.Sprintf("Bundle of %d products (min %d each): %s", len(bundle.ProductIDs), bundle.MinQuantity, off)
}
