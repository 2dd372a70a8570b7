package pricing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

const (
	customerClassPriority  = 1
	inventoryClassPriority = 2
)

var hundred = decimal.NewFromInt(100)

// candidate is one eligible discount evaluated against one line.
type candidate struct {
	id         string
	name       string
	class      domain.RuleClass
	kind       domain.DiscountKind
	value      decimal.Decimal
	priority   int
	unitAmount decimal.Decimal
	savings    decimal.Decimal
	// percent is unitAmount as a share of the base unit price.
	percent decimal.Decimal
}

func newCandidate(id, name string, class domain.RuleClass, kind domain.DiscountKind, value decimal.Decimal, priority int, line domain.PricingLine) candidate {
	unit := discountAmount(kind, value, line.BasePrice)
	percent := decimal.Zero
	if line.BasePrice.Sign() > 0 {
		percent = unit.Div(line.BasePrice).Mul(hundred)
	}
	return candidate{
		id:         id,
		name:       name,
		class:      class,
		kind:       kind,
		value:      value,
		priority:   effectivePriority(priority, class),
		unitAmount: unit,
		savings:    unit.Mul(decimal.NewFromInt(int64(line.Quantity))),
		percent:    percent,
	}
}

// discountAmount returns the per-unit reduction of price, never more than
// price itself and never negative. A price override reduces price to value.
func discountAmount(kind domain.DiscountKind, value decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 || value.Sign() < 0 {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch kind {
	case domain.KindPercentage:
		amount = price.Mul(value).Div(hundred)
	case domain.KindFixed:
		amount = value
	case domain.KindPriceOverride:
		amount = price.Sub(value)
	default:
		return decimal.Zero
	}
	return decimal.Max(decimal.Zero, decimal.Min(amount, price))
}

// discountTerms returns the kind and value a customer discount grants for qty
// units. With quantity breaks the covering band with the highest minimum wins;
// ok is false when no band covers the line.
func discountTerms(discount domain.CustomerDiscount, tier domain.Tier, qty int) (kind domain.DiscountKind, value decimal.Decimal, ok bool) {
	if len(discount.QuantityBreaks) == 0 {
		return discount.Kind, discount.Value, true
	}
	best := -1
	for i, band := range discount.QuantityBreaks {
		if !band.Covers(tier, qty) {
			continue
		}
		if best < 0 || band.MinQuantity > discount.QuantityBreaks[best].MinQuantity {
			best = i
		}
	}
	if best < 0 {
		return "", decimal.Zero, false
	}
	band := discount.QuantityBreaks[best]
	return band.Kind, band.Value, true
}

func matchesLevel(level domain.DiscountLevel, target string, product domain.Product) bool {
	switch level {
	case domain.LevelItem:
		return product.ID == target
	case domain.LevelBrand:
		return product.Brand != "" && product.Brand == target
	case domain.LevelCategory:
		return product.Category != "" && product.Category == target
	case domain.LevelSubcategory:
		return product.Subcategory != "" && product.Subcategory == target
	default:
		return false
	}
}

func inventoryTriggered(discount domain.InventoryDiscount, product domain.Product, now time.Time) bool {
	switch discount.Trigger {
	case domain.TriggerExpiration:
		if product.ExpirationDate == nil {
			return false
		}
		days := math.Ceil(product.ExpirationDate.Sub(now).Hours() / 24)
		return days <= discount.TriggerThreshold
	case domain.TriggerTHC:
		return product.THCPercentage <= discount.TriggerThreshold
	default:
		return false
	}
}

func inventoryScopeMatches(discount domain.InventoryDiscount, product domain.Product) bool {
	switch discount.Scope {
	case domain.ScopeAll:
		return true
	case domain.ScopeCategory:
		return product.Category == discount.ScopeValue
	case domain.ScopeBrand:
		return product.Brand == discount.ScopeValue
	default:
		return false
	}
}

// effectivePriority treats 0 as unset and substitutes the class default.
func effectivePriority(priority int, class domain.RuleClass) int {
	if priority > 0 {
		return priority
	}
	if class == domain.ClassInventory {
		return inventoryClassPriority
	}
	return customerClassPriority
}

// collectCandidates evaluates every eligible customer and inventory discount
// against the line's base unit price.
func collectCandidates(line domain.PricingLine, tier domain.Tier, rules domain.RuleSet, now time.Time) []candidate {
	candidates := make([]candidate, 0, 4)

	for _, discount := range rules.CustomerDiscounts {
		if !matchesLevel(discount.Level, discount.Target, line.Product) {
			continue
		}
		kind, value, ok := discountTerms(discount, tier, line.Quantity)
		if !ok {
			continue
		}
		candidates = append(candidates, newCandidate(discount.ID, discount.Name, domain.ClassCustomer, kind, value, discount.Priority, line))
	}

	for _, discount := range rules.InventoryDiscounts {
		if !inventoryTriggered(discount, line.Product, now) || !inventoryScopeMatches(discount, line.Product) {
			continue
		}
		candidates = append(candidates, newCandidate(discount.ID, discount.Name, domain.ClassInventory, discount.Kind, discount.Value, discount.Priority, line))
	}

	return candidates
}

// applyDiscounts reduces each line by at most one discount and returns the
// applied discounts in first-seen order.
func applyDiscounts(lines []domain.PricingLine, tier domain.Tier, rules domain.RuleSet, now time.Time, policy Policy) []domain.AppliedDiscount {
	applied := make([]domain.AppliedDiscount, 0, len(lines))
	position := make(map[string]int)

	for i := range lines {
		line := &lines[i]
		candidates := collectCandidates(*line, tier, rules, now)
		winner := resolve(candidates, policy)

		line.Evaluated = make([]domain.DiscountEvaluation, 0, len(candidates))
		for j, c := range candidates {
			line.Evaluated = append(line.Evaluated, domain.DiscountEvaluation{
				DiscountID: c.id,
				Name:       c.name,
				Class:      c.class,
				Priority:   c.priority,
				Savings:    c.savings,
				Selected:   j == winner,
			})
		}
		if winner < 0 {
			continue
		}

		chosen := candidates[winner]
		line.DiscountedPrice = line.BasePrice.Sub(chosen.unitAmount)
		line.DiscountAmount = chosen.savings
		line.LineTotal = line.Subtotal().Sub(chosen.savings)
		line.AppliedDiscountID = chosen.id

		if pos, ok := position[chosen.id]; ok {
			applied[pos].ProductIDs = append(applied[pos].ProductIDs, line.ProductID)
			applied[pos].Savings = applied[pos].Savings.Add(chosen.savings)
			continue
		}
		position[chosen.id] = len(applied)
		applied = append(applied, domain.AppliedDiscount{
			ID:         chosen.id,
			Name:       chosen.name,
			Class:      chosen.class,
			Kind:       chosen.kind,
			Value:      chosen.value,
			ProductIDs: []string{line.ProductID},
			Savings:    chosen.savings,
		})
	}

	return applied
}
