package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

// MergeItems sums quantities of repeated product ids, keeping the order in
// which each id first appears.
func MergeItems(items []domain.PricingItem) []domain.PricingItem {
	merged := make([]domain.PricingItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func buildLines(items []domain.PricingItem, products map[string]domain.Product) ([]domain.PricingLine, []domain.LineError) {
	lines := make([]domain.PricingLine, 0, len(items))
	var lineErrors []domain.LineError

	for _, item := range MergeItems(items) {
		if item.Quantity < 1 {
			lineErrors = append(lineErrors, domain.LineError{
				ProductID: item.ProductID,
				Kind:      domain.ErrorValidation,
				Message:   fmt.Sprintf("quantity for product %s must be positive", item.ProductID),
			})
			continue
		}
		product, ok := products[item.ProductID]
		if !ok {
			lineErrors = append(lineErrors, domain.LineError{
				ProductID: item.ProductID,
				Kind:      domain.ErrorNotFound,
				Message:   fmt.Sprintf("product %s not found", item.ProductID),
			})
			continue
		}

		base := product.BasePrice
		if base.IsNegative() {
			base = decimal.Zero
		}
		lines = append(lines, domain.PricingLine{
			ProductID:        item.ProductID,
			Product:          product,
			Quantity:         item.Quantity,
			BasePrice:        base,
			DiscountedPrice:  base,
			DiscountAmount:   decimal.Zero,
			PromotionSavings: decimal.Zero,
			LineTotal:        base.Mul(decimal.NewFromInt(int64(item.Quantity))),
			Evaluated:        []domain.DiscountEvaluation{},
		})
	}

	return lines, lineErrors
}
