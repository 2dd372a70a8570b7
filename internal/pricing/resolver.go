package pricing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/domain"
)

// Policy decides which discount wins when several are eligible for one line.
type Policy string

const (
	// PolicyBestDeal picks the greatest savings, then the lower priority
	// number, then the smaller id.
	PolicyBestDeal Policy = "best_deal"
	// PolicyPriority picks the lower priority number, then the greatest
	// savings, then the smaller id.
	PolicyPriority Policy = "priority"
	// PolicyBestForBusiness picks the smallest positive savings, then the
	// lower priority number, then the smaller id.
	PolicyBestForBusiness Policy = "best_for_business"
	// PolicyHighestPercentage picks the largest share of the unit price, then
	// the greatest savings, then the lower priority number, then the smaller id.
	PolicyHighestPercentage Policy = "highest_percentage"
)

func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "", PolicyBestDeal, "best_for_customer":
		return PolicyBestDeal, nil
	case PolicyPriority, PolicyBestForBusiness, PolicyHighestPercentage:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", raw)
	}
}

// resolve returns the index of the winning candidate, or -1 when no
// candidate would save anything. It needs the complete candidate set of a line.
func resolve(candidates []candidate, policy Policy) int {
	winner := -1
	for i, c := range candidates {
		if c.savings.Sign() <= 0 {
			continue
		}
		if winner < 0 || beats(c, candidates[winner], policy) {
			winner = i
		}
	}
	return winner
}

func beats(a candidate, b candidate, policy Policy) bool {
	bySavings := a.savings.Cmp(b.savings)
	switch policy {
	case PolicyPriority:
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if bySavings != 0 {
			return bySavings > 0
		}
	case PolicyBestForBusiness:
		if bySavings != 0 {
			return bySavings < 0
		}
	case PolicyHighestPercentage:
		if byPercent := a.percent.Cmp(b.percent); byPercent != 0 {
			return byPercent > 0
		}
		if bySavings != 0 {
			return bySavings > 0
		}
	default:
		if bySavings != 0 {
			return bySavings > 0
		}
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.id < b.id
}

// SelectionReason explains in one sentence why the line ended up with its
// discount, for audit records.
func SelectionReason(line domain.PricingLine, policy Policy) string {
	if line.AppliedDiscountID == "" {
		if len(line.Evaluated) == 0 {
			return "no eligible discount"
		}
		return "no eligible discount produced savings"
	}
	if len(line.Evaluated) == 1 {
		return "only eligible discount"
	}
	n := len(line.Evaluated)
	switch policy {
	case PolicyPriority:
		return fmt.Sprintf("lowest priority number among %d eligible discounts", n)
	case PolicyBestForBusiness:
		return fmt.Sprintf("smallest savings among %d eligible discounts", n)
	case PolicyHighestPercentage:
		return fmt.Sprintf("highest savings percentage among %d eligible discounts", n)
	default:
		return fmt.Sprintf("greatest savings among %d eligible discounts", n)
	}
}

// ExplainSelection compares the selected discount of a line with every other
// discount evaluated for it, one "- vs <name>: <reason>" row each.
func ExplainSelection(line domain.PricingLine, policy Policy) string {
	selected := slices.IndexFunc(line.Evaluated, func(e domain.DiscountEvaluation) bool { return e.Selected })
	if selected < 0 {
		return SelectionReason(line, policy)
	}
	winner := line.Evaluated[selected]
	if len(line.Evaluated) == 1 {
		return fmt.Sprintf("%s was the only applicable discount.", winner.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s was selected under the %s policy:", winner.Name, policy)
	for i, other := range line.Evaluated {
		if i == selected {
			continue
		}
		fmt.Fprintf(&b, "\n- vs %s: %s", other.Name, compareEvaluations(winner, other, line.Subtotal(), policy))
	}
	return b.String()
}

// compareEvaluations names the first criterion of policy on which winner beat other.
func compareEvaluations(winner, other domain.DiscountEvaluation, subtotal decimal.Decimal, policy Policy) string {
	if other.Savings.Sign() <= 0 {
		return fmt.Sprintf("%s saves nothing", other.Name)
	}
	bySavings := winner.Savings.Cmp(other.Savings)
	switch policy {
	case PolicyPriority:
		if winner.Priority != other.Priority {
			return fmt.Sprintf("%s has the lower priority number (%d vs %d)", winner.Name, winner.Priority, other.Priority)
		}
	case PolicyBestForBusiness:
		if bySavings != 0 {
			return fmt.Sprintf("%s gives away less ($%s vs $%s)", winner.Name, winner.Savings.StringFixed(2), other.Savings.StringFixed(2))
		}
	case PolicyHighestPercentage:
		if subtotal.Sign() > 0 && bySavings != 0 {
			share := func(d decimal.Decimal) string { return d.Div(subtotal).Mul(hundred).StringFixed(2) }
			return fmt.Sprintf("%s saves a higher percentage (%s%% vs %s%%)", winner.Name, share(winner.Savings), share(other.Savings))
		}
	}
	if bySavings != 0 {
		return fmt.Sprintf("%s provides higher savings ($%s vs $%s)", winner.Name, winner.Savings.StringFixed(2), other.Savings.StringFixed(2))
	}
	if winner.Priority != other.Priority {
		return fmt.Sprintf("%s has the lower priority number (%d vs %d)", winner.Name, winner.Priority, other.Priority)
	}
	return fmt.Sprintf("%s wins the tie on rule id", winner.Name)
}
