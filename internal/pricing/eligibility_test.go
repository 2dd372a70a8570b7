package pricing

import (
	"testing"
	"time"

	"gtipricing/backend/internal/domain"
)

func TestFilterEligibleCustomerDiscounts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CustomerDiscount)
		want   bool
	}{
		{name: "active in window", mutate: func(*domain.CustomerDiscount) {}, want: true},
		{name: "inactive", mutate: func(d *domain.CustomerDiscount) { d.Status = domain.StatusInactive }, want: false},
		{name: "tier not targeted", mutate: func(d *domain.CustomerDiscount) { d.Tiers = []domain.Tier{domain.TierB, domain.TierC} }, want: false},
		{name: "other market", mutate: func(d *domain.CustomerDiscount) { d.Markets = []string{"MI"} }, want: false},
		{name: "market differs in case", mutate: func(d *domain.CustomerDiscount) { d.Markets = []string{"il"} }, want: false},
		{name: "starts later", mutate: func(d *domain.CustomerDiscount) { d.StartDate = testNow.Add(time.Hour) }, want: false},
		{name: "starts now", mutate: func(d *domain.CustomerDiscount) { d.StartDate = testNow }, want: true},
		{name: "ended", mutate: func(d *domain.CustomerDiscount) { d.EndDate = ptrTime(testNow.Add(-time.Second)) }, want: false},
		{name: "ends now", mutate: func(d *domain.CustomerDiscount) { d.EndDate = ptrTime(testNow) }, want: true},
		{name: "ends later", mutate: func(d *domain.CustomerDiscount) { d.EndDate = ptrTime(testNow.Add(24 * time.Hour)) }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discount := brandDiscount(t, "cd-1", "10")
			tt.mutate(&discount)

			out := FilterEligible(domain.RuleSet{CustomerDiscounts: []domain.CustomerDiscount{discount}}, tierACustomer(), "IL", testNow)

			if got := len(out.CustomerDiscounts) == 1; got != tt.want {
				t.Fatalf("expected eligible=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterEligiblePromotionWindows(t *testing.T) {
	tests := []struct {
		name   string
		status domain.RuleStatus
		start  time.Time
		end    *time.Time
		want   bool
	}{
		{name: "open ended", status: domain.StatusActive, start: testNow.Add(-time.Hour), want: true},
		{name: "inactive", status: domain.StatusInactive, start: testNow.Add(-time.Hour), want: false},
		{name: "not started", status: domain.StatusActive, start: testNow.Add(time.Minute), want: false},
		{name: "expired", status: domain.StatusActive, start: testNow.Add(-48 * time.Hour), end: ptrTime(testNow.Add(-time.Hour)), want: false},
		{name: "last instant", status: domain.StatusActive, start: testNow.Add(-48 * time.Hour), end: ptrTime(testNow), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := domain.RuleSet{
				BogoPromotions: []domain.BogoPromotion{{
					ID: "bogo-1", Name: "BOGO", Status: tt.status, TriggerLevel: domain.LevelBrand, TriggerTarget: "Acme",
					RewardKind: domain.RewardFree, StartDate: tt.start, EndDate: tt.end,
				}},
				BundleDeals: []domain.BundleDeal{{
					ID: "bundle-1", Name: "Bundle", Status: tt.status, ProductIDs: []string{"p-1", "p-2"}, MinQuantity: 1,
					Kind: domain.KindPercentage, Value: dec(t, "10"), StartDate: tt.start, EndDate: tt.end,
				}},
			}

			out := FilterEligible(rules, tierACustomer(), "IL", testNow)

			if got := len(out.BogoPromotions) == 1; got != tt.want {
				t.Fatalf("bogo: expected eligible=%v, got %v", tt.want, got)
			}
			if got := len(out.BundleDeals) == 1; got != tt.want {
				t.Fatalf("bundle: expected eligible=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterEligibleInventoryIgnoresDates(t *testing.T) {
	active := expirationDiscount(t, "inv-active", "20")
	inactive := expirationDiscount(t, "inv-off", "20")
	inactive.Status = domain.StatusInactive

	out := FilterEligible(domain.RuleSet{InventoryDiscounts: []domain.InventoryDiscount{active, inactive}}, tierACustomer(), "IL", testNow)

	if len(out.InventoryDiscounts) != 1 || out.InventoryDiscounts[0].ID != "inv-active" {
		t.Fatalf("expected only the active inventory discount, got %+v", out.InventoryDiscounts)
	}
}

func TestFilterEligibleKeepsFirstDuplicate(t *testing.T) {
	first := brandDiscount(t, "cd-dup", "10")
	second := brandDiscount(t, "cd-dup", "50")

	out := FilterEligible(domain.RuleSet{CustomerDiscounts: []domain.CustomerDiscount{first, second}}, tierACustomer(), "IL", testNow)

	if len(out.CustomerDiscounts) != 1 || !out.CustomerDiscounts[0].Value.Equal(dec(t, "10")) {
		t.Fatalf("expected the first record to win, got %+v", out.CustomerDiscounts)
	}
}

func TestFilterEligibleDoesNotModifyInput(t *testing.T) {
	inactive := brandDiscount(t, "cd-off", "5")
	inactive.Status = domain.StatusInactive
	rules := domain.RuleSet{
		CustomerDiscounts: []domain.CustomerDiscount{brandDiscount(t, "cd-on", "10"), inactive},
		BundleDeals: []domain.BundleDeal{{
			ID: "bundle-1", Name: "Bundle", Status: domain.StatusActive, ProductIDs: []string{"p-1", "p-2"},
			MinQuantity: 1, MinQuantities: map[string]int{"p-1": 2},
			Kind: domain.KindFixed, Value: dec(t, "5"), StartDate: testNow.Add(-time.Hour),
		}},
	}

	out := FilterEligible(rules, tierACustomer(), "IL", testNow)
	out.CustomerDiscounts[0].Markets[0] = "MI"
	out.CustomerDiscounts[0].Tiers[0] = domain.TierC
	out.BundleDeals[0].ProductIDs[0] = "changed"
	out.BundleDeals[0].MinQuantities["p-1"] = 9

	if len(rules.CustomerDiscounts) != 2 || rules.CustomerDiscounts[1].ID != "cd-off" {
		t.Fatalf("input slice was reshaped: %+v", rules.CustomerDiscounts)
	}
	if rules.CustomerDiscounts[0].Markets[0] != "IL" || rules.CustomerDiscounts[0].Tiers[0] != domain.TierA {
		t.Fatalf("input discount shares memory with the result: %+v", rules.CustomerDiscounts[0])
	}
	if rules.BundleDeals[0].ProductIDs[0] != "p-1" || rules.BundleDeals[0].MinQuantities["p-1"] != 2 {
		t.Fatalf("input bundle shares memory with the result: %+v", rules.BundleDeals[0])
	}
}
