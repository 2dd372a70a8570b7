package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gtipricing/backend/internal/audit"
	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/pricing"
	"gtipricing/backend/internal/store"
	"gtipricing/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func days(n int) time.Time {
	return fixedNow.Add(time.Duration(n) * 24 * time.Hour)
}

func ptr[T any](v T) *T {
	return &v
}

func newFixtureStore() *memory.Store {
	s := memory.New()
	s.PutCustomer(domain.Customer{ID: "cust-1", BusinessName: "Green Leaf Dispensary", Tier: domain.TierA, Market: "IL"})
	s.PutProduct(domain.Product{
		ID: "prod-kush", Name: "OG Kush 3.5g", Brand: "Cresco", Category: "flower",
		BasePrice: decimal.RequireFromString("240"), ExpirationDate: ptr(days(12)), THCPercentage: 24,
	})
	s.PutProduct(domain.Product{
		ID: "prod-gummy", Name: "Gummies 10pk", Brand: "Wana", Category: "edible",
		BasePrice: decimal.RequireFromString("20"), ExpirationDate: ptr(days(200)), THCPercentage: 1,
	})
	s.SetRules(domain.RuleSet{
		CustomerDiscounts: []domain.CustomerDiscount{{
			ID: "cd-cresco", Name: "Cresco tier A", Status: domain.StatusActive, Level: domain.LevelBrand,
			Target: "Cresco", Kind: domain.KindPercentage, Value: decimal.RequireFromString("8"),
			Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-30), Priority: 1,
		}},
		InventoryDiscounts: []domain.InventoryDiscount{{
			ID: "inv-short", Name: "Short dated", Status: domain.StatusActive, Trigger: domain.TriggerExpiration,
			TriggerThreshold: 30, Kind: domain.KindPercentage, Value: decimal.RequireFromString("20"),
			Scope: domain.ScopeAll, Priority: 2,
		}},
		BogoPromotions: []domain.BogoPromotion{{
			ID: "bogo-wana", Name: "Wana BOGO", Status: domain.StatusActive, TriggerLevel: domain.LevelBrand,
			TriggerTarget: "Wana", RewardKind: domain.RewardFree, StartDate: days(-1),
		}},
	})
	return s
}

func newTestService(catalog *memory.Store, rules store.RuleRepository, logs io.Writer) *Service {
	if logs == nil {
		logs = io.Discard
	}
	return New(Deps{
		Catalog: catalog,
		Rules:   rules,
		Audit:   audit.NewStoreSink(catalog),
		Options: pricing.Options{Policy: pricing.PolicyBestDeal},
		Logger:  slog.New(slog.NewTextHandler(logs, nil)),
		Now:     func() time.Time { return fixedNow },
	})
}

// failingBogo serves every rule class from the store except BOGO promotions.
type failingBogo struct {
	*memory.Store
}

func (f failingBogo) ListBogoPromotions(context.Context) ([]domain.BogoPromotion, error) {
	return nil, errors.New("connection reset by peer")
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, domain.PricingAudit) error {
	return errors.New("audit store offline")
}

// capturingSink keeps every audit entry it is handed.
type capturingSink struct {
	entries []domain.PricingAudit
}

func (c *capturingSink) Record(_ context.Context, entry domain.PricingAudit) error {
	c.entries = append(c.entries, entry)
	return nil
}

func basket() domain.PriceBasketRequest {
	return domain.PriceBasketRequest{
		CustomerID: "cust-1",
		Market:     "IL",
		Items: []domain.PricingItem{
			{ProductID: "prod-kush", Quantity: 1},
			{ProductID: "prod-gummy", Quantity: 2},
		},
	}
}

func lineFor(t *testing.T, result domain.PricingResult, productID string) domain.PricingLine {
	t.Helper()
	for _, line := range result.Lines {
		if line.ProductID == productID {
			return line
		}
	}
	t.Fatalf("no line for %s", productID)
	return domain.PricingLine{}
}

func assertAmount(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}

func TestPriceBasketAppliesBestDealAndPromotions(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	result, err := svc.PriceBasket(context.Background(), basket())
	if err != nil {
		t.Fatalf("price basket: %v", err)
	}

	kush := lineFor(t, result, "prod-kush")
	if kush.AppliedDiscountID != "inv-short" {
		t.Fatalf("expected inventory discount to win, got %q", kush.AppliedDiscountID)
	}
	assertAmount(t, "kush line total", kush.LineTotal, "192")
	assertAmount(t, "gummy line total", lineFor(t, result, "prod-gummy").LineTotal, "20")
	assertAmount(t, "subtotal", result.Subtotal, "280")
	assertAmount(t, "final", result.FinalTotal, "212")
	assertAmount(t, "discount", result.TotalDiscount, "68")
	if len(result.AppliedPromotions) != 1 || result.AppliedPromotions[0].ID != "bogo-wana" {
		t.Fatalf("expected bogo-wana to apply, got %+v", result.AppliedPromotions)
	}
	if len(result.SourceFailures) != 0 {
		t.Fatalf("expected no source failures, got %v", result.SourceFailures)
	}
	if !result.PricedAt.Equal(fixedNow) {
		t.Fatalf("expected pricedAt %v, got %v", fixedNow, result.PricedAt)
	}
}

func TestPriceBasketToleratesRuleSourceFailure(t *testing.T) {
	s := newFixtureStore()
	var logs bytes.Buffer
	svc := newTestService(s, failingBogo{s}, &logs)

	result, err := svc.PriceBasket(context.Background(), basket())
	if err != nil {
		t.Fatalf("price basket: %v", err)
	}

	assertAmount(t, "kush line total", lineFor(t, result, "prod-kush").LineTotal, "192")
	assertAmount(t, "gummy line total", lineFor(t, result, "prod-gummy").LineTotal, "40")
	if len(result.AppliedPromotions) != 0 {
		t.Fatalf("expected no promotions without the bogo source, got %+v", result.AppliedPromotions)
	}
	if !slices.Equal(result.SourceFailures, []string{SourceBogoPromotions}) {
		t.Fatalf("expected bogo source failure, got %v", result.SourceFailures)
	}
	if !bytes.Contains(logs.Bytes(), []byte("level=WARN")) || !bytes.Contains(logs.Bytes(), []byte(SourceBogoPromotions)) {
		t.Fatalf("expected a warning naming the failed source, got %q", logs.String())
	}
}

func TestPriceBasketUnknownCustomer(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	req := basket()
	req.CustomerID = "cust-ghost"
	_, err := svc.PriceBasket(context.Background(), req)
	if KindOf(err) != domain.ErrorNotFound {
		t.Fatalf("expected not_found, got %v (%v)", KindOf(err), err)
	}
}

func TestPriceBasketRejectsInvalidRequests(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	tests := []struct {
		name    string
		mutate  func(*domain.PriceBasketRequest)
		message string
	}{
		{"missing market", func(r *domain.PriceBasketRequest) { r.Market = " " }, "Customer ID and Market are required"},
		{"missing customer", func(r *domain.PriceBasketRequest) { r.CustomerID = "" }, "Customer ID and Market are required"},
		{"no items", func(r *domain.PriceBasketRequest) { r.Items = nil }, "At least one item is required"},
		{"zero quantity", func(r *domain.PriceBasketRequest) { r.Items[0].Quantity = 0 }, "Quantity for prod-kush must be a positive integer"},
		{"blank product", func(r *domain.PriceBasketRequest) { r.Items[1].ProductID = "" }, "Every item needs a productId"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := basket()
			tc.mutate(&req)
			_, err := svc.PriceBasket(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if err.Error() != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, err.Error())
			}
		})
	}
}

func TestPriceBasketReportsMissingProductPerLine(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	req := basket()
	req.Items = append(req.Items, domain.PricingItem{ProductID: "prod-ghost", Quantity: 1})
	result, err := svc.PriceBasket(context.Background(), req)
	if err != nil {
		t.Fatalf("price basket: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].ProductID != "prod-ghost" || result.Errors[0].Kind != domain.ErrorNotFound {
		t.Fatalf("expected a not_found line error for prod-ghost, got %+v", result.Errors)
	}
	assertAmount(t, "final", result.FinalTotal, "212")
}

func TestPriceBasketDropsInvalidRuleRecords(t *testing.T) {
	s := newFixtureStore()
	s.SetRules(domain.RuleSet{
		CustomerDiscounts: []domain.CustomerDiscount{
			{
				ID: "cd-broken", Name: "Negative", Status: domain.StatusActive, Level: domain.LevelBrand,
				Target: "Cresco", Kind: domain.KindPercentage, Value: decimal.RequireFromString("-50"),
				Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-1),
			},
			{
				ID: "cd-inverted", Name: "Inverted window", Status: domain.StatusActive, Level: domain.LevelBrand,
				Target: "Cresco", Kind: domain.KindPercentage, Value: decimal.RequireFromString("50"),
				Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-1), EndDate: ptr(days(-5)),
			},
			{
				ID: "cd-empty-band", Name: "Empty band", Status: domain.StatusActive, Level: domain.LevelBrand,
				Target: "Cresco", Kind: domain.KindPercentage, Value: decimal.RequireFromString("50"),
				Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-1),
				QuantityBreaks: []domain.QuantityBreak{{
					MinQuantity: 10, MaxQuantity: ptr(5), Kind: domain.KindPercentage, Value: decimal.RequireFromString("50"),
				}},
			},
			{
				ID: "cd-good", Name: "Cresco", Status: domain.StatusActive, Level: domain.LevelBrand,
				Target: "Cresco", Kind: domain.KindPercentage, Value: decimal.RequireFromString("10"),
				Tiers: []domain.Tier{domain.TierA}, Markets: []string{"IL"}, StartDate: days(-1),
			},
		},
	})
	var logs bytes.Buffer
	svc := newTestService(s, s, &logs)

	result, err := svc.PriceBasket(context.Background(), domain.PriceBasketRequest{
		CustomerID: "cust-1",
		Market:     "IL",
		Items:      []domain.PricingItem{{ProductID: "prod-kush", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("price basket: %v", err)
	}
	line := lineFor(t, result, "prod-kush")
	if line.AppliedDiscountID != "cd-good" || len(line.Evaluated) != 1 {
		t.Fatalf("expected only cd-good to be evaluated, got %+v", line.Evaluated)
	}
	assertAmount(t, "line total", line.LineTotal, "216")
	for _, id := range []string{"cd-broken", "cd-inverted", "cd-empty-band"} {
		if !bytes.Contains(logs.Bytes(), []byte(id)) {
			t.Fatalf("expected dropped record %s to be logged, got %q", id, logs.String())
		}
	}
}

func TestPriceBasketRecordsAudit(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	ctx := WithActor(context.Background(), domain.Actor{Username: "rep-7", Role: "sales"})
	if _, err := svc.PriceBasket(ctx, basket()); err != nil {
		t.Fatalf("price basket: %v", err)
	}

	audits := s.Audits()
	if len(audits) != 1 {
		t.Fatalf("expected one audit, got %d", len(audits))
	}
	entry := audits[0]
	if entry.ActorUsername != "rep-7" || entry.CustomerID != "cust-1" || len(entry.Lines) != 2 {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	assertAmount(t, "audit final", entry.FinalTotal, "212")
	if entry.Lines[0].SelectedID != "inv-short" || entry.Lines[0].SelectionReason == "" {
		t.Fatalf("expected selection to be explained, got %+v", entry.Lines[0])
	}
}

func TestPriceBasketSharesAuditIDAcrossSinks(t *testing.T) {
	s := newFixtureStore()
	published := &capturingSink{}
	svc := New(Deps{
		Catalog: s,
		Rules:   s,
		Audit:   audit.Multi{audit.NewStoreSink(s), published},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return fixedNow },
	})

	if _, err := svc.PriceBasket(context.Background(), basket()); err != nil {
		t.Fatalf("price basket: %v", err)
	}

	stored := s.Audits()
	if len(stored) != 1 || len(published.entries) != 1 {
		t.Fatalf("expected one entry per sink, got %d stored and %d published", len(stored), len(published.entries))
	}
	if stored[0].ID == "" || stored[0].ID != published.entries[0].ID {
		t.Fatalf("expected both sinks to see the same audit id, got %q and %q", stored[0].ID, published.entries[0].ID)
	}
}

func TestPriceBasketSurvivesAuditFailure(t *testing.T) {
	s := newFixtureStore()
	var logs bytes.Buffer
	svc := New(Deps{
		Catalog: s,
		Rules:   s,
		Audit:   failingAudit{},
		Logger:  slog.New(slog.NewTextHandler(&logs, nil)),
		Now:     func() time.Time { return fixedNow },
	})

	result, err := svc.PriceBasket(context.Background(), basket())
	if err != nil {
		t.Fatalf("expected pricing to succeed, got %v", err)
	}
	assertAmount(t, "final", result.FinalTotal, "212")
	if !bytes.Contains(logs.Bytes(), []byte("pricing audit not recorded")) {
		t.Fatalf("expected audit failure to be logged, got %q", logs.String())
	}
}

func TestValidateDiscountsPricesEachProduct(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	resp, err := svc.ValidateDiscounts(context.Background(), domain.ValidateDiscountRequest{
		CustomerID: "cust-1",
		Market:     "IL",
		Products: []domain.ValidateProduct{
			{ID: "prod-kush"},
			{ID: "prod-gummy", Quantity: 2},
			{ID: "prod-ghost", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("validate discounts: %v", err)
	}
	if resp.Customer.ID != "cust-1" || len(resp.Calculations) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}

	kush := resp.Calculations[0]
	if !kush.Found || kush.Quantity != 1 || kush.BestDiscount == nil || kush.BestDiscount.ID != "inv-short" {
		t.Fatalf("unexpected kush calculation %+v", kush)
	}
	assertAmount(t, "kush final", kush.FinalPrice, "192")
	assertAmount(t, "kush savings %", kush.SavingsPercentage, "20")
	if len(kush.ApplicableDiscounts) != 2 {
		t.Fatalf("expected both discounts to be listed, got %+v", kush.ApplicableDiscounts)
	}
	if !strings.Contains(kush.Explanation, "- vs Cresco tier A: Short dated provides higher savings ($48.00 vs $19.20)") {
		t.Fatalf("expected the selection to be explained, got %q", kush.Explanation)
	}

	gummy := resp.Calculations[1]
	if gummy.BestDiscount != nil || len(gummy.Promotions) != 1 {
		t.Fatalf("expected only the bogo promotion on gummies, got %+v", gummy)
	}
	assertAmount(t, "gummy final", gummy.FinalPrice, "20")

	if resp.Calculations[2].Found {
		t.Fatalf("expected prod-ghost to be reported as not found")
	}

	assertAmount(t, "total original", resp.Summary.TotalOriginalPrice, "280")
	assertAmount(t, "total final", resp.Summary.TotalFinalPrice, "212")
	assertAmount(t, "total discount", resp.Summary.TotalDiscount, "68")
	if resp.Summary.ProductsWithDiscounts != 2 || resp.Summary.ProductsNotFound != 1 {
		t.Fatalf("unexpected summary counts %+v", resp.Summary)
	}
}

func TestValidateDiscountsRequestErrors(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, s, nil)

	tests := []struct {
		name    string
		req     domain.ValidateDiscountRequest
		message string
	}{
		{"missing market", domain.ValidateDiscountRequest{CustomerID: "cust-1", ProductID: "prod-kush"}, "Customer ID and Market are required"},
		{"no selector", domain.ValidateDiscountRequest{CustomerID: "cust-1", Market: "IL"}, "Either productId or products array is required"},
		{"negative quantity", domain.ValidateDiscountRequest{CustomerID: "cust-1", Market: "IL", ProductID: "prod-kush", Quantity: -2}, "Quantity for prod-kush must be a positive integer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateDiscounts(context.Background(), tc.req)
			if KindOf(err) != domain.ErrorValidation || err.Error() != tc.message {
				t.Fatalf("expected validation error %q, got %v", tc.message, err)
			}
		})
	}

	_, err := svc.ValidateDiscounts(context.Background(), domain.ValidateDiscountRequest{CustomerID: "cust-ghost", Market: "IL", ProductID: "prod-kush"})
	if KindOf(err) != domain.ErrorNotFound {
		t.Fatalf("expected not_found for unknown customer, got %v", err)
	}
}

func TestDiscountSummaryCountsEligibleRules(t *testing.T) {
	s := newFixtureStore()
	svc := newTestService(s, failingBogo{s}, nil)

	resp, err := svc.DiscountSummary(context.Background(), "cust-1", "IL")
	if err != nil {
		t.Fatalf("discount summary: %v", err)
	}
	want := domain.DiscountSummary{CustomerDiscounts: 1, InventoryDiscounts: 1}
	if resp.DiscountSummary != want {
		t.Fatalf("expected %+v, got %+v", want, resp.DiscountSummary)
	}
	if !slices.Equal(resp.SourceFailures, []string{SourceBogoPromotions}) {
		t.Fatalf("expected bogo failure to be reported, got %v", resp.SourceFailures)
	}

	other, err := svc.DiscountSummary(context.Background(), "cust-1", "MI")
	if err != nil {
		t.Fatalf("discount summary: %v", err)
	}
	if other.DiscountSummary.CustomerDiscounts != 0 {
		t.Fatalf("expected IL-only discount to be filtered out in MI, got %+v", other.DiscountSummary)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want domain.ErrorKind
	}{
		{nil, ""},
		{invalid("bad"), domain.ErrorValidation},
		{ErrPartialSourceFailure, domain.ErrorPartialSourceFailure},
		{errors.New("boom"), domain.ErrorInternal},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
