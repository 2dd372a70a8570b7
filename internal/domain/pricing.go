package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	ErrorNotFound             ErrorKind = "not_found"
	ErrorValidation           ErrorKind = "validation"
	ErrorPartialSourceFailure ErrorKind = "partial_source_failure"
	ErrorInternal             ErrorKind = "internal"
)

type RuleClass string

const (
	ClassCustomer  RuleClass = "customer"
	ClassInventory RuleClass = "inventory"
)

type PromotionType string

const (
	PromotionBogo   PromotionType = "bogo"
	PromotionBundle PromotionType = "bundle"
)

type PricingItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type DiscountEvaluation struct {
	DiscountID string          `json:"discountId"`
	Name       string          `json:"name"`
	Class      RuleClass       `json:"class"`
	Priority   int             `json:"priority"`
	Savings    decimal.Decimal `json:"savings"`
	Selected   bool            `json:"selected"`
}

func (e DiscountEvaluation) MarshalJSON() ([]byte, error) {
	type plain DiscountEvaluation
	return json.Marshal(struct {
		plain
		Savings float64 `json:"savings"`
	}{plain(e), displayAmount(e.Savings)})
}

type PricingLine struct {
	ProductID         string               `json:"productId"`
	Product           Product              `json:"product"`
	Quantity          int                  `json:"quantity"`
	BasePrice         decimal.Decimal      `json:"basePrice"`
	DiscountedPrice   decimal.Decimal      `json:"discountedPrice"`
	DiscountAmount    decimal.Decimal      `json:"discountAmount"`
	PromotionSavings  decimal.Decimal      `json:"promotionSavings"`
	LineTotal         decimal.Decimal      `json:"lineTotal"`
	AppliedDiscountID string               `json:"appliedDiscountId,omitempty"`
	Evaluated         []DiscountEvaluation `json:"evaluatedDiscounts"`
}

// Subtotal is the undiscounted value of the line.
func (l PricingLine) Subtotal() decimal.Decimal {
	return l.BasePrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l PricingLine) MarshalJSON() ([]byte, error) {
	type plain PricingLine
	return json.Marshal(struct {
		plain
		BasePrice        float64 `json:"basePrice"`
		DiscountedPrice  float64 `json:"discountedPrice"`
		DiscountAmount   float64 `json:"discountAmount"`
		PromotionSavings float64 `json:"promotionSavings"`
		LineTotal        float64 `json:"lineTotal"`
	}{
		plain(l),
		displayAmount(l.BasePrice),
		displayAmount(l.DiscountedPrice),
		displayAmount(l.DiscountAmount),
		displayAmount(l.PromotionSavings),
		displayAmount(l.LineTotal),
	})
}

type AppliedDiscount struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Class      RuleClass       `json:"class"`
	Kind       DiscountKind    `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	ProductIDs []string        `json:"productIds"`
	Savings    decimal.Decimal `json:"savings"`
}

func (d AppliedDiscount) MarshalJSON() ([]byte, error) {
	type plain AppliedDiscount
	return json.Marshal(struct {
		plain
		Value   float64 `json:"value"`
		Savings float64 `json:"savings"`
	}{plain(d), displayAmount(d.Value), displayAmount(d.Savings)})
}

type AppliedPromotion struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        PromotionType   `json:"type"`
	Description string          `json:"description"`
	ProductIDs  []string        `json:"productIds"`
	Savings     decimal.Decimal `json:"savings"`
}

func (p AppliedPromotion) MarshalJSON() ([]byte, error) {
	type plain AppliedPromotion
	return json.Marshal(struct {
		plain
		Savings float64 `json:"savings"`
	}{plain(p), displayAmount(p.Savings)})
}

type LineError struct {
	ProductID string    `json:"productId"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

type PricingResult struct {
	CustomerID        string             `json:"customerId"`
	Market            string             `json:"market"`
	Lines             []PricingLine      `json:"lines"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	TotalDiscount     decimal.Decimal    `json:"totalDiscount"`
	FinalTotal        decimal.Decimal    `json:"finalTotal"`
	AppliedDiscounts  []AppliedDiscount  `json:"appliedDiscounts"`
	AppliedPromotions []AppliedPromotion `json:"appliedPromotions"`
	Errors            []LineError        `json:"errors,omitempty"`
	SourceFailures    []string           `json:"sourceFailures,omitempty"`
	PricedAt          time.Time          `json:"pricedAt"`
}

// MarshalJSON rounds money to cents. The displayed discount is derived from
// the rounded totals so subtotal - totalDiscount == finalTotal holds on the wire.
func (r PricingResult) MarshalJSON() ([]byte, error) {
	type plain PricingResult
	subtotal := r.Subtotal.Round(2)
	final := r.FinalTotal.Round(2)
	return json.Marshal(struct {
		plain
		Subtotal      float64 `json:"subtotal"`
		TotalDiscount float64 `json:"totalDiscount"`
		FinalTotal    float64 `json:"finalTotal"`
	}{plain(r), subtotal.InexactFloat64(), subtotal.Sub(final).InexactFloat64(), final.InexactFloat64()})
}

func displayAmount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

type PriceBasketRequest struct {
	CustomerID string        `json:"customerId"`
	Market     string        `json:"market"`
	Items      []PricingItem `json:"items"`
	AsOf       *time.Time    `json:"asOf,omitempty"`
}

type ValidateProduct struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type ValidateDiscountRequest struct {
	CustomerID string            `json:"customerId"`
	ProductID  string            `json:"productId,omitempty"`
	Products   []ValidateProduct `json:"products,omitempty"`
	Market     string            `json:"market"`
	Quantity   int               `json:"quantity,omitempty"`
}

type DiscountCalculation struct {
	ProductID           string               `json:"productId"`
	ProductName         string               `json:"productName,omitempty"`
	Quantity            int                  `json:"quantity"`
	Found               bool                 `json:"found"`
	OriginalPrice       decimal.Decimal      `json:"originalPrice"`
	DiscountAmount      decimal.Decimal      `json:"discountAmount"`
	FinalPrice          decimal.Decimal      `json:"finalPrice"`
	SavingsPercentage   decimal.Decimal      `json:"savingsPercentage"`
	BestDiscount        *AppliedDiscount     `json:"bestDiscount,omitempty"`
	Promotions          []AppliedPromotion   `json:"promotions,omitempty"`
	ApplicableDiscounts []DiscountEvaluation `json:"applicableDiscounts"`
	Explanation         string               `json:"explanation,omitempty"`
}

func (c DiscountCalculation) MarshalJSON() ([]byte, error) {
	type plain DiscountCalculation
	original := c.OriginalPrice.Round(2)
	final := c.FinalPrice.Round(2)
	return json.Marshal(struct {
		plain
		OriginalPrice     float64 `json:"originalPrice"`
		DiscountAmount    float64 `json:"discountAmount"`
		FinalPrice        float64 `json:"finalPrice"`
		SavingsPercentage float64 `json:"savingsPercentage"`
	}{plain(c), original.InexactFloat64(), original.Sub(final).InexactFloat64(), final.InexactFloat64(), displayAmount(c.SavingsPercentage)})
}

type ValidationSummary struct {
	TotalOriginalPrice    decimal.Decimal `json:"totalOriginalPrice"`
	TotalDiscount         decimal.Decimal `json:"totalDiscount"`
	TotalFinalPrice       decimal.Decimal `json:"totalFinalPrice"`
	ProductsWithDiscounts int             `json:"productsWithDiscounts"`
	ProductsNotFound      int             `json:"productsNotFound"`
}

func (s ValidationSummary) MarshalJSON() ([]byte, error) {
	type plain ValidationSummary
	original := s.TotalOriginalPrice.Round(2)
	final := s.TotalFinalPrice.Round(2)
	return json.Marshal(struct {
		plain
		TotalOriginalPrice float64 `json:"totalOriginalPrice"`
		TotalDiscount      float64 `json:"totalDiscount"`
		TotalFinalPrice    float64 `json:"totalFinalPrice"`
	}{plain(s), original.InexactFloat64(), original.Sub(final).InexactFloat64(), final.InexactFloat64()})
}

type ValidateDiscountResponse struct {
	Customer       Customer              `json:"customer"`
	Market         string                `json:"market"`
	Calculations   []DiscountCalculation `json:"calculations"`
	Summary        ValidationSummary     `json:"summary"`
	SourceFailures []string              `json:"sourceFailures,omitempty"`
}

type DiscountSummary struct {
	CustomerDiscounts  int `json:"customerDiscounts"`
	InventoryDiscounts int `json:"inventoryDiscounts"`
	BogoPromotions     int `json:"bogoPromotions"`
	BundleDeals        int `json:"bundleDeals"`
}

type DiscountSummaryResponse struct {
	Customer        Customer        `json:"customer"`
	Market          string          `json:"market"`
	DiscountSummary DiscountSummary `json:"discountSummary"`
	SourceFailures  []string        `json:"sourceFailures,omitempty"`
}
