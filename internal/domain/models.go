package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

type RuleStatus string

const (
	StatusActive   RuleStatus = "active"
	StatusInactive RuleStatus = "inactive"
)

type DiscountLevel string

const (
	LevelItem        DiscountLevel = "item"
	LevelBrand       DiscountLevel = "brand"
	LevelCategory    DiscountLevel = "category"
	LevelSubcategory DiscountLevel = "subcategory"
)

type DiscountKind string

const (
	KindPercentage DiscountKind = "percentage"
	KindFixed      DiscountKind = "fixed"
	// KindPriceOverride sets the unit price to Value instead of reducing it.
	KindPriceOverride DiscountKind = "price_override"
)

type InventoryTrigger string

const (
	TriggerExpiration InventoryTrigger = "expiration"
	TriggerTHC        InventoryTrigger = "thc"
)

type InventoryScope string

const (
	ScopeAll      InventoryScope = "all"
	ScopeCategory InventoryScope = "category"
	ScopeBrand    InventoryScope = "brand"
)

type RewardKind string

const (
	RewardFree       RewardKind = "free"
	RewardPercentage RewardKind = "percentage"
	RewardFixed      RewardKind = "fixed"
)

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	Subcategory    string          `json:"subcategory,omitempty"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	ExpirationDate *time.Time      `json:"expirationDate,omitempty"`
	THCPercentage  float64         `json:"thcPercentage"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		BasePrice float64 `json:"basePrice"`
	}{plain(p), displayAmount(p.BasePrice)})
}

type Customer struct {
	ID           string `json:"id"`
	BusinessName string `json:"businessName"`
	Tier         Tier   `json:"tier"`
	Market       string `json:"market,omitempty"`
}

type CustomerDiscount struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Status    RuleStatus      `json:"status" validate:"oneof=active inactive"`
	Level     DiscountLevel   `json:"level" validate:"oneof=item brand category subcategory"`
	Target    string          `json:"target" validate:"required"`
	Kind      DiscountKind    `json:"kind" validate:"oneof=percentage fixed price_override"`
	Value     decimal.Decimal `json:"value" validate:"gte=0"`
	Tiers     []Tier          `json:"tiers" validate:"min=1,dive,oneof=A B C"`
	Markets   []string        `json:"markets" validate:"min=1,dive,required"`
	StartDate time.Time       `json:"startDate" validate:"required"`
	EndDate   *time.Time      `json:"endDate,omitempty"`

	// QuantityBreaks, when present, replace Kind and Value with the band that
	// matches the line quantity. A line outside every band gets no discount.
	QuantityBreaks []QuantityBreak `json:"quantityBreaks,omitempty" validate:"omitempty,dive"`

	// Priority breaks savings ties; lower wins. 0 means unset and falls back
	// to the class default (customer 1, inventory 2).
	Priority int `json:"priority" validate:"gte=0"`
}

// QuantityBreak is one quantity band of a customer discount. An empty Tier
// applies to every tier the discount targets; a nil MaxQuantity is open-ended.
type QuantityBreak struct {
	Tier        Tier            `json:"tier,omitempty" validate:"omitempty,oneof=A B C"`
	MinQuantity int             `json:"minQuantity" validate:"gte=1"`
	MaxQuantity *int            `json:"maxQuantity,omitempty" validate:"omitempty,gte=1"`
	Kind        DiscountKind    `json:"kind" validate:"oneof=percentage fixed price_override"`
	Value       decimal.Decimal `json:"value" validate:"gte=0"`
}

// Covers reports whether the band applies to qty units bought by a tier customer.
func (q QuantityBreak) Covers(tier Tier, qty int) bool {
	if q.Tier != "" && q.Tier != tier {
		return false
	}
	if qty < q.MinQuantity {
		return false
	}
	return q.MaxQuantity == nil || qty <= *q.MaxQuantity
}

type InventoryDiscount struct {
	ID               string           `json:"id" validate:"required"`
	Name             string           `json:"name" validate:"required"`
	Status           RuleStatus       `json:"status" validate:"oneof=active inactive"`
	Trigger          InventoryTrigger `json:"trigger" validate:"oneof=expiration thc"`
	TriggerThreshold float64          `json:"triggerThreshold" validate:"gte=0"`
	Kind             DiscountKind     `json:"kind" validate:"oneof=percentage fixed price_override"`
	Value            decimal.Decimal  `json:"value" validate:"gte=0"`
	Scope            InventoryScope   `json:"scope" validate:"oneof=all category brand"`
	ScopeValue       string           `json:"scopeValue,omitempty" validate:"required_unless=Scope all"`

	// Priority follows the CustomerDiscount convention: 0 means unset.
	Priority int `json:"priority" validate:"gte=0"`
}

type BogoPromotion struct {
	ID            string          `json:"id" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Status        RuleStatus      `json:"status" validate:"oneof=active inactive"`
	TriggerLevel  DiscountLevel   `json:"triggerLevel" validate:"oneof=item brand category"`
	TriggerTarget string          `json:"triggerTarget" validate:"required"`
	RewardKind    RewardKind      `json:"rewardKind" validate:"oneof=free percentage fixed"`
	RewardValue   decimal.Decimal `json:"rewardValue" validate:"gte=0"`
	StartDate     time.Time       `json:"startDate" validate:"required"`
	EndDate       *time.Time      `json:"endDate,omitempty"`
}

type BundleDeal struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Status      RuleStatus      `json:"status" validate:"oneof=active inactive"`
	ProductIDs  []string        `json:"productIds" validate:"min=1,dive,required"`
	MinQuantity int             `json:"minQuantity" validate:"gte=1"`
	Kind        DiscountKind    `json:"kind" validate:"oneof=percentage fixed"`
	Value       decimal.Decimal `json:"value" validate:"gte=0"`
	StartDate   time.Time       `json:"startDate" validate:"required"`
	EndDate     *time.Time      `json:"endDate,omitempty"`

	// MinQuantities overrides MinQuantity for individual products.
	MinQuantities map[string]int `json:"minQuantities,omitempty" validate:"omitempty,dive,gte=1"`
}

// MinimumFor returns the quantity of productID the bundle requires.
func (b BundleDeal) MinimumFor(productID string) int {
	if qty, ok := b.MinQuantities[productID]; ok {
		return qty
	}
	return b.MinQuantity
}

// RuleSet holds the four rule classes read for one pricing request.
type RuleSet struct {
	CustomerDiscounts  []CustomerDiscount
	InventoryDiscounts []InventoryDiscount
	BogoPromotions     []BogoPromotion
	BundleDeals        []BundleDeal
}

type Actor struct {
	Username string
	Role     string
}

type PricingAudit struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId"`
	Market         string          `json:"market"`
	ActorUsername  string          `json:"actorUsername"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalDiscount  decimal.Decimal `json:"totalDiscount"`
	FinalTotal     decimal.Decimal `json:"finalTotal"`
	Lines          []LineAudit     `json:"lines"`
	SourceFailures []string        `json:"sourceFailures,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// LineAudit records every discount that competed for one line and why the
// winner was chosen.
type LineAudit struct {
	ProductID       string               `json:"productId"`
	Quantity        int                  `json:"quantity"`
	Evaluated       []DiscountEvaluation `json:"evaluated"`
	SelectedID      string               `json:"selectedId,omitempty"`
	SelectionReason string               `json:"selectionReason"`
}
