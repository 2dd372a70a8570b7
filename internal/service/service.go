package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"gtipricing/backend/internal/audit"
	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/logging"
	"gtipricing/backend/internal/pricing"
	"gtipricing/backend/internal/store"
	"gtipricing/backend/internal/xid"
)

const instrumentationName = "gtipricing/backend/internal/service"

var tracer = otel.Tracer(instrumentationName)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Deps struct {
	Catalog store.Catalog
	Rules   store.RuleRepository
	// Audit is optional; a nil sink disables audit records.
	Audit   audit.Sink
	Options pricing.Options
	Logger  *slog.Logger
	Meter   metric.Meter
	Now     func() time.Time
}

type Service struct {
	catalog  store.Catalog
	rules    store.RuleRepository
	audit    audit.Sink
	options  pricing.Options
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate

	requests       metric.Int64Counter
	sourceFailures metric.Int64Counter
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Meter == nil {
		deps.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	s := &Service{
		catalog:  deps.Catalog,
		rules:    deps.Rules,
		audit:    deps.Audit,
		options:  deps.Options,
		logger:   deps.Logger.With("component", "pricing_service"),
		now:      deps.Now,
		validate: newRecordValidator(),
	}

	var err error
	s.requests, err = deps.Meter.Int64Counter("pricing.requests",
		metric.WithDescription("Pricing requests by operation and outcome"))
	if err != nil {
		s.requests = noop.Int64Counter{}
	}
	s.sourceFailures, err = deps.Meter.Int64Counter("pricing.source_failures",
		metric.WithDescription("Rule source reads that failed and were priced as empty"))
	if err != nil {
		s.sourceFailures = noop.Int64Counter{}
	}
	return s
}

// log prefers the request-scoped logger so records carry the request id.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// PriceBasket prices a whole basket for one customer in one market.
func (s *Service) PriceBasket(ctx context.Context, req domain.PriceBasketRequest) (result domain.PricingResult, err error) {
	ctx, span := tracer.Start(ctx, "service.PriceBasket", trace.WithAttributes(
		attribute.String("pricing.customer_id", req.CustomerID),
		attribute.String("pricing.market", req.Market),
		attribute.Int("pricing.items", len(req.Items)),
	))
	defer func() { s.finish(ctx, span, "price_basket", err) }()

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Market = strings.TrimSpace(req.Market)
	if err := validateBasket(req); err != nil {
		return domain.PricingResult{}, err
	}

	items := pricing.MergeItems(req.Items)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	src, err := s.gather(ctx, req.CustomerID, ids)
	if err != nil {
		return domain.PricingResult{}, err
	}

	now := s.now()
	if req.AsOf != nil {
		now = req.AsOf.UTC()
	}
	result = pricing.Price(pricing.Input{
		Customer: src.customer,
		Market:   req.Market,
		Items:    items,
		Products: src.products,
		Rules:    src.rules,
		Now:      now,
	}, s.options)
	result.SourceFailures = src.failures

	span.SetAttributes(
		attribute.String("pricing.final_total", result.FinalTotal.StringFixed(2)),
		attribute.Int("pricing.source_failures", len(src.failures)),
	)
	s.recordAudit(ctx, result)
	return result, nil
}

func validateBasket(req domain.PriceBasketRequest) error {
	if req.CustomerID == "" || req.Market == "" {
		return invalid("Customer ID and Market are required")
	}
	if len(req.Items) == 0 {
		return invalid("At least one item is required")
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return invalid("Every item needs a productId")
		}
		if item.Quantity <= 0 {
			return invalid(fmt.Sprintf("Quantity for %s must be a positive integer", item.ProductID))
		}
	}
	return nil
}

// recordAudit is best effort: a failed write is logged and never fails pricing.
func (s *Service) recordAudit(ctx context.Context, result domain.PricingResult) {
	if s.audit == nil {
		return
	}
	actor, _ := ActorFromContext(ctx)

	lines := make([]domain.LineAudit, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, domain.LineAudit{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			Evaluated:       line.Evaluated,
			SelectedID:      line.AppliedDiscountID,
			SelectionReason: pricing.SelectionReason(line, s.options.Policy),
		})
	}

	entry := domain.PricingAudit{
		ID:             xid.New("pra"),
		CustomerID:     result.CustomerID,
		Market:         result.Market,
		ActorUsername:  actor.Username,
		Subtotal:       result.Subtotal,
		TotalDiscount:  result.TotalDiscount,
		FinalTotal:     result.FinalTotal,
		Lines:          lines,
		SourceFailures: result.SourceFailures,
		CreatedAt:      s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log(ctx).WarnContext(ctx, "pricing audit not recorded", "customer_id", result.CustomerID, "error", err)
	}
}

// ValidateDiscounts prices each requested product on its own and reports the
// best discount and promotions for it.
func (s *Service) ValidateDiscounts(ctx context.Context, req domain.ValidateDiscountRequest) (resp domain.ValidateDiscountResponse, err error) {
	ctx, span := tracer.Start(ctx, "service.ValidateDiscounts", trace.WithAttributes(
		attribute.String("pricing.customer_id", req.CustomerID),
		attribute.String("pricing.market", req.Market),
	))
	defer func() { s.finish(ctx, span, "validate_discounts", err) }()

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Market = strings.TrimSpace(req.Market)
	if req.CustomerID == "" || req.Market == "" {
		return resp, invalid("Customer ID and Market are required")
	}
	products, err := requestedProducts(req)
	if err != nil {
		return resp, err
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	src, err := s.gather(ctx, req.CustomerID, ids)
	if err != nil {
		return resp, err
	}

	now := s.now()
	resp = domain.ValidateDiscountResponse{
		Customer:       src.customer,
		Market:         req.Market,
		Calculations:   make([]domain.DiscountCalculation, 0, len(products)),
		SourceFailures: src.failures,
	}
	summary := domain.ValidationSummary{
		TotalOriginalPrice: decimal.Zero,
		TotalDiscount:      decimal.Zero,
		TotalFinalPrice:    decimal.Zero,
	}

	for _, requested := range products {
		calc := s.calculate(src, req.Market, requested, now)
		if !calc.Found {
			summary.ProductsNotFound++
		} else if calc.DiscountAmount.Sign() > 0 {
			summary.ProductsWithDiscounts++
		}
		summary.TotalOriginalPrice = summary.TotalOriginalPrice.Add(calc.OriginalPrice)
		summary.TotalDiscount = summary.TotalDiscount.Add(calc.DiscountAmount)
		summary.TotalFinalPrice = summary.TotalFinalPrice.Add(calc.FinalPrice)
		resp.Calculations = append(resp.Calculations, calc)
	}
	resp.Summary = summary
	return resp, nil
}

func requestedProducts(req domain.ValidateDiscountRequest) ([]domain.ValidateProduct, error) {
	var products []domain.ValidateProduct
	switch {
	case len(req.Products) > 0:
		products = make([]domain.ValidateProduct, 0, len(req.Products))
		for _, p := range req.Products {
			p.ID = strings.TrimSpace(p.ID)
			if p.ID == "" {
				return nil, invalid("Every product needs an id")
			}
			products = append(products, p)
		}
	case strings.TrimSpace(req.ProductID) != "":
		products = []domain.ValidateProduct{{ID: strings.TrimSpace(req.ProductID), Quantity: req.Quantity}}
	default:
		return nil, invalid("Either productId or products array is required")
	}

	for i := range products {
		switch {
		case products[i].Quantity == 0:
			products[i].Quantity = 1
		case products[i].Quantity < 0:
			return nil, invalid(fmt.Sprintf("Quantity for %s must be a positive integer", products[i].ID))
		}
	}
	return products, nil
}

func (s *Service) calculate(src sources, market string, requested domain.ValidateProduct, now time.Time) domain.DiscountCalculation {
	calc := domain.DiscountCalculation{
		ProductID:           requested.ID,
		Quantity:            requested.Quantity,
		OriginalPrice:       decimal.Zero,
		DiscountAmount:      decimal.Zero,
		FinalPrice:          decimal.Zero,
		SavingsPercentage:   decimal.Zero,
		ApplicableDiscounts: []domain.DiscountEvaluation{},
	}
	product, ok := src.products[requested.ID]
	if !ok {
		return calc
	}

	result := pricing.Price(pricing.Input{
		Customer: src.customer,
		Market:   market,
		Items:    []domain.PricingItem{{ProductID: requested.ID, Quantity: requested.Quantity}},
		Products: map[string]domain.Product{requested.ID: product},
		Rules:    src.rules,
		Now:      now,
	}, s.options)
	if len(result.Lines) == 0 {
		return calc
	}
	line := result.Lines[0]

	calc.Found = true
	calc.ProductName = product.Name
	calc.OriginalPrice = result.Subtotal
	calc.FinalPrice = result.FinalTotal
	calc.DiscountAmount = result.TotalDiscount
	if result.Subtotal.Sign() > 0 {
		calc.SavingsPercentage = result.TotalDiscount.Div(result.Subtotal).Mul(decimal.NewFromInt(100))
	}
	for i := range result.AppliedDiscounts {
		if result.AppliedDiscounts[i].ID == line.AppliedDiscountID {
			best := result.AppliedDiscounts[i]
			calc.BestDiscount = &best
			break
		}
	}
	calc.Promotions = result.AppliedPromotions
	if line.Evaluated != nil {
		calc.ApplicableDiscounts = line.Evaluated
	}
	calc.Explanation = pricing.ExplainSelection(line, s.options.Policy)
	return calc
}

// DiscountSummary counts the rules currently eligible for a customer in a market.
func (s *Service) DiscountSummary(ctx context.Context, customerID string, market string) (resp domain.DiscountSummaryResponse, err error) {
	ctx, span := tracer.Start(ctx, "service.DiscountSummary", trace.WithAttributes(
		attribute.String("pricing.customer_id", customerID),
		attribute.String("pricing.market", market),
	))
	defer func() { s.finish(ctx, span, "discount_summary", err) }()

	customerID = strings.TrimSpace(customerID)
	market = strings.TrimSpace(market)
	if customerID == "" || market == "" {
		return resp, invalid("Customer ID and Market are required")
	}

	src, err := s.gather(ctx, customerID, nil)
	if err != nil {
		return resp, err
	}
	eligible := pricing.FilterEligible(src.rules, src.customer, market, s.now())
	return domain.DiscountSummaryResponse{
		Customer: src.customer,
		Market:   market,
		DiscountSummary: domain.DiscountSummary{
			CustomerDiscounts:  len(eligible.CustomerDiscounts),
			InventoryDiscounts: len(eligible.InventoryDiscounts),
			BogoPromotions:     len(eligible.BogoPromotions),
			BundleDeals:        len(eligible.BundleDeals),
		},
		SourceFailures: src.failures,
	}, nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	span.End()
}
