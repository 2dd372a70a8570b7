package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gtipricing/backend/internal/domain"
	"gtipricing/backend/internal/store"
	"gtipricing/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db    *sql.DB
	types *pgtype.Map
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, types: pgtype.NewMap()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the pricing tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var tier string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_name, tier, market
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.BusinessName, &tier, &c.Market)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Tier = domain.Tier(tier)
	return &c, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, category, subcategory, base_price, expiration_date, thc_percentage
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		var expiration sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Subcategory, &p.BasePrice, &expiration, &p.THCPercentage); err != nil {
			return nil, err
		}
		p.ExpirationDate = nullTime(expiration)
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListCustomerDiscounts(ctx context.Context) ([]domain.CustomerDiscount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, level, target, kind, value, tiers, markets, start_date, end_date, priority, quantity_breaks
		FROM customer_discounts
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	discounts := make([]domain.CustomerDiscount, 0, 32)
	for rows.Next() {
		var d domain.CustomerDiscount
		var tiers []string
		var endDate sql.NullTime
		var breaks []byte
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Status, &d.Level, &d.Target, &d.Kind, &d.Value,
			s.types.SQLScanner(&tiers), s.types.SQLScanner(&d.Markets),
			&d.StartDate, &endDate, &d.Priority, &breaks,
		); err != nil {
			return nil, err
		}
		if len(breaks) > 0 {
			if err := json.Unmarshal(breaks, &d.QuantityBreaks); err != nil {
				return nil, fmt.Errorf("customer discount %s quantity_breaks: %w", d.ID, err)
			}
		}
		d.Tiers = make([]domain.Tier, 0, len(tiers))
		for _, tier := range tiers {
			d.Tiers = append(d.Tiers, domain.Tier(tier))
		}
		d.StartDate = d.StartDate.UTC()
		d.EndDate = nullTime(endDate)
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return discounts, nil
}

func (s *Store) ListInventoryDiscounts(ctx context.Context) ([]domain.InventoryDiscount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, trigger_kind, trigger_threshold, kind, value, scope, scope_value, priority
		FROM inventory_discounts
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	discounts := make([]domain.InventoryDiscount, 0, 16)
	for rows.Next() {
		var d domain.InventoryDiscount
		if err := rows.Scan(&d.ID, &d.Name, &d.Status, &d.Trigger, &d.TriggerThreshold, &d.Kind, &d.Value, &d.Scope, &d.ScopeValue, &d.Priority); err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return discounts, nil
}

func (s *Store) ListBogoPromotions(ctx context.Context) ([]domain.BogoPromotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, trigger_level, trigger_target, reward_kind, reward_value, start_date, end_date
		FROM bogo_promotions
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.BogoPromotion, 0, 16)
	for rows.Next() {
		var p domain.BogoPromotion
		var endDate sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.TriggerLevel, &p.TriggerTarget, &p.RewardKind, &p.RewardValue, &p.StartDate, &endDate); err != nil {
			return nil, err
		}
		p.StartDate = p.StartDate.UTC()
		p.EndDate = nullTime(endDate)
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *Store) ListBundleDeals(ctx context.Context) ([]domain.BundleDeal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, product_ids, min_quantity, min_quantities, kind, value, start_date, end_date
		FROM bundle_deals
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bundles := make([]domain.BundleDeal, 0, 16)
	for rows.Next() {
		var b domain.BundleDeal
		var minimums []byte
		var endDate sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.Status, s.types.SQLScanner(&b.ProductIDs), &b.MinQuantity, &minimums, &b.Kind, &b.Value, &b.StartDate, &endDate); err != nil {
			return nil, err
		}
		if len(minimums) > 0 {
			if err := json.Unmarshal(minimums, &b.MinQuantities); err != nil {
				return nil, fmt.Errorf("bundle %s min_quantities: %w", b.ID, err)
			}
		}
		b.StartDate = b.StartDate.UTC()
		b.EndDate = nullTime(endDate)
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bundles, nil
}

func (s *Store) CreatePricingAudit(ctx context.Context, entry domain.PricingAudit) error {
	if entry.CustomerID == "" {
		return store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("pra")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	detail, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pricing_audits (
			id, customer_id, market, actor_username, subtotal, total_discount, final_total, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CustomerID, entry.Market, entry.ActorUsername, entry.Subtotal, entry.TotalDiscount, entry.FinalTotal, detail, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("pricing audit %s already recorded: %w", entry.ID, store.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
