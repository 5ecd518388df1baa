// Package store persists the product catalog and profit tiers in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-quote/internal/catalog"
	"github.com/noah-isme/backend-quote/internal/pricing"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Postgres implements catalog.Source and pricing.TierLoader.
type Postgres struct {
	db DB
}

// NewPostgres constructs a Postgres store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

var (
	_ catalog.Source     = (*Postgres)(nil)
	_ pricing.TierLoader = (*Postgres)(nil)
)

const selectProducts = `
SELECT id, oe_number, aliases, brand_code, xk_no, name,
       price_min::text, price_avg::text, price_max::text, image_url
FROM catalog_products
ORDER BY id`

// LoadProducts implements catalog.Source.
func (p *Postgres) LoadProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := p.db.Query(ctx, selectProducts)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var (
			prod          catalog.Product
			min, avg, max *string
		)
		if err := rows.Scan(&prod.ID, &prod.OENumber, &prod.Aliases, &prod.BrandCode, &prod.XKNo,
			&prod.Name, &min, &avg, &max, &prod.ImageURL); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if prod.Band, err = bandFromText(min, avg, max); err != nil {
			return nil, fmt.Errorf("product %s: %w", prod.ID, err)
		}
		out = append(out, prod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// LoadTiers implements pricing.TierLoader.
func (p *Postgres) LoadTiers(ctx context.Context) ([]pricing.Tier, error) {
	rows, err := p.db.Query(ctx, `SELECT min_quantity, max_quantity, rate::text FROM profit_tiers ORDER BY min_quantity`)
	if err != nil {
		return nil, fmt.Errorf("query profit tiers: %w", err)
	}
	defer rows.Close()

	var out []pricing.Tier
	for rows.Next() {
		var (
			minQty int
			maxQty *int
			rate   string
		)
		if err := rows.Scan(&minQty, &maxQty, &rate); err != nil {
			return nil, fmt.Errorf("scan profit tier: %w", err)
		}
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("profit tier %d: %w", minQty, err)
		}
		t := pricing.Tier{MinQuantity: minQty, Rate: d}
		if maxQty != nil {
			t.MaxQuantity = *maxQty
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profit tiers: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("no profit tiers configured")
	}
	return out, nil
}

const upsertProduct = `
INSERT INTO catalog_products (id, oe_number, aliases, brand_code, xk_no, name, price_min, price_avg, price_max, image_url, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, now())
ON CONFLICT (id) DO UPDATE SET
    oe_number = EXCLUDED.oe_number,
    aliases = EXCLUDED.aliases,
    brand_code = EXCLUDED.brand_code,
    xk_no = EXCLUDED.xk_no,
    name = EXCLUDED.name,
    price_min = EXCLUDED.price_min,
    price_avg = EXCLUDED.price_avg,
    price_max = EXCLUDED.price_max,
    image_url = EXCLUDED.image_url,
    updated_at = now()`

// UpsertProducts writes products in one transaction.
func (p *Postgres) UpsertProducts(ctx context.Context, products []catalog.Product) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, prod := range products {
		aliases := prod.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		batch.Queue(upsertProduct, prod.ID, prod.OENumber, aliases, prod.BrandCode, prod.XKNo, prod.Name,
			textOrNil(prod.Band.Min), textOrNil(prod.Band.Avg), textOrNil(prod.Band.Max), prod.ImageURL)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return tx.Commit(ctx)
}

// ReplaceTiers swaps the stored schedule for tiers after validating them.
func (p *Postgres) ReplaceTiers(ctx context.Context, tiers []pricing.Tier) error {
	if _, err := pricing.NewSchedule(tiers); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM profit_tiers`); err != nil {
		return fmt.Errorf("clear profit tiers: %w", err)
	}
	for _, t := range tiers {
		var maxQty *int
		if t.MaxQuantity != 0 {
			v := t.MaxQuantity
			maxQty = &v
		}
		if _, err := tx.Exec(ctx, `INSERT INTO profit_tiers (min_quantity, max_quantity, rate) VALUES ($1, $2, $3::numeric)`,
			t.MinQuantity, maxQty, t.Rate.String()); err != nil {
			return fmt.Errorf("insert profit tier %d: %w", t.MinQuantity, err)
		}
	}
	return tx.Commit(ctx)
}

func bandFromText(min, avg, max *string) (pricing.Band, error) {
	var band pricing.Band
	for _, slot := range []struct {
		raw *string
		dst *decimal.NullDecimal
	}{{min, &band.Min}, {avg, &band.Avg}, {max, &band.Max}} {
		if slot.raw == nil {
			continue
		}
		d, err := decimal.NewFromString(*slot.raw)
		if err != nil {
			return pricing.Band{}, fmt.Errorf("invalid band value %q: %w", *slot.raw, err)
		}
		*slot.dst = decimal.NewNullDecimal(d)
	}
	return band, nil
}

func textOrNil(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.String()
	return &s
}
