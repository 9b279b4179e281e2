package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The product catalog is owned by an external process; this subsystem only
// reads it.

const productColumns = `id, slug, brand, model, category, technical_specs, source_urls, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Brand, &p.Model, &p.Category,
		&p.TechnicalSpecs, &p.SourceURLs, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retrieves a product by ID. Returns (nil, nil) when not found.
func (db *DB) GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error) {
	p, err := scanProduct(db.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// GetProductBySlug retrieves a product by its URL slug.
func (db *DB) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := scanProduct(db.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product by slug: %w", err)
	}
	return p, nil
}
