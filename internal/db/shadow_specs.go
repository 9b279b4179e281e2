package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrStaleWrite is returned when a shadow spec write loses the fencing check:
// a newer run has already published a result for the product.
var ErrStaleWrite = errors.New("shadow spec write fenced out by a newer run")

const shadowColumns = `id, product_id, claimed_specs, actual_specs, red_flags,
	truth_score, is_verified, stages, source_urls, version, created_at, updated_at`

func scanShadow(row pgx.Row) (*ShadowSpec, error) {
	var s ShadowSpec
	err := row.Scan(&s.ID, &s.ProductID, &s.ClaimedSpecs, &s.ActualSpecs, &s.RedFlags,
		&s.TruthScore, &s.IsVerified, &s.Stages, &s.SourceURLs, &s.Version,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetShadowSpec retrieves the canonical spec for a product. Returns (nil, nil)
// when the product has never completed a stage.
func (db *DB) GetShadowSpec(ctx context.Context, productID uuid.UUID) (*ShadowSpec, error) {
	s, err := scanShadow(db.pool.QueryRow(ctx,
		`SELECT `+shadowColumns+` FROM shadow_specs WHERE product_id = $1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shadow spec: %w", err)
	}
	return s, nil
}

// UpsertShadowSpec writes the canonical spec for a product, fenced by the
// writer's version token: a write whose version is below the stored one is
// rejected with ErrStaleWrite, so a slow run finishing late cannot clobber a
// newer run's result. Nil JSON inputs leave the stored column untouched, which
// lets the worker persist progressively stage by stage.
func (db *DB) UpsertShadowSpec(ctx context.Context, productID uuid.UUID, version int64, input ShadowSpecInput) error {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO shadow_specs
			(product_id, claimed_specs, actual_specs, red_flags, truth_score,
			 is_verified, stages, source_urls, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6::boolean, FALSE), $7, COALESCE($8::text[], '{}'), $9, NOW())
		 ON CONFLICT (product_id) DO UPDATE SET
			claimed_specs = COALESCE(EXCLUDED.claimed_specs, shadow_specs.claimed_specs),
			actual_specs  = COALESCE(EXCLUDED.actual_specs,  shadow_specs.actual_specs),
			red_flags     = COALESCE(EXCLUDED.red_flags,     shadow_specs.red_flags),
			truth_score   = COALESCE(EXCLUDED.truth_score,   shadow_specs.truth_score),
			is_verified   = COALESCE($6::boolean, shadow_specs.is_verified),
			stages        = COALESCE(EXCLUDED.stages,        shadow_specs.stages),
			source_urls   = CASE WHEN $8::text[] IS NULL THEN shadow_specs.source_urls ELSE EXCLUDED.source_urls END,
			version       = EXCLUDED.version,
			updated_at    = NOW()
		 WHERE shadow_specs.version <= EXCLUDED.version`,
		productID, input.ClaimedSpecs, input.ActualSpecs, input.RedFlags,
		input.TruthScore, input.IsVerified, input.Stages, input.SourceURLs, version)
	if err != nil {
		return fmt.Errorf("failed to upsert shadow spec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}
