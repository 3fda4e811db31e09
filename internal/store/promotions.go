package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arvel-dev/backend-pricing/internal/promotion"
)

const promotionColumns = `id, name, code, compatibility, conditions, offer,
starts_at, ends_at, enabled`

// GetPromotion loads a promotion by id.
func (s *Store) GetPromotion(ctx context.Context, id uuid.UUID) (promotion.Promotion, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
	p, err := s.scanPromotion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return promotion.Promotion{}, fmt.Errorf("promotion %s: %w", id, ErrNotFound)
	}
	return p, err
}

// GetPromotionByCode resolves a coupon code, case-sensitively.
func (s *Store) GetPromotionByCode(ctx context.Context, code string) (promotion.Promotion, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE code = $1`, code)
	p, err := s.scanPromotion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return promotion.Promotion{}, fmt.Errorf("promotion code %q: %w", code, ErrNotFound)
	}
	return p, err
}

// ListPromotions returns every promotion, newest first.
func (s *Store) ListPromotions(ctx context.Context) ([]promotion.Promotion, error) {
	return s.queryPromotions(ctx,
		`SELECT `+promotionColumns+` FROM promotions ORDER BY created_at DESC`)
}

// ListAutomaticPromotions returns enabled promotions without a coupon code
// whose date window covers now. These apply to every order on each
// recalculation pass.
func (s *Store) ListAutomaticPromotions(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	return s.queryPromotions(ctx,
		`SELECT `+promotionColumns+` FROM promotions
		  WHERE enabled
		    AND code IS NULL
		    AND (starts_at IS NULL OR starts_at <= $1)
		    AND (ends_at IS NULL OR ends_at >= $1)
		  ORDER BY created_at ASC`, now)
}

// SavePromotion upserts a promotion.
func (s *Store) SavePromotion(ctx context.Context, p promotion.Promotion) error {
	rawConditions, err := encodeConditions(p.Conditions)
	if err != nil {
		return fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	rawOffer, err := promotion.MarshalOffer(p.Offer)
	if err != nil {
		return fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	var code *string
	if p.Code != "" {
		code = &p.Code
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO promotions
		   (id, name, code, compatibility, conditions, offer, starts_at, ends_at, enabled)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   code = EXCLUDED.code,
		   compatibility = EXCLUDED.compatibility,
		   conditions = EXCLUDED.conditions,
		   offer = EXCLUDED.offer,
		   starts_at = EXCLUDED.starts_at,
		   ends_at = EXCLUDED.ends_at,
		   enabled = EXCLUDED.enabled`,
		p.ID, p.Name, code, string(p.Compatibility), rawConditions, rawOffer,
		p.StartsAt, p.EndsAt, p.Enabled)
	if err != nil {
		return fmt.Errorf("save promotion %s: %w", p.ID, err)
	}
	return nil
}

// DeletePromotion removes a promotion.
func (s *Store) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("promotion %s: %w", id, ErrNotFound)
	}
	return nil
}

// DisableExpiredPromotions turns off promotions whose window has closed.
// Used by the periodic sweep task; returns how many rows changed.
func (s *Store) DisableExpiredPromotions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE promotions SET enabled = FALSE
		  WHERE enabled AND ends_at IS NOT NULL AND ends_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("disable expired promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryPromotions(ctx context.Context, sql string, args ...any) ([]promotion.Promotion, error) {
	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var promotions []promotion.Promotion
	for rows.Next() {
		p, err := s.scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

func (s *Store) scanPromotion(row pgx.Row) (promotion.Promotion, error) {
	var (
		p             promotion.Promotion
		code          *string
		compatibility string
		rawConditions []byte
		rawOffer      []byte
	)
	err := row.Scan(&p.ID, &p.Name, &code, &compatibility, &rawConditions,
		&rawOffer, &p.StartsAt, &p.EndsAt, &p.Enabled)
	if err != nil {
		return promotion.Promotion{}, err
	}
	if code != nil {
		p.Code = *code
	}
	p.Compatibility = promotion.Compatibility(compatibility)

	if p.Conditions, err = s.decodeConditions(rawConditions); err != nil {
		return promotion.Promotion{}, fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	if p.Offer, err = promotion.UnmarshalOffer(rawOffer, s.registry()); err != nil {
		return promotion.Promotion{}, fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	return p, nil
}
