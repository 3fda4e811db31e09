package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/tax"
)

// ListTaxRates returns every configured tax rate ordered by label, which is
// also the order they are applied in.
func (s *Store) ListTaxRates(ctx context.Context) ([]tax.Rate, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, label, percentage::text, display_inclusive, conditions
		   FROM tax_rates ORDER BY label ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	var rates []tax.Rate
	for rows.Next() {
		var (
			rate          tax.Rate
			percentage    string
			rawConditions []byte
		)
		if err := rows.Scan(&rate.ID, &rate.Label, &percentage,
			&rate.DisplayInclusive, &rawConditions); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		if rate.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("tax rate %s percentage: %w", rate.ID, err)
		}
		if rate.Conditions, err = s.decodeConditions(rawConditions); err != nil {
			return nil, fmt.Errorf("tax rate %s: %w", rate.ID, err)
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// SaveTaxRate upserts a tax rate.
func (s *Store) SaveTaxRate(ctx context.Context, rate tax.Rate) error {
	rawConditions, err := encodeConditions(rate.Conditions)
	if err != nil {
		return fmt.Errorf("tax rate %s: %w", rate.ID, err)
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO tax_rates (id, label, percentage, display_inclusive, conditions)
		 VALUES ($1,$2,$3::numeric,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET
		   label = EXCLUDED.label,
		   percentage = EXCLUDED.percentage,
		   display_inclusive = EXCLUDED.display_inclusive,
		   conditions = EXCLUDED.conditions`,
		rate.ID, rate.Label, rate.Percentage.String(), rate.DisplayInclusive, rawConditions)
	if err != nil {
		return fmt.Errorf("save tax rate %s: %w", rate.ID, err)
	}
	return nil
}

// DeleteTaxRate removes a tax rate.
func (s *Store) DeleteTaxRate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM tax_rates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tax rate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tax rate %s: %w", id, ErrNotFound)
	}
	return nil
}
