package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

const orderColumns = `state, email, coupon_code, rounding_mode, currency,
subtotal::text, total::text, total_paid::text, adjustments, item_ids::text[],
created_at, updated_at`

// GetOrder loads an order with its line items. The stored item_ids array
// fixes the display order; ids referencing deleted rows are skipped on read
// and dropped for good by the next SaveOrder.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o := &order.Order{ID: id}
	var (
		state        string
		roundingMode string
		currency     *string
		subtotal     *string
		total        *string
		totalPaid    *string
		rawAdj       []byte
		itemIDs      []string
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	).Scan(&state, &o.Email, &o.CouponCode, &roundingMode, &currency,
		&subtotal, &total, &totalPaid, &rawAdj, &itemIDs,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	o.State = order.State(state)
	o.RoundingMode, err = money.ParseRoundingMode(roundingMode)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	if o.Subtotal, err = nullableMoney(subtotal, currency); err != nil {
		return nil, fmt.Errorf("order %s subtotal: %w", id, err)
	}
	if o.Total, err = nullableMoney(total, currency); err != nil {
		return nil, fmt.Errorf("order %s total: %w", id, err)
	}
	if o.TotalPaid, err = nullableMoney(totalPaid, currency); err != nil {
		return nil, fmt.Errorf("order %s total paid: %w", id, err)
	}
	if o.Adjustments, err = decodeAdjustments(rawAdj); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}

	items, err := s.loadLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, itemID := range itemIDs {
		parsed, err := uuid.Parse(itemID)
		if err != nil {
			return nil, fmt.Errorf("order %s item id %q: %w", id, itemID, err)
		}
		if li, ok := items[parsed]; ok {
			o.LineItems = append(o.LineItems, li)
		}
		// Dangling ids are tolerated here; SaveOrder rewrites the array.
	}
	return o, nil
}

func (s *Store) loadLineItems(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]*order.LineItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, purchasable_id, title, quantity::text, unit_price::text,
		        currency, overridden, legacy_per_unit, adjustments
		   FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]*order.LineItem)
	for rows.Next() {
		var (
			li            order.LineItem
			quantity      string
			unitPrice     *string
			currency      *string
			legacyPerUnit bool
			rawAdj        []byte
		)
		if err := rows.Scan(&li.ID, &li.PurchasableID, &li.Title, &quantity,
			&unitPrice, &currency, &li.Overridden, &legacyPerUnit, &rawAdj); err != nil {
			return nil, fmt.Errorf("scan item for order %s: %w", orderID, err)
		}
		if li.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("item %s quantity: %w", li.ID, err)
		}
		if li.UnitPrice, err = nullableMoney(unitPrice, currency); err != nil {
			return nil, fmt.Errorf("item %s unit price: %w", li.ID, err)
		}
		if legacyPerUnit {
			li.Mode = order.AdjustmentModeLegacyPerUnit
		}
		if li.Adjustments, err = decodeAdjustments(rawAdj); err != nil {
			return nil, fmt.Errorf("item %s: %w", li.ID, err)
		}
		item := li
		items[li.ID] = &item
	}
	return items, rows.Err()
}

// CreateOrder inserts a new order and its line items.
func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		subtotal, total, totalPaid, currency := orderTotals(o)
		rawAdj, err := encodeAdjustments(o.Adjustments)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO orders
			   (id, state, email, coupon_code, rounding_mode, currency,
			    subtotal, total, total_paid, adjustments, item_ids,
			    created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10,$11::uuid[],$12,$13)`,
			o.ID, string(o.State), o.Email, o.CouponCode, o.RoundingMode.String(),
			currency, subtotal, total, totalPaid, rawAdj, itemIDStrings(o),
			o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}
		return upsertLineItems(ctx, tx, o)
	})
}

// SaveOrder persists the order, upserts its line items and deletes rows no
// longer referenced. The item_ids array is rewritten from the in-memory
// state, which is where dangling references get repaired.
func (s *Store) SaveOrder(ctx context.Context, o *order.Order) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		subtotal, total, totalPaid, currency := orderTotals(o)
		rawAdj, err := encodeAdjustments(o.Adjustments)
		if err != nil {
			return err
		}
		ids := itemIDStrings(o)
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET
			   state = $2, email = $3, coupon_code = $4, rounding_mode = $5,
			   currency = $6, subtotal = $7::numeric, total = $8::numeric,
			   total_paid = $9::numeric, adjustments = $10,
			   item_ids = $11::uuid[], updated_at = $12
			 WHERE id = $1`,
			o.ID, string(o.State), o.Email, o.CouponCode, o.RoundingMode.String(),
			currency, subtotal, total, totalPaid, rawAdj, ids, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order %s: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM order_items WHERE order_id = $1 AND NOT (id = ANY($2::uuid[]))`,
			o.ID, ids); err != nil {
			return fmt.Errorf("prune items for order %s: %w", o.ID, err)
		}
		return upsertLineItems(ctx, tx, o)
	})
}

// DeleteOrder removes an order and its line items.
func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListDraftOrderIDs returns ids of draft orders, oldest first, for the
// background recalculation sweep.
func (s *Store) ListDraftOrderIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id FROM orders WHERE state = $1 ORDER BY updated_at ASC LIMIT $2`,
		string(order.StateDraft), limit)
	if err != nil {
		return nil, fmt.Errorf("list draft orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan draft order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func upsertLineItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	for _, li := range o.LineItems {
		rawAdj, err := encodeAdjustments(li.Adjustments)
		if err != nil {
			return fmt.Errorf("item %s: %w", li.ID, err)
		}
		var unitPrice, currency *string
		if li.UnitPrice != nil {
			amount := li.UnitPrice.Amount().String()
			code := li.UnitPrice.CurrencyCode()
			unitPrice, currency = &amount, &code
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items
			   (id, order_id, purchasable_id, title, quantity, unit_price,
			    currency, overridden, legacy_per_unit, adjustments)
			 VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9,$10)
			 ON CONFLICT (id) DO UPDATE SET
			   purchasable_id = EXCLUDED.purchasable_id,
			   title = EXCLUDED.title,
			   quantity = EXCLUDED.quantity,
			   unit_price = EXCLUDED.unit_price,
			   currency = EXCLUDED.currency,
			   overridden = EXCLUDED.overridden,
			   legacy_per_unit = EXCLUDED.legacy_per_unit,
			   adjustments = EXCLUDED.adjustments`,
			li.ID, o.ID, li.PurchasableID, li.Title, li.Quantity.String(),
			unitPrice, currency, li.Overridden,
			li.Mode == order.AdjustmentModeLegacyPerUnit, rawAdj)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", li.ID, err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func orderTotals(o *order.Order) (subtotal, total, totalPaid, currency *string) {
	if code, ok := o.Currency(); ok {
		currency = &code
	}
	if o.Subtotal != nil {
		v := o.Subtotal.Amount().String()
		subtotal = &v
	}
	if o.Total != nil {
		v := o.Total.Amount().String()
		total = &v
	}
	if o.TotalPaid != nil {
		v := o.TotalPaid.Amount().String()
		totalPaid = &v
	}
	return subtotal, total, totalPaid, currency
}

func itemIDStrings(o *order.Order) []string {
	ids := make([]string, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		ids = append(ids, li.ID.String())
	}
	return ids
}

func nullableMoney(amount, currency *string) (*money.Money, error) {
	if amount == nil || currency == nil {
		return nil, nil
	}
	m, err := money.FromString(*amount, *currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
