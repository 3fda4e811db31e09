// Package cart exposes the mutating operations on draft orders: adding and
// removing items, promotion codes and manual adjustments. Every mutation
// runs the full recalculation pipeline before the order is saved, so stored
// totals are always derived, never patched.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/obs"
	"github.com/arvel-dev/backend-pricing/internal/order"
	"github.com/arvel-dev/backend-pricing/internal/promotion"
	"github.com/arvel-dev/backend-pricing/internal/tax"
)

// ErrNotFound indicates the requested order could not be located.
var ErrNotFound = errors.New("order not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotDraft is returned when a mutation targets an order that already left
// the draft state.
var ErrNotDraft = errors.New("order is not a draft")

// ErrPromotionNotApplicable is returned when a promotion code resolves but
// its offer changes nothing on the order.
var ErrPromotionNotApplicable = errors.New("promotion not applicable")

// OrderStore loads and saves orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	CreateOrder(ctx context.Context, o *order.Order) error
	SaveOrder(ctx context.Context, o *order.Order) error
}

// PromotionStore resolves promotions.
type PromotionStore interface {
	GetPromotionByCode(ctx context.Context, code string) (promotion.Promotion, error)
	ListAutomaticPromotions(ctx context.Context, now time.Time) ([]promotion.Promotion, error)
}

// TaxStore lists the configured tax rates.
type TaxStore interface {
	ListTaxRates(ctx context.Context) ([]tax.Rate, error)
}

// Locker serializes concurrent mutations of the same order.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations.
type Service struct {
	Orders     OrderStore
	Promotions PromotionStore
	Taxes      TaxStore
	Locks      Locker
	LockTTL    time.Duration
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// EnsureOrder creates and persists an empty draft order for the email.
func (s *Service) EnsureOrder(ctx context.Context, email string) (*order.Order, error) {
	if s == nil || s.Orders == nil {
		return nil, errors.New("cart service not configured")
	}
	o := order.New(email)
	if err := s.Orders.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

// AddItem adds a purchasable to the draft order. When an existing line item
// matches the same purchasable at the same unit price, its quantity is
// incremented instead of appending a duplicate row.
func (s *Service) AddItem(ctx context.Context, orderID uuid.UUID, purchasableID, title string, quantity decimal.Decimal, unitPrice *money.Money) (*order.Order, error) {
	candidate, err := order.NewLineItem(purchasableID, title, quantity, unitPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if existing := o.MatchLineItem(candidate); existing != nil {
			existing.Quantity = existing.Quantity.Add(quantity)
			return nil
		}
		return o.AddLineItem(candidate)
	}, nil)
}

// UpdateQuantity sets a line item's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, orderID, itemID uuid.UUID, quantity decimal.Decimal) (*order.Order, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		li, ok := o.FindLineItem(itemID)
		if !ok {
			return fmt.Errorf("line item %s: %w", itemID, ErrNotFound)
		}
		li.Quantity = quantity
		return nil
	}, nil)
}

// RemoveItem deletes a line item from the draft order.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) (*order.Order, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if !o.RemoveLineItem(itemID) {
			return fmt.Errorf("line item %s: %w", itemID, ErrNotFound)
		}
		return nil
	}, nil)
}

// ApplyPromotionCode attaches a coupon code to the order. The code's
// promotion is applied by the recalculation pipeline and must change the
// order, otherwise ErrPromotionNotApplicable and the code is not kept.
func (s *Service) ApplyPromotionCode(ctx context.Context, orderID uuid.UUID, code string) (*order.Order, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: promotion code required", ErrInvalidInput)
	}
	if s.Promotions == nil {
		return nil, errors.New("cart service: promotion store not configured")
	}
	p, err := s.Promotions.GetPromotionByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("promotion %q: %w", code, err)
	}
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		o.CouponCode = code
		return nil
	}, func(o *order.Order) error {
		for _, li := range o.LineItems {
			for _, adj := range li.Adjustments {
				if adj.SourceID == p.ID.String() {
					return nil
				}
			}
		}
		return fmt.Errorf("promotion %q: %w", code, ErrPromotionNotApplicable)
	})
}

// RemovePromotionCode detaches the coupon code; the next pipeline pass drops
// the promotion's adjustments.
func (s *Service) RemovePromotionCode(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		if o.CouponCode == "" {
			return fmt.Errorf("order %s has no coupon: %w", orderID, ErrNotFound)
		}
		o.CouponCode = ""
		return nil
	}, nil)
}

// AddAdjustment attaches a manual order-level adjustment. It lands after the
// recalculation pipeline, so it is part of the saved totals; a later
// mutation recomputes it away unless the adjustment is locked.
func (s *Service) AddAdjustment(ctx context.Context, orderID uuid.UUID, adj order.Adjustment) (*order.Order, error) {
	if !adj.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidInput, adj.Type)
	}
	return s.mutate(ctx, orderID, nil, func(o *order.Order) error {
		return o.AddAdjustment(adj)
	})
}

// ClearAdjustments removes the non-locked adjustments from the order and its
// line items, then reruns the recalculation pipeline.
func (s *Service) ClearAdjustments(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return s.mutate(ctx, orderID, nil, nil)
}

// Recalculate reruns the full pipeline on an order without any other
// mutation. Used by the background recalculation task.
func (s *Service) Recalculate(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return s.mutate(ctx, orderID, nil, nil)
}

// mutate loads the order under lock, applies before, reruns the
// recalculation pipeline, applies after, and saves. The draft-state check
// guards every mutation.
func (s *Service) mutate(ctx context.Context, orderID uuid.UUID, before, after func(*order.Order) error) (*order.Order, error) {
	if s == nil || s.Orders == nil {
		return nil, errors.New("cart service not configured")
	}

	var result *order.Order
	run := func(ctx context.Context) error {
		o, err := s.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.State != order.StateDraft {
			return fmt.Errorf("order %s: %w", orderID, ErrNotDraft)
		}
		if before != nil {
			if err := before(o); err != nil {
				return err
			}
		}
		if err := s.refresh(ctx, o); err != nil {
			return err
		}
		if after != nil {
			if err := after(o); err != nil {
				return err
			}
			if err := o.RecalculateTotalPrice(); err != nil {
				return err
			}
		}
		o.UpdatedAt = s.now().UTC()
		if err := s.Orders.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("save order %s: %w", orderID, err)
		}
		result = o
		return nil
	}

	if s.Locks != nil {
		if err := s.Locks.WithLock(ctx, OrderLockKey(orderID), s.lockTTL(), run); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := run(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// refresh is the recalculation pipeline: drop stale non-locked adjustments,
// reapply tax rates, reapply the automatic promotions and the order's
// coupon, then derive totals. Adjustments are always recomputed from their
// sources; only locked ones persist across passes.
func (s *Service) refresh(ctx context.Context, o *order.Order) error {
	if err := o.ClearAdjustments(); err != nil {
		return err
	}

	if s.Taxes != nil {
		rates, err := s.Taxes.ListTaxRates(ctx)
		if err != nil {
			return fmt.Errorf("list tax rates: %w", err)
		}
		if err := tax.Apply(o, rates, s.now()); err != nil {
			return err
		}
	}

	if s.Promotions != nil {
		promotions, err := s.Promotions.ListAutomaticPromotions(ctx, s.now())
		if err != nil {
			return fmt.Errorf("list promotions: %w", err)
		}
		applied, err := promotion.ApplyAll(promotions, o, s.now())
		if err != nil {
			return err
		}
		obs.ObservePromotionApplications(len(applied))
		if o.CouponCode != "" {
			p, err := s.Promotions.GetPromotionByCode(ctx, o.CouponCode)
			if err != nil {
				return fmt.Errorf("promotion %q: %w", o.CouponCode, err)
			}
			changed, err := promotion.Apply(p, o, s.now())
			if err != nil {
				return err
			}
			if changed {
				obs.ObservePromotionApplications(1)
			}
		}
	}

	return o.RecalculateTotalPrice()
}

// OrderLockKey is the distributed-lock key guarding one order's mutations.
func OrderLockKey(orderID uuid.UUID) string {
	return "lock:order:" + orderID.String()
}
