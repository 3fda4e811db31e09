// Package promotion holds promotion definitions and applies their offers to
// orders. A promotion pairs a set of eligibility conditions with one offer
// (fixed amount off, percentage off, or buy X get Y).
package promotion

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// ErrNoOffer indicates a promotion without a configured offer.
var ErrNoOffer = errors.New("promotion has no offer")

// Compatibility controls whether a promotion stacks with others.
type Compatibility string

const (
	// CompatibilityAny stacks without restriction. Application order is
	// whatever order promotions are loaded in; there is no precedence
	// resolution between several applicable promotions.
	CompatibilityAny Compatibility = "any"
	// CompatibilityNone refuses to apply when any other promotion-typed
	// adjustment is already present on the order.
	CompatibilityNone Compatibility = "none"
)

// Promotion couples eligibility conditions with an offer. Conditions are
// OR'd: the first one that matches makes the promotion eligible.
type Promotion struct {
	ID            uuid.UUID
	Name          string
	Code          string
	Compatibility Compatibility
	Conditions    []condition.Condition
	Offer         Offer
	StartsAt      *time.Time
	EndsAt        *time.Time
	Enabled       bool
}

// ActiveAt reports whether the promotion's date window covers the instant.
func (p Promotion) ActiveAt(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// Offer mutates an order's adjustments when the promotion applies. It
// reports whether any adjustment was emitted.
type Offer interface {
	Apply(o *order.Order, p Promotion) (bool, error)
}

// Apply runs the full application sequence for one promotion: date window,
// eligibility conditions, compatibility check, offer, then a clean
// recalculation. It reports whether the offer changed the order.
func Apply(p Promotion, o *order.Order, now time.Time) (bool, error) {
	if p.Offer == nil {
		return false, fmt.Errorf("promotion %s: %w", p.ID, ErrNoOffer)
	}
	if !p.ActiveAt(now) {
		return false, nil
	}

	eligible, err := condition.AnyMatch(p.Conditions, condition.Context{Order: o, Now: now})
	if err != nil {
		return false, fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	if !eligible {
		return false, nil
	}

	if p.Compatibility == CompatibilityNone {
		existing, err := o.CollectAdjustments(order.AdjustmentPromotion)
		if err != nil {
			return false, fmt.Errorf("promotion %s: %w", p.ID, err)
		}
		if len(existing) > 0 {
			return false, nil
		}
	}

	applied, err := p.Offer.Apply(o, p)
	if err != nil {
		return false, fmt.Errorf("promotion %s: %w", p.ID, err)
	}
	if !applied {
		return false, nil
	}
	if err := o.RecalculateTotalPrice(); err != nil {
		return false, fmt.Errorf("promotion %s: recalculate: %w", p.ID, err)
	}
	return true, nil
}

// ApplyAll applies every promotion in load order, returning the ids of the
// promotions that changed the order.
func ApplyAll(promotions []Promotion, o *order.Order, now time.Time) ([]uuid.UUID, error) {
	var applied []uuid.UUID
	for _, p := range promotions {
		changed, err := Apply(p, o, now)
		if err != nil {
			return applied, err
		}
		if changed {
			applied = append(applied, p.ID)
		}
	}
	return applied, nil
}
