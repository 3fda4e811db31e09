// Package condition implements the pure rule predicates used by promotions
// and taxes to decide applicability. Conditions are side-effect free and are
// resolved from a closed registration table rather than discovered at
// runtime.
package condition

import (
	"errors"
	"fmt"
	"time"

	"github.com/arvel-dev/backend-pricing/internal/order"
)

// ErrInvalidOperator indicates an unrecognized comparison operator in a
// price or quantity condition. This is a configuration error and fatal.
var ErrInvalidOperator = errors.New("invalid comparison operator")

// ErrUnknownCondition is returned when a condition id has no registered
// factory.
var ErrUnknownCondition = errors.New("unknown condition")

// ErrInvalidConfiguration is returned when a condition's configuration is
// missing or malformed.
var ErrInvalidConfiguration = errors.New("invalid condition configuration")

// Context carries the entities a condition evaluates against. Order is
// always set; LineItem only for item-scoped evaluation.
type Context struct {
	Order    *order.Order
	LineItem *order.LineItem
	Now      time.Time
}

// Condition is a pure predicate over an evaluation context.
type Condition interface {
	ID() string
	Evaluate(ctx Context) (bool, error)
}

// Factory builds a condition from its stored configuration.
type Factory func(config map[string]any) (Condition, error)

// Registry maps condition ids to factories. The set of conditions is closed
// at wiring time; there is no runtime plugin discovery.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given id.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" || factory == nil {
		return fmt.Errorf("%w: id and factory are required", ErrInvalidConfiguration)
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("condition %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// New builds a condition by id from its configuration.
func (r *Registry) New(id string, config map[string]any) (Condition, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, id)
	}
	cond, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", id, err)
	}
	return cond, nil
}

// AnyMatch evaluates conditions as an OR: the first condition that matches
// makes the set eligible. An empty set always matches. Evaluation errors
// (such as an invalid operator) propagate; a false result does not.
//
// TODO: support configurable AND/OR grouping across a promotion's conditions.
func AnyMatch(conditions []Condition, ctx Context) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}
	for _, cond := range conditions {
		ok, err := cond.Evaluate(ctx)
		if err != nil {
			return false, fmt.Errorf("evaluate %s: %w", cond.ID(), err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// compareResult maps a three-way comparison onto the configured operator.
func compareResult(operator string, cmp int) (bool, error) {
	switch operator {
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "==":
		return cmp == 0, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidOperator, operator)
	}
}
