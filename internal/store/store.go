// Package store persists orders, promotions and tax rates in Postgres. SQL
// is hand-written against pgx; amounts travel as decimal strings so no money
// value ever passes through a float.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arvel-dev/backend-pricing/internal/condition"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the Postgres-backed repository for all pricing entities.
type Store struct {
	Pool *pgxpool.Pool
	// Conditions resolves stored condition configurations back into
	// predicates. Defaults to the builtin registry.
	Conditions *condition.Registry
}

// New returns a Store bound to the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, Conditions: condition.DefaultRegistry()}
}

func (s *Store) registry() *condition.Registry {
	if s.Conditions != nil {
		return s.Conditions
	}
	return condition.DefaultRegistry()
}
