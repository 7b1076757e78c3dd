// Package postgres implements canvasql.Store on PostgreSQL via pgx. It is
// the persistence adapter behind the core's Store contract; authorization
// scoping (user or session ownership) is enforced here, not in the core.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/canvasql"
)

// PGStore implements canvasql.Store using PostgreSQL via pgx.
type PGStore struct {
	db *pgxpool.Pool
}

var _ canvasql.Store = (*PGStore)(nil)

// New creates a new PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// isNoRows checks if the error is a "no rows" error from pgx.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
