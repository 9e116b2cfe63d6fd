package exhibition

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, id string) (Exhibition, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Exhibition{}, ErrNotFound
	}

	var e Exhibition
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, end_date, is_on_sale, price_minor_units
		FROM exhibitions
		WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.EndDate, &e.IsOnSale, &e.PriceMinorUnits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Exhibition{}, ErrNotFound
		}
		return Exhibition{}, fmt.Errorf("select exhibition: %w", err)
	}
	return e, nil
}

func (s *Store) Content(ctx context.Context, id string) (Content, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Content{}, ErrNotFound
	}

	var c Content
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, end_date, is_on_sale, price_minor_units, description, content
		FROM exhibitions
		WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.EndDate, &c.IsOnSale, &c.PriceMinorUnits, &c.Description, &c.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Content{}, ErrNotFound
		}
		return Content{}, fmt.Errorf("select exhibition content: %w", err)
	}
	return c, nil
}
