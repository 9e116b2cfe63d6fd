package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox runs fn at most once per event id. A failing fn leaves the event
// unrecorded so a redelivery retries it.
type Inbox interface {
	Once(ctx context.Context, eventID, eventType string, fn func(ctx context.Context) error) error
}

type PgInbox struct {
	pool *pgxpool.Pool
}

func NewPgInbox(pool *pgxpool.Pool) *PgInbox {
	return &PgInbox{pool: pool}
}

func (i *PgInbox) Once(ctx context.Context, eventID, eventType string, fn func(ctx context.Context) error) error {
	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO notification_inbox (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return fmt.Errorf("insert inbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
