package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDuplicateReference = errors.New("gateway reference already recorded")

const orderColumns = `id, user_id, exhibitor_id, exhibition_id, gateway_reference,
	gateway_payment_reference, gateway_mode, amount_minor_units, currency,
	status, created_at, paid_at`

// Ledger is the Postgres order.Ledger. Status transitions are single
// conditional UPDATEs so concurrent verifications cannot both fulfil.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Create(ctx context.Context, o order.Order) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, exhibitor_id, exhibition_id, gateway_reference,
			gateway_mode, amount_minor_units, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		o.ID, o.UserID, o.ExhibitorID, o.ExhibitionID, o.GatewayReference,
		o.GatewayMode, o.AmountMinorUnits, o.Currency, o.Status, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (l *Ledger) FindByGatewayReference(ctx context.Context, ref string) (order.Order, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE gateway_reference = $1`, ref)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("get order by reference: %w", err)
	}
	return o, nil
}

func (l *Ledger) FindPaidOrder(ctx context.Context, exhibitionID, userID string) (*order.Order, error) {
	if _, err := uuid.Parse(exhibitionID); err != nil {
		return nil, nil
	}
	row := l.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE exhibition_id = $1 AND user_id = $2 AND status = $3
		ORDER BY paid_at
		LIMIT 1`,
		exhibitionID, userID, order.StatusPaid,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find paid order: %w", err)
	}
	return &o, nil
}

func (l *Ledger) MarkPaid(ctx context.Context, f order.Fulfillment) (order.Order, bool, error) {
	row := l.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, gateway_payment_reference = $3, paid_at = $4, updated_at = NOW()
		WHERE gateway_reference = $1 AND status = $5
		RETURNING `+orderColumns,
		f.GatewayReference, order.StatusPaid, f.GatewayPaymentReference, f.PaidAt, order.StatusCreated,
	)
	return l.transitioned(ctx, f.GatewayReference, row, "mark order paid")
}

func (l *Ledger) MarkFailed(ctx context.Context, ref string) (order.Order, bool, error) {
	row := l.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE gateway_reference = $1 AND status = $3
		RETURNING `+orderColumns,
		ref, order.StatusFailed, order.StatusCreated,
	)
	return l.transitioned(ctx, ref, row, "mark order failed")
}

// transitioned scans the RETURNING row of a conditional update. When no row
// matched, the current state is read back so the caller can tell a lost
// race from a missing order.
func (l *Ledger) transitioned(ctx context.Context, ref string, row pgx.Row, op string) (order.Order, bool, error) {
	o, err := scanOrder(row)
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, false, fmt.Errorf("%s: %w", op, err)
	}

	current, err := l.FindByGatewayReference(ctx, ref)
	if err != nil {
		return order.Order{}, false, err
	}
	return current, false, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.ExhibitorID, &o.ExhibitionID, &o.GatewayReference,
		&o.GatewayPaymentReference, &o.GatewayMode, &o.AmountMinorUnits, &o.Currency,
		&o.Status, &o.CreatedAt, &o.PaidAt,
	)
	return o, err
}
