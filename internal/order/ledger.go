package order

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("order not found")

// Fulfillment carries the fields written by the Created->Paid transition.
type Fulfillment struct {
	GatewayReference        string
	GatewayPaymentReference string
	PaidAt                  time.Time
}

// Ledger is the persistent record of purchase intents. MarkPaid and
// MarkFailed are conditional on the row still being Created; the boolean
// result reports whether this call performed the transition.
type Ledger interface {
	Create(ctx context.Context, o Order) error
	FindByGatewayReference(ctx context.Context, ref string) (Order, error)
	FindPaidOrder(ctx context.Context, exhibitionID, userID string) (*Order, error)
	MarkPaid(ctx context.Context, f Fulfillment) (Order, bool, error)
	MarkFailed(ctx context.Context, ref string) (Order, bool, error)
}
