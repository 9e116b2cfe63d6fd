package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/clock"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrExpired      = errors.New("exhibition has ended")
)

var tracer = otel.Tracer("exhibit/access")

// Decision is computed per request and never cached: expiry and order state
// both change over time.
type Decision struct {
	HasAccess       bool `json:"hasAccess"`
	IsFree          bool `json:"isFree"`
	IsExpired       bool `json:"isExpired"`
	RequiresPayment bool `json:"requiresPayment"`
	IsOwner         bool `json:"isOwner,omitempty"`
}

// Err translates a denied decision into ErrExpired or ErrAccessDenied.
func (d Decision) Err() error {
	switch {
	case d.HasAccess:
		return nil
	case d.IsExpired:
		return ErrExpired
	default:
		return ErrAccessDenied
	}
}

// PaidOrderFinder returns the paid order userID holds for an exhibition, or
// nil when there is none.
type PaidOrderFinder interface {
	FindPaidOrder(ctx context.Context, exhibitionID, userID string) (*order.Order, error)
}

type Resolver struct {
	orders PaidOrderFinder
	clock  clock.Clock
}

func NewResolver(orders PaidOrderFinder, clk clock.Clock) *Resolver {
	return &Resolver{orders: orders, clock: clk}
}

// Resolve is the buyer-side decision. Ownership is not considered here;
// entry-granting callers use ResolveEntry.
func (r *Resolver) Resolve(ctx context.Context, ex exhibition.Exhibition, userID string) (Decision, error) {
	if ex.ExpiredAt(r.clock.Now()) {
		return Decision{IsExpired: true}, nil
	}
	if ex.Free() {
		return Decision{HasAccess: true, IsFree: true}, nil
	}
	if userID == "" {
		return Decision{RequiresPayment: true}, nil
	}

	ctx, span := tracer.Start(ctx, "access.paid_order_lookup")
	defer span.End()
	span.SetAttributes(attribute.String("exhibition.id", ex.ID))

	paid, err := r.orders.FindPaidOrder(ctx, ex.ID, userID)
	if err != nil {
		span.RecordError(err)
		return Decision{}, fmt.Errorf("lookup paid order: %w", err)
	}
	return Decision{HasAccess: paid != nil, RequiresPayment: true}, nil
}

// ResolveEntry layers the owner override over Resolve. The owner always
// enters, including after the end date.
func (r *Resolver) ResolveEntry(ctx context.Context, ex exhibition.Exhibition, userID string) (Decision, error) {
	if ex.OwnedBy(userID) {
		return Decision{
			HasAccess: true,
			IsFree:    ex.Free(),
			IsExpired: ex.ExpiredAt(r.clock.Now()),
			IsOwner:   true,
		}, nil
	}
	return r.Resolve(ctx, ex, userID)
}
