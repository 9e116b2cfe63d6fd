package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/clock"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"
)

type paidOrders struct {
	// exhibition id -> user id with a paid order
	paid  map[string]string
	err   error
	calls int
}

func (p *paidOrders) FindPaidOrder(_ context.Context, exhibitionID, userID string) (*order.Order, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.paid[exhibitionID] == userID {
		return &order.Order{ExhibitionID: exhibitionID, UserID: userID, Status: order.StatusPaid}, nil
	}
	return nil, nil
}

var now = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

func exhibit(mut func(*exhibition.Exhibition)) exhibition.Exhibition {
	ex := exhibition.Exhibition{
		ID:              "ex-1",
		OwnerID:         "owner",
		Title:           "Ceramics",
		EndDate:         now.Add(24 * time.Hour),
		IsOnSale:        true,
		PriceMinorUnits: 500,
	}
	if mut != nil {
		mut(&ex)
	}
	return ex
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ex        exhibition.Exhibition
		userID    string
		want      Decision
		wantCalls int
	}{
		{
			name:   "expired wins over everything",
			ex:     exhibit(func(e *exhibition.Exhibition) { e.EndDate = now.Add(-time.Second) }),
			userID: "buyer",
			want:   Decision{IsExpired: true},
		},
		{
			name:   "end date equal to now is still open",
			ex:     exhibit(func(e *exhibition.Exhibition) { e.EndDate = now; e.IsOnSale = false }),
			userID: "",
			want:   Decision{HasAccess: true, IsFree: true},
		},
		{
			name: "not on sale is free",
			ex:   exhibit(func(e *exhibition.Exhibition) { e.IsOnSale = false }),
			want: Decision{HasAccess: true, IsFree: true},
		},
		{
			name: "zero price is free",
			ex:   exhibit(func(e *exhibition.Exhibition) { e.PriceMinorUnits = 0 }),
			want: Decision{HasAccess: true, IsFree: true},
		},
		{
			name: "anonymous on paid exhibition",
			ex:   exhibit(nil),
			want: Decision{RequiresPayment: true},
		},
		{
			name:      "buyer with paid order",
			ex:        exhibit(nil),
			userID:    "buyer",
			want:      Decision{HasAccess: true, RequiresPayment: true},
			wantCalls: 1,
		},
		{
			name:      "user without order",
			ex:        exhibit(nil),
			userID:    "stranger",
			want:      Decision{RequiresPayment: true},
			wantCalls: 1,
		},
		{
			name:      "owner is not special here",
			ex:        exhibit(nil),
			userID:    "owner",
			want:      Decision{RequiresPayment: true},
			wantCalls: 1,
		},
		{
			name:   "owner of expired exhibition",
			ex:     exhibit(func(e *exhibition.Exhibition) { e.EndDate = now.Add(-time.Hour) }),
			userID: "owner",
			want:   Decision{IsExpired: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			orders := &paidOrders{paid: map[string]string{"ex-1": "buyer"}}
			r := NewResolver(orders, clock.NewFixed(now))

			got, err := r.Resolve(context.Background(), tt.ex, tt.userID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
			if orders.calls != tt.wantCalls {
				t.Fatalf("expected %d ledger calls, got %d", tt.wantCalls, orders.calls)
			}
		})
	}
}

func TestResolveLedgerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	r := NewResolver(&paidOrders{err: boom}, clock.NewFixed(now))

	_, err := r.Resolve(context.Background(), exhibit(nil), "buyer")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped ledger error, got %v", err)
	}
}

func TestResolveEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ex      exhibition.Exhibition
		userID  string
		wantErr error
		owner   bool
	}{
		{name: "owner of paid exhibition", ex: exhibit(nil), userID: "owner", owner: true},
		{
			name:   "owner after end date",
			ex:     exhibit(func(e *exhibition.Exhibition) { e.EndDate = now.Add(-time.Hour) }),
			userID: "owner",
			owner:  true,
		},
		{name: "buyer", ex: exhibit(nil), userID: "buyer"},
		{name: "stranger", ex: exhibit(nil), userID: "stranger", wantErr: ErrAccessDenied},
		{name: "anonymous", ex: exhibit(nil), userID: "", wantErr: ErrAccessDenied},
		{
			name:    "buyer after end date",
			ex:      exhibit(func(e *exhibition.Exhibition) { e.EndDate = now.Add(-time.Hour) }),
			userID:  "buyer",
			wantErr: ErrExpired,
		},
		{
			name:   "anonymous on free exhibition",
			ex:     exhibit(func(e *exhibition.Exhibition) { e.IsOnSale = false }),
			userID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewResolver(&paidOrders{paid: map[string]string{"ex-1": "buyer"}}, clock.NewFixed(now))
			d, err := r.ResolveEntry(context.Background(), tt.ex, tt.userID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if d.IsOwner != tt.owner {
				t.Fatalf("expected owner=%v, got %+v", tt.owner, d)
			}
			if err := d.Err(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
