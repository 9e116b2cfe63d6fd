package payment

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"

	"github.com/google/uuid"
)

// MockSuffix tags references issued without a live provider.
const MockSuffix = "_mock"

type Intent struct {
	OrderID          string
	ExhibitionID     string
	UserID           string
	AmountMinorUnits int64
	Currency         string
}

type Reference struct {
	ID   string
	Mode order.Mode
}

type Gateway interface {
	CreateReference(ctx context.Context, in Intent) (Reference, error)
}

type MockGateway struct{}

func (MockGateway) CreateReference(_ context.Context, _ Intent) (Reference, error) {
	id := "order_" + strings.ReplaceAll(uuid.NewString(), "-", "") + MockSuffix
	return Reference{ID: id, Mode: order.ModeMock}, nil
}

type FallbackGateway struct {
	real   Gateway
	mock   Gateway
	logger *slog.Logger
}

// NewFallbackGateway accepts a nil real gateway, meaning mock-only.
func NewFallbackGateway(real Gateway, logger *slog.Logger) *FallbackGateway {
	return &FallbackGateway{real: real, mock: MockGateway{}, logger: logger}
}

func (g *FallbackGateway) CreateReference(ctx context.Context, in Intent) (Reference, error) {
	if g.real != nil {
		ref, err := g.real.CreateReference(ctx, in)
		if err == nil {
			return ref, nil
		}
		g.logger.Warn("payment gateway unavailable, issuing mock reference", "order_id", in.OrderID, "err", err)
	}
	return g.mock.CreateReference(ctx, in)
}
