package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// OmiseGateway issues references by creating an Omise payment source for the
// order amount.
type OmiseGateway struct {
	client     *omise.Client
	sourceType string
}

func NewOmiseGateway(publicKey, secretKey, sourceType string) (*OmiseGateway, error) {
	if publicKey == "" || secretKey == "" {
		return nil, errors.New("omise keys not configured")
	}
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	return &OmiseGateway{client: client, sourceType: sourceType}, nil
}

func (g *OmiseGateway) CreateReference(ctx context.Context, in Intent) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}
	src := &omise.Source{}
	req := &operations.CreateSource{
		Type:     g.sourceType,
		Amount:   in.AmountMinorUnits,
		Currency: in.Currency,
	}
	if err := g.client.Do(src, req); err != nil {
		return Reference{}, fmt.Errorf("create omise source: %w", err)
	}
	if src.ID == "" {
		return Reference{}, errors.New("omise source without id")
	}
	return Reference{ID: src.ID, Mode: order.ModeReal}, nil
}
