package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/access"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/clock"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notify"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("exhibit/payment")

type ExhibitionSource interface {
	Get(ctx context.Context, id string) (exhibition.Exhibition, error)
}

type AccessChecker interface {
	Resolve(ctx context.Context, ex exhibition.Exhibition, userID string) (access.Decision, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

type Options struct {
	Secret        []byte
	Currency      string
	NotifyTimeout time.Duration
}

// Orchestrator is the only writer of order status.
type Orchestrator struct {
	ledger      order.Ledger
	exhibitions ExhibitionSource
	access      AccessChecker
	gateway     Gateway
	notifier    Notifier
	clock       clock.Clock
	logger      *slog.Logger
	opts        Options

	pending sync.WaitGroup
}

func NewOrchestrator(
	ledger order.Ledger,
	exhibitions ExhibitionSource,
	accessChecker AccessChecker,
	gateway Gateway,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Orchestrator{
		ledger:      ledger,
		exhibitions: exhibitions,
		access:      accessChecker,
		gateway:     gateway,
		notifier:    notifier,
		clock:       clk,
		logger:      logger,
		opts:        opts,
	}
}

type PurchaseIntent struct {
	OrderID          string `json:"orderId"`
	GatewayReference string `json:"gatewayReference"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
	IsMock           bool   `json:"isMock"`
}

// CreatePurchaseIntent records a Created order before the reference is
// returned, so a verify call can never observe a reference the ledger lacks.
func (o *Orchestrator) CreatePurchaseIntent(ctx context.Context, exhibitionID, userID string) (PurchaseIntent, error) {
	ctx, span := tracer.Start(ctx, "payment.create_purchase_intent")
	defer span.End()
	span.SetAttributes(attribute.String("exhibition.id", exhibitionID))

	if userID == "" {
		return PurchaseIntent{}, fmt.Errorf("%w: anonymous purchase", ErrInvalidPurchaseState)
	}

	ex, err := o.exhibitions.Get(ctx, exhibitionID)
	if err != nil {
		return PurchaseIntent{}, err
	}
	if !ex.IsOnSale || ex.PriceMinorUnits <= 0 {
		return PurchaseIntent{}, fmt.Errorf("%w: exhibition is not for sale", ErrInvalidPurchaseState)
	}
	if ex.OwnedBy(userID) {
		return PurchaseIntent{}, fmt.Errorf("%w: owner cannot buy own exhibition", ErrInvalidPurchaseState)
	}

	decision, err := o.access.Resolve(ctx, ex, userID)
	if err != nil {
		return PurchaseIntent{}, err
	}
	switch {
	case decision.IsExpired:
		return PurchaseIntent{}, fmt.Errorf("%w: exhibition has ended", ErrInvalidPurchaseState)
	case decision.HasAccess:
		return PurchaseIntent{}, fmt.Errorf("%w: access already purchased", ErrInvalidPurchaseState)
	}

	orderID := uuid.NewString()
	ref, err := o.gateway.CreateReference(ctx, Intent{
		OrderID:          orderID,
		ExhibitionID:     ex.ID,
		UserID:           userID,
		AmountMinorUnits: ex.PriceMinorUnits,
		Currency:         o.opts.Currency,
	})
	if err != nil {
		span.RecordError(err)
		return PurchaseIntent{}, fmt.Errorf("create gateway reference: %w", err)
	}

	ord := order.Order{
		ID:               orderID,
		UserID:           userID,
		ExhibitorID:      ex.OwnerID,
		ExhibitionID:     ex.ID,
		GatewayReference: ref.ID,
		GatewayMode:      ref.Mode,
		AmountMinorUnits: ex.PriceMinorUnits,
		Currency:         o.opts.Currency,
		Status:           order.StatusCreated,
		CreatedAt:        o.clock.Now(),
	}
	if err := o.ledger.Create(ctx, ord); err != nil {
		span.RecordError(err)
		return PurchaseIntent{}, fmt.Errorf("record order: %w", err)
	}

	o.logger.InfoContext(ctx, "purchase intent created",
		"order_id", ord.ID,
		"exhibition_id", ord.ExhibitionID,
		"user_id", userID,
		"gateway_mode", ord.GatewayMode,
	)

	return PurchaseIntent{
		OrderID:          ord.ID,
		GatewayReference: ord.GatewayReference,
		AmountMinorUnits: ord.AmountMinorUnits,
		Currency:         ord.Currency,
		IsMock:           ord.GatewayMode == order.ModeMock,
	}, nil
}

type VerifyInput struct {
	GatewayReference        string
	GatewayPaymentReference string
	Signature               string
}

type VerifyResult struct {
	Order       order.Order
	RedirectTo  string
	AlreadyPaid bool
}

// VerifyPurchase fulfils the order behind a gateway callback. Repeated
// deliveries of an already paid order succeed without side effects.
func (o *Orchestrator) VerifyPurchase(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "payment.verify_purchase")
	defer span.End()

	result, err := o.verify(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return VerifyResult{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.Bool("order.already_paid", result.AlreadyPaid),
	)
	return result, nil
}

func (o *Orchestrator) verify(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	if in.GatewayReference == "" {
		return VerifyResult{}, ErrOrderNotFound
	}

	ord, err := o.ledger.FindByGatewayReference(ctx, in.GatewayReference)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			o.logger.ErrorContext(ctx, "verify for unknown order", "gateway_reference", in.GatewayReference)
			return VerifyResult{}, ErrOrderNotFound
		}
		return VerifyResult{}, err
	}

	switch ord.Status {
	case order.StatusPaid:
		return o.paidResult(ord, true), nil
	case order.StatusFailed:
		// only Created and Paid orders are verifiable
		o.logger.ErrorContext(ctx, "verify for failed order", "order_id", ord.ID, "gateway_reference", ord.GatewayReference)
		return VerifyResult{}, ErrOrderNotFound
	}

	paymentRef := in.GatewayPaymentReference
	switch ord.GatewayMode {
	case order.ModeMock:
		if paymentRef == "" {
			paymentRef = "pay_" + ord.GatewayReference
		}
	default:
		if err := VerifySignature(o.opts.Secret, ord.GatewayReference, paymentRef, in.Signature); err != nil {
			o.logger.WarnContext(ctx, "payment signature mismatch, possible tampering",
				"gateway_reference", ord.GatewayReference,
				"gateway_payment_reference", paymentRef,
			)
			return VerifyResult{}, err
		}
	}

	ex, err := o.exhibitions.Get(ctx, ord.ExhibitionID)
	if err != nil {
		return VerifyResult{}, err
	}
	now := o.clock.Now()
	if ex.ExpiredAt(now) || ex.Free() {
		if _, _, err := o.ledger.MarkFailed(ctx, ord.GatewayReference); err != nil {
			return VerifyResult{}, fmt.Errorf("fail order: %w", err)
		}
		o.logger.WarnContext(ctx, "order failed at verification",
			"order_id", ord.ID,
			"expired", ex.ExpiredAt(now),
			"free", ex.Free(),
		)
		return VerifyResult{}, fmt.Errorf("%w: exhibition no longer sellable", ErrInvalidPurchaseState)
	}

	paid, transitioned, err := o.ledger.MarkPaid(ctx, order.Fulfillment{
		GatewayReference:        ord.GatewayReference,
		GatewayPaymentReference: paymentRef,
		PaidAt:                  now,
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return VerifyResult{}, ErrOrderNotFound
		}
		return VerifyResult{}, fmt.Errorf("fulfil order: %w", err)
	}
	if !transitioned {
		if paid.Paid() {
			return o.paidResult(paid, true), nil
		}
		return VerifyResult{}, fmt.Errorf("%w: order is %s", ErrInvalidPurchaseState, paid.Status)
	}

	o.logger.InfoContext(ctx, "order fulfilled",
		"order_id", paid.ID,
		"exhibition_id", paid.ExhibitionID,
		"user_id", paid.UserID,
		"gateway_mode", paid.GatewayMode,
	)
	o.notifyFulfilled(ctx, paid, ex.Title)

	return o.paidResult(paid, false), nil
}

func (o *Orchestrator) paidResult(ord order.Order, alreadyPaid bool) VerifyResult {
	return VerifyResult{
		Order:       ord,
		RedirectTo:  RoomPath(ord.ExhibitionID),
		AlreadyPaid: alreadyPaid,
	}
}

// notifyFulfilled never blocks or fails the verification: the payment is
// final by the time it runs.
func (o *Orchestrator) notifyFulfilled(ctx context.Context, ord order.Order, title string) {
	notes := []notify.Notification{
		notify.AccessConfirmed(ord.UserID, ord.ID, ord.ExhibitionID, title),
		notify.NewParticipant(ord.ExhibitorID, ord.ID, ord.ExhibitionID, title),
	}
	ctx = context.WithoutCancel(ctx)

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, o.opts.NotifyTimeout)
		defer cancel()
		for _, n := range notes {
			if err := o.notifier.Notify(ctx, n); err != nil {
				o.logger.Error("enqueue notification",
					"kind", n.Kind,
					"order_id", n.OrderID,
					"recipient_id", n.RecipientID,
					"err", err,
				)
			}
		}
	}()
}

func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func RoomPath(exhibitionID string) string {
	return "/exhibitions/" + exhibitionID + "/view"
}
