package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"

	"github.com/rabbitmq/amqp091-go"
)

var ErrMalformedEvent = errors.New("malformed notification event")

// Worker consumes notification events and delivers each exactly once per
// event id.
type Worker struct {
	inbox     Inbox
	deliverer Deliverer
	logger    *slog.Logger
}

func NewWorker(inbox Inbox, deliverer Deliverer, logger *slog.Logger) *Worker {
	return &Worker{inbox: inbox, deliverer: deliverer, logger: logger}
}

func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var evt contracts.NotificationRequestedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.EventID == "" || evt.RecipientID == "" {
		return fmt.Errorf("%w: missing event or recipient id", ErrMalformedEvent)
	}

	return w.inbox.Once(ctx, evt.EventID, contracts.EventNotificationRequested, func(ctx context.Context) error {
		return w.deliverer.Deliver(ctx, evt)
	})
}

// HandleDelivery acks delivered and duplicate events. Malformed events are
// dead-lettered at once; a failed delivery is requeued once and
// dead-lettered if the redelivery fails too.
func (w *Worker) HandleDelivery(ctx context.Context, msg amqp091.Delivery) {
	err := w.Handle(ctx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, ErrMalformedEvent):
		w.logger.Error("invalid notification event", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, false)
	case msg.Redelivered:
		w.logger.Error("notification dead-lettered after redelivery", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, false)
	default:
		w.logger.Warn("deliver notification, requeueing", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, true)
	}
}
