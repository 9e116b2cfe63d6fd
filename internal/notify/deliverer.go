package notify

import (
	"context"
	"log/slog"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"
)

// Deliverer sends one notification to its recipient (email, push, chat...).
type Deliverer interface {
	Deliver(ctx context.Context, evt contracts.NotificationRequestedEvent) error
}

// LogDeliverer writes notifications to the log instead of a real channel.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, evt contracts.NotificationRequestedEvent) error {
	d.logger.InfoContext(ctx, "notification delivered",
		"kind", evt.Kind,
		"recipient_id", evt.RecipientID,
		"order_id", evt.OrderID,
		"subject", evt.Subject,
		"message", evt.Message,
	)
	return nil
}
