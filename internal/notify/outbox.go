package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxNotifier hands notifications to the outbox table; the outbox
// dispatcher publishes them to RabbitMQ with its own retry policy.
type OutboxNotifier struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewOutboxNotifier(pool *pgxpool.Pool) *OutboxNotifier {
	return &OutboxNotifier{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (n *OutboxNotifier) Notify(ctx context.Context, note Notification) error {
	evt := contracts.NotificationRequestedEvent{
		EventID:      uuid.NewString(),
		Kind:         note.Kind,
		RecipientID:  note.RecipientID,
		OrderID:      note.OrderID,
		ExhibitionID: note.ExhibitionID,
		Subject:      note.Subject,
		Message:      note.Message,
		RequestedAt:  n.now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = n.pool.Exec(ctx, `
		INSERT INTO notification_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		evt.EventID, contracts.EventNotificationRequested, payload,
	)
	if err != nil {
		return fmt.Errorf("insert notification outbox: %w", err)
	}
	return nil
}
