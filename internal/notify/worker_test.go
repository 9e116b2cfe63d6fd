package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"

	"github.com/rabbitmq/amqp091-go"
)

type memoryInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryInbox() *memoryInbox {
	return &memoryInbox{seen: make(map[string]bool)}
}

// Once mirrors PgInbox: the id is recorded only when fn succeeds.
func (i *memoryInbox) Once(ctx context.Context, eventID, _ string, fn func(ctx context.Context) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen[eventID] {
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	i.seen[eventID] = true
	return nil
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []contracts.NotificationRequestedEvent
	failNext  int
}

func (d *recordingDeliverer) Deliver(_ context.Context, evt contracts.NotificationRequestedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return errors.New("smtp unavailable")
	}
	d.delivered = append(d.delivered, evt)
	return nil
}

func event(t *testing.T, id string) []byte {
	t.Helper()

	body, err := json.Marshal(contracts.NotificationRequestedEvent{
		EventID:     id,
		Kind:        contracts.NotificationAccessConfirmed,
		RecipientID: "buyer",
		OrderID:     "o-1",
		Subject:     "Access confirmed",
		RequestedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func newTestWorker(d Deliverer) *Worker {
	return NewWorker(newMemoryInbox(), d, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWorkerDeliversOncePerEvent(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	w := newTestWorker(d)

	for i := 0; i < 3; i++ {
		if err := w.Handle(context.Background(), event(t, "evt-1")); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if err := w.Handle(context.Background(), event(t, "evt-2")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(d.delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(d.delivered))
	}
	if d.delivered[0].RecipientID != "buyer" || d.delivered[0].Kind != contracts.NotificationAccessConfirmed {
		t.Fatalf("unexpected delivery %+v", d.delivered[0])
	}
}

func TestWorkerRetriesAfterDeliveryFailure(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{failNext: 1}
	w := newTestWorker(d)

	err := w.Handle(context.Background(), event(t, "evt-1"))
	if err == nil || errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if err := w.Handle(context.Background(), event(t, "evt-1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(d.delivered) != 1 {
		t.Fatalf("expected delivery on redelivery, got %d", len(d.delivered))
	}
}

func TestWorkerRejectsMalformedEvents(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":          `{`,
		"missing id":        `{"recipient_id":"buyer"}`,
		"missing recipient": `{"event_id":"evt-1"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d := &recordingDeliverer{}
			err := newTestWorker(d).Handle(context.Background(), []byte(body))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
			if len(d.delivered) != 0 {
				t.Fatalf("expected nothing delivered")
			}
		})
	}
}

type ackCall struct {
	ack     bool
	requeue bool
}

type recordingAcker struct {
	calls []ackCall
}

func (a *recordingAcker) Ack(uint64, bool) error {
	a.calls = append(a.calls, ackCall{ack: true})
	return nil
}

func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.calls = append(a.calls, ackCall{requeue: requeue})
	return nil
}

func (a *recordingAcker) Reject(_ uint64, requeue bool) error {
	a.calls = append(a.calls, ackCall{requeue: requeue})
	return nil
}

func TestHandleDeliverySettlement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		failNext    int
		redelivered bool
		want        ackCall
	}{
		{name: "delivered", want: ackCall{ack: true}},
		{name: "malformed is dead-lettered", body: `{`, want: ackCall{}},
		{name: "first failure is requeued", failNext: 1, want: ackCall{requeue: true}},
		{name: "failed redelivery is dead-lettered", failNext: 1, redelivered: true, want: ackCall{}},
		{name: "successful redelivery is acked", redelivered: true, want: ackCall{ack: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := event(t, "evt-"+tt.name)
			if tt.body != "" {
				body = []byte(tt.body)
			}
			acker := &recordingAcker{}
			w := newTestWorker(&recordingDeliverer{failNext: tt.failNext})
			w.HandleDelivery(context.Background(), amqp091.Delivery{
				Acknowledger: acker,
				DeliveryTag:  1,
				Redelivered:  tt.redelivered,
				Body:         body,
			})

			if len(acker.calls) != 1 {
				t.Fatalf("expected exactly one settlement, got %+v", acker.calls)
			}
			if acker.calls[0] != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, acker.calls[0])
			}
		})
	}
}

func TestPersistentFailureStopsAfterOneRedelivery(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{failNext: 1000}
	w := newTestWorker(d)
	acker := &recordingAcker{}
	msg := amqp091.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: event(t, "evt-stuck")}

	// simulate the broker: requeued messages come back flagged as redelivered
	for i := 0; i < 10; i++ {
		w.HandleDelivery(context.Background(), msg)
		last := acker.calls[len(acker.calls)-1]
		if last.ack || !last.requeue {
			break
		}
		msg.Redelivered = true
	}

	if len(acker.calls) != 2 {
		t.Fatalf("expected one requeue then dead-letter, got %+v", acker.calls)
	}
	if d.failNext != 998 {
		t.Fatalf("expected two delivery attempts, got %d", 1000-d.failNext)
	}
}

func TestNotificationConstructors(t *testing.T) {
	t.Parallel()

	buyer := AccessConfirmed("buyer", "o-1", "ex-1", "Sculpture")
	if buyer.Kind != contracts.NotificationAccessConfirmed || buyer.RecipientID != "buyer" {
		t.Fatalf("unexpected buyer notification %+v", buyer)
	}
	seller := NewParticipant("owner", "o-1", "ex-1", "Sculpture")
	if seller.Kind != contracts.NotificationNewParticipant || seller.RecipientID != "owner" {
		t.Fatalf("unexpected exhibitor notification %+v", seller)
	}
	if buyer.OrderID != seller.OrderID || buyer.ExhibitionID != seller.ExhibitionID {
		t.Fatalf("expected both notifications to reference the same order")
	}
}
