package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notify"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/messaging"
)

type capturePublisher struct {
	mu   sync.Mutex
	fail error
	got  []messaging.Message
}

func (p *capturePublisher) Publish(_ context.Context, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestOutboxRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	notifier := notify.NewOutboxNotifier(pool)
	if err := notifier.Notify(ctx, notify.AccessConfirmed("buyer", "order-1", "ex-1", "Textiles")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	failing := &capturePublisher{fail: errors.New("broker down")}
	dispatcher := messaging.NewOutboxDispatcher(pool, failing, "notification_outbox", time.Second, 10, logger)
	sent, err := dispatcher.DispatchOnce(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("expected nothing sent, got %d err=%v", sent, err)
	}

	var status string
	var attempts int
	if err := pool.QueryRow(ctx, `SELECT status, attempts FROM notification_outbox`).Scan(&status, &attempts); err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Fatalf("expected pending after one failure, got %s/%d", status, attempts)
	}

	// make the row due again
	if _, err := pool.Exec(ctx, `UPDATE notification_outbox SET next_retry = NOW()`); err != nil {
		t.Fatalf("reset retry: %v", err)
	}
	pub := &capturePublisher{}
	dispatcher = messaging.NewOutboxDispatcher(pool, pub, "notification_outbox", time.Second, 10, logger)
	if sent, err := dispatcher.DispatchOnce(ctx); err != nil || sent != 1 {
		t.Fatalf("expected one sent, got %d err=%v", sent, err)
	}
	if sent, err := dispatcher.DispatchOnce(ctx); err != nil || sent != 0 {
		t.Fatalf("expected sent rows to stay sent, got %d err=%v", sent, err)
	}

	msg := pub.got[0]
	if msg.RoutingKey != contracts.EventNotificationRequested {
		t.Fatalf("unexpected routing key %q", msg.RoutingKey)
	}
	var evt contracts.NotificationRequestedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.EventID != msg.ID || evt.RecipientID != "buyer" || evt.Kind != contracts.NotificationAccessConfirmed {
		t.Fatalf("unexpected event %+v", evt)
	}

	inbox := notify.NewPgInbox(pool)
	runs := 0
	for i := 0; i < 2; i++ {
		err := inbox.Once(ctx, evt.EventID, msg.RoutingKey, func(context.Context) error {
			runs++
			return nil
		})
		if err != nil {
			t.Fatalf("inbox once: %v", err)
		}
	}
	if runs != 1 {
		t.Fatalf("expected handler to run once, ran %d", runs)
	}
}

func TestInboxRetriesFailedHandler(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	inbox := notify.NewPgInbox(pool)
	id := "8d0f8a52-7b8e-4c57-9d3c-1f4f9a1b2c3d"

	boom := errors.New("smtp down")
	if err := inbox.Once(ctx, id, contracts.EventNotificationRequested, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}

	ran := false
	if err := inbox.Once(ctx, id, contracts.EventNotificationRequested, func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !ran {
		t.Fatal("expected redelivery to run the handler")
	}
}
