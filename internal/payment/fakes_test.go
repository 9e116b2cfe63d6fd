package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notify"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/order"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryLedger struct {
	mu          sync.Mutex
	byRef       map[string]order.Order
	transitions int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{byRef: make(map[string]order.Order)}
}

func (l *memoryLedger) Create(_ context.Context, o order.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byRef[o.GatewayReference]; ok {
		return errors.New("duplicate gateway reference")
	}
	l.byRef[o.GatewayReference] = o
	return nil
}

func (l *memoryLedger) FindByGatewayReference(_ context.Context, ref string) (order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byRef[ref]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (l *memoryLedger) FindPaidOrder(_ context.Context, exhibitionID, userID string) (*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.byRef {
		if o.ExhibitionID == exhibitionID && o.UserID == userID && o.Paid() {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (l *memoryLedger) MarkPaid(_ context.Context, f order.Fulfillment) (order.Order, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byRef[f.GatewayReference]
	if !ok {
		return order.Order{}, false, order.ErrNotFound
	}
	if o.Status != order.StatusCreated {
		return o, false, nil
	}
	payRef := f.GatewayPaymentReference
	paidAt := f.PaidAt
	o.Status = order.StatusPaid
	o.GatewayPaymentReference = &payRef
	o.PaidAt = &paidAt
	l.byRef[f.GatewayReference] = o
	l.transitions++
	return o, true, nil
}

func (l *memoryLedger) MarkFailed(_ context.Context, ref string) (order.Order, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byRef[ref]
	if !ok {
		return order.Order{}, false, order.ErrNotFound
	}
	if o.Status != order.StatusCreated {
		return o, false, nil
	}
	o.Status = order.StatusFailed
	l.byRef[ref] = o
	return o, true, nil
}

func (l *memoryLedger) only() order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.byRef {
		return o
	}
	return order.Order{}
}

type exhibitionMap struct {
	mu    sync.Mutex
	items map[string]exhibition.Exhibition
}

func newExhibitionMap(items ...exhibition.Exhibition) *exhibitionMap {
	m := &exhibitionMap{items: make(map[string]exhibition.Exhibition)}
	for _, ex := range items {
		m.items[ex.ID] = ex
	}
	return m
}

func (m *exhibitionMap) Get(_ context.Context, id string) (exhibition.Exhibition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.items[id]
	if !ok {
		return exhibition.Exhibition{}, exhibition.ErrNotFound
	}
	return ex, nil
}

func (m *exhibitionMap) put(ex exhibition.Exhibition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ex.ID] = ex
}

type stubGateway struct {
	ref Reference
	err error
}

func (g stubGateway) CreateReference(context.Context, Intent) (Reference, error) {
	return g.ref, g.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func (n *recordingNotifier) sent() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.notes...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
