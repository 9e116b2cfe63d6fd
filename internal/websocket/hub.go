package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/clock"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/presence"

	"github.com/bwmarrin/snowflake"
)

var ErrHubClosed = errors.New("hub closed")

type Sender struct {
	UserID      string
	DisplayName string
}

// All subscription state is owned by the Run goroutine.
type Hub struct {
	registry *presence.Registry
	ids      *snowflake.Node
	clock    clock.Clock
	logger   *slog.Logger

	ops  chan func()
	done chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(registry *presence.Registry, ids *snowflake.Node, clk clock.Clock, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		ids:      ids,
		clock:    clk,
		logger:   logger,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) do(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		op()
	}
	select {
	case h.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
	<-finished
	return nil
}

func (h *Hub) Attach(ctx context.Context, c *Client) error {
	return h.do(ctx, func() {
		h.clients[c] = struct{}{}
	})
}

// Detach closes c's send channel; queued events are still flushed.
func (h *Hub) Detach(ctx context.Context, c *Client) error {
	return h.do(ctx, func() {
		h.drop(c)
	})
}

func (h *Hub) Subscribe(ctx context.Context, roomID string, c *Client) error {
	return h.do(ctx, func() {
		if _, ok := h.clients[c]; !ok {
			return
		}
		set, ok := h.rooms[roomID]
		if !ok {
			set = make(map[*Client]struct{})
			h.rooms[roomID] = set
		}
		set[c] = struct{}{}
	})
}

func (h *Hub) BroadcastPresence(ctx context.Context, roomID string) error {
	return h.do(ctx, func() {
		members := h.registry.Snapshot(roomID)
		if members == nil {
			members = []presence.Entry{}
		}
		h.fanOut(roomID, PresenceUpdate{
			Type:         TypePresenceUpdate,
			ExhibitionID: roomID,
			Members:      members,
		})
	})
}

// BroadcastChat includes the sender.
func (h *Hub) BroadcastChat(ctx context.Context, roomID string, from Sender, text string) (ChatMessage, error) {
	var msg ChatMessage
	err := h.do(ctx, func() {
		msg = ChatMessage{
			ID:           h.ids.Generate().String(),
			ExhibitionID: roomID,
			SenderID:     from.UserID,
			Sender:       from.DisplayName,
			Text:         text,
			Timestamp:    h.clock.Now(),
		}
		h.fanOut(roomID, ReceiveMessage{Type: TypeReceiveMessage, Message: msg})
	})
	return msg, err
}

func (h *Hub) Send(ctx context.Context, c *Client, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.do(ctx, func() {
		if _, ok := h.clients[c]; ok {
			h.deliver(c, payload)
		}
	})
}

func (h *Hub) fanOut(roomID string, event any) {
	set, ok := h.rooms[roomID]
	if !ok {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal room event", "room_id", roomID, "err", err)
		return
	}
	for c := range set {
		h.deliver(c, payload)
	}
}

// a full buffer drops the client
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("dropping slow websocket client", "connection_id", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for roomID, set := range h.rooms {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
	close(c.send)
}
