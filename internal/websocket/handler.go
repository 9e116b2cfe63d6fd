package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/access"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/presence"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/session"

	gw "github.com/gorilla/websocket"
)

const MaxChatRunes = 1000

type ExhibitionSource interface {
	Get(ctx context.Context, id string) (exhibition.Exhibition, error)
}

type EntryResolver interface {
	ResolveEntry(ctx context.Context, ex exhibition.Exhibition, userID string) (access.Decision, error)
}

type Authenticator interface {
	Resolve(r *http.Request) (session.Identity, error)
}

type Handler struct {
	hub         *Hub
	registry    *presence.Registry
	exhibitions ExhibitionSource
	access      EntryResolver
	auth        Authenticator
	logger      *slog.Logger
	upgrader    gw.Upgrader
}

func NewHandler(
	hub *Hub,
	registry *presence.Registry,
	exhibitions ExhibitionSource,
	resolver EntryResolver,
	auth Authenticator,
	allowedOrigins []string,
	logger *slog.Logger,
) *Handler {
	h := &Handler{
		hub:         hub,
		registry:    registry,
		exhibitions: exhibitions,
		access:      resolver,
		auth:        auth,
		logger:      logger,
	}
	h.upgrader = gw.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Resolve(r)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", identity.UserID, "err", err)
		return
	}

	client := newClient(conn, identity)
	ctx := r.Context()
	if err := h.hub.Attach(ctx, client); err != nil {
		_ = conn.Close()
		return
	}
	go client.writePump()

	h.logger.Info("websocket connected", "connection_id", client.id, "user_id", identity.UserID)
	defer h.disconnect(ctx, client)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if gw.IsUnexpectedCloseError(err, gw.CloseGoingAway, gw.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "connection_id", client.id, "err", err)
			}
			return
		}
		if !h.dispatch(ctx, client, raw) {
			return
		}
	}
}

// dispatch reports whether the connection stays open.
func (h *Handler) dispatch(ctx context.Context, c *Client, raw []byte) bool {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.reject(ctx, c, CodeBadRequest, "malformed message")
		return true
	}

	switch in.Type {
	case TypeJoinExhibit:
		return h.join(ctx, c, in.ExhibitionID)
	case TypeSendMessage:
		h.chat(ctx, c, in.ExhibitionID, in.Text)
		return true
	default:
		h.reject(ctx, c, CodeUnknownType, "unknown message type")
		return true
	}
}

func (h *Handler) join(ctx context.Context, c *Client, exhibitionID string) bool {
	if exhibitionID == "" {
		h.reject(ctx, c, CodeBadRequest, "exhibitionId is required")
		return true
	}

	ex, err := h.exhibitions.Get(ctx, exhibitionID)
	if err != nil {
		if errors.Is(err, exhibition.ErrNotFound) {
			h.reject(ctx, c, CodeExhibitionNotFound, "exhibition not found")
			return false
		}
		h.logger.Error("load exhibition for join", "exhibition_id", exhibitionID, "err", err)
		h.reject(ctx, c, CodeInternal, "internal error")
		return false
	}

	decision, err := h.access.ResolveEntry(ctx, ex, c.identity.UserID)
	if err != nil {
		h.logger.Error("resolve room entry", "exhibition_id", ex.ID, "user_id", c.identity.UserID, "err", err)
		h.reject(ctx, c, CodeInternal, "internal error")
		return false
	}
	if err := decision.Err(); err != nil {
		code := CodeAccessDenied
		if errors.Is(err, access.ErrExpired) {
			code = CodeExpired
		}
		h.logger.Info("room entry denied", "exhibition_id", ex.ID, "user_id", c.identity.UserID, "code", code)
		h.reject(ctx, c, code, err.Error())
		return false
	}

	h.registry.Join(ex.ID, c.id, c.identity.UserID, c.identity.DisplayName)
	if err := h.hub.Subscribe(ctx, ex.ID, c); err != nil {
		return false
	}
	c.joined[ex.ID] = true

	if err := h.hub.BroadcastPresence(ctx, ex.ID); err != nil {
		return false
	}
	return true
}

func (h *Handler) chat(ctx context.Context, c *Client, exhibitionID, text string) {
	if !c.joined[exhibitionID] {
		h.reject(ctx, c, CodeNotJoined, "join the exhibition before chatting")
		return
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		h.reject(ctx, c, CodeEmptyMessage, "message is empty")
		return
	case utf8.RuneCountInString(text) > MaxChatRunes:
		h.reject(ctx, c, CodeMessageTooLong, "message is too long")
		return
	}

	from := Sender{UserID: c.identity.UserID, DisplayName: c.identity.DisplayName}
	if _, err := h.hub.BroadcastChat(ctx, exhibitionID, from, text); err != nil {
		h.logger.Warn("broadcast chat", "exhibition_id", exhibitionID, "err", err)
	}
}

func (h *Handler) reject(ctx context.Context, c *Client, code, message string) {
	_ = h.hub.Send(ctx, c, ErrorEvent{Type: TypeError, Code: code, Message: message})
}

// disconnect runs after the request context is gone, so it detaches on a
// context of its own.
func (h *Handler) disconnect(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeWait)
	defer cancel()

	changed := h.registry.Leave(c.id)
	_ = h.hub.Detach(ctx, c)
	for _, roomID := range changed {
		if err := h.hub.BroadcastPresence(ctx, roomID); err != nil {
			h.logger.Warn("broadcast presence after leave", "exhibition_id", roomID, "err", err)
		}
	}
	h.logger.Info("websocket disconnected", "connection_id", c.id, "user_id", c.identity.UserID)
}
