package websocket

import (
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/session"

	"github.com/google/uuid"
	gw "github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

type Client struct {
	id       string
	conn     *gw.Conn
	send     chan []byte
	identity session.Identity

	// rooms this connection joined; read loop only
	joined map[string]bool
}

func newClient(conn *gw.Conn, identity session.Identity) *Client {
	return &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		joined:   make(map[string]bool),
	}
}

func (c *Client) ID() string { return c.id }

// writePump owns all writes to the connection. It exits, closing the
// socket, once the hub closes send.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gw.CloseMessage, gw.FormatCloseMessage(gw.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gw.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
