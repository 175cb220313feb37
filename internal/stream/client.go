package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Client is one stream connection. Only the write pump writes to conn.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	owner uuid.UUID
	send  chan []byte
	log   *logger.Logger

	// guarded by hub.mu
	topics map[string]struct{}
}

// clientMessage is a request from the client: subscribe, unsubscribe or
// ping.
type clientMessage struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id"`
	Symbols   []string `json:"symbols"`
}

type subscriptionAck struct {
	Symbols []string `json:"symbols"`
}

func newClient(h *Hub, conn *websocket.Conn, owner uuid.UUID, log *logger.Logger) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		owner:  owner,
		send:   make(chan []byte, h.sendBuffer),
		log:    log,
		topics: make(map[string]struct{}),
	}
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugw("Stream read failed", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.reply(c, Message{Type: TypeError, Error: "invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		added, err := c.hub.subscribe(c, msg.Symbols)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.ack(msg)
		if len(added) > 0 {
			c.hub.sendQuotes(ctx, c, added)
		}

	case "unsubscribe":
		if err := c.hub.unsubscribe(c, msg.Symbols); err != nil {
			c.fail(msg, err)
			return
		}
		c.ack(msg)

	case "ping":
		c.hub.reply(c, Message{Type: TypePong, RequestID: msg.RequestID})

	default:
		c.fail(msg, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (c *Client) ack(msg clientMessage) {
	c.hub.reply(c, Message{
		Type:      TypeAck,
		RequestID: msg.RequestID,
		Data:      subscriptionAck{Symbols: c.hub.subscriptions(c)},
	})
}

func (c *Client) fail(msg clientMessage, err error) {
	c.hub.reply(c, Message{Type: TypeError, RequestID: msg.RequestID, Error: err.Error()})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub dropped this client
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
