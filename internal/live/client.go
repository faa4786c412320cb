package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
	maxTopics      = 64
)

// Client is a single websocket connection. The hub writes to send; the
// client's own replies go through the same channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu     sync.RWMutex
	topics map[string]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		topics: make(map[string]struct{}),
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) subscribe(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; !ok && len(c.topics) >= maxTopics {
		return false
	}
	c.topics[topic] = struct{}{}
	return true
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

func (c *Client) firstSubscribed(topics []string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range topics {
		if _, ok := c.topics[t]; ok {
			return t, true
		}
	}
	return "", false
}

// ReadPump handles client messages until the connection drops. It always
// unregisters the client on the way out.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.close()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			// wsjson closes the connection itself on undecodable frames
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("live client closed", "user_id", c.userID)
			} else {
				slog.Debug("live read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		c.handle(msg)
	}
}

// WritePump drains send and keeps the connection alive with pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("live write failed", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				slog.Debug("live ping failed", "user_id", c.userID, "error", err)
				return
			}

		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case TypeSubscribe:
		if !validTopic(msg.Topic) {
			c.sendError("INVALID_TOPIC", "unknown topic: "+msg.Topic)
			return
		}
		if !c.subscribe(msg.Topic) {
			c.sendError("TOO_MANY_TOPICS", "subscription limit reached")
			return
		}
		c.reply(newMessage(TypeSubscribed, msg.Topic))

	case TypeUnsubscribe:
		c.unsubscribe(msg.Topic)
		c.reply(newMessage(TypeUnsubscribed, msg.Topic))

	case TypePing:
		c.reply(newMessage(TypePong, ""))

	default:
		c.sendError("UNKNOWN_TYPE", "unknown message type: "+msg.Type)
	}
}

func (c *Client) sendError(code, message string) {
	msg := newMessage(TypeError, "")
	msg.Error = &ErrorPayload{Code: code, Message: message}
	c.reply(msg)
}

func (c *Client) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
