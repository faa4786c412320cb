// Package live pushes committed change events to websocket clients. Clients
// subscribe to topics ("feed", "post:<id>", "user:<id>") and receive one
// message per matching change.
package live

import (
	"context"
	"encoding/json"
	"log/slog"

	"lorelink/internal/models"
	"lorelink/internal/repository"
)

type Hub struct {
	watcher repository.Watcher

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
}

func NewHub(watcher repository.Watcher) *Hub {
	return &Hub{
		watcher:    watcher,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run owns the client set until ctx is done. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.watcher.Subscribe(nil)
	defer cancel()
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			slog.Info("live hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			slog.Debug("live client connected", "user_id", c.userID, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				slog.Debug("live client disconnected", "user_id", c.userID, "clients", len(h.clients))
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.dispatch(ev)
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	c.close()
}

func (h *Hub) dispatch(ev models.ChangeEvent) {
	topics := Topics(ev)
	if len(topics) == 0 {
		return
	}

	encoded := make(map[string][]byte, len(topics))
	for c := range h.clients {
		topic, ok := c.firstSubscribed(topics)
		if !ok {
			continue
		}

		data, ok := encoded[topic]
		if !ok {
			msg := newMessage(TypeChange, topic)
			msg.Change = &ev
			var err error
			if data, err = json.Marshal(msg); err != nil {
				slog.Warn("encode change message", "error", err)
				return
			}
			encoded[topic] = data
		}

		select {
		case c.send <- data:
		default:
			slog.Warn("live client too slow, disconnecting", "user_id", c.userID)
			h.drop(c)
		}
	}
}
