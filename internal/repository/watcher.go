package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lorelink/internal/models"
)

// ChangesChannel is the Postgres NOTIFY channel every write transaction reports to.
const ChangesChannel = "lorelink_changes"

// notify queues a change event on the transaction; Postgres delivers it only on commit.
func notify(ctx context.Context, tx *sqlx.Tx, event models.ChangeEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangesChannel, string(payload)); err != nil {
		return storageErr("notify change", err)
	}

	return nil
}

type subscription struct {
	ch     chan models.ChangeEvent
	filter func(models.ChangeEvent) bool
}

// Broadcaster fans change events out to subscribers. Slow subscribers drop
// events rather than stall the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]*subscription), buffer: buffer}
}

func (b *Broadcaster) Subscribe(filter func(models.ChangeEvent) bool) (<-chan models.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan models.ChangeEvent, b.buffer), filter: filter}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

func (b *Broadcaster) Publish(event models.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slog.Warn("change subscriber is full, event dropped", "collection", event.Collection, "id", event.DocumentID)
		}
	}
}

// PgWatcher listens on ChangesChannel and republishes decoded events to its subscribers.
type PgWatcher struct {
	*Broadcaster
	listener *pq.Listener
}

func NewPgWatcher(connString string) (*PgWatcher, error) {
	listener := pq.NewListener(connString, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			slog.Warn("change listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			slog.Info("change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			slog.Warn("change listener connection attempt failed", "error", err)
		}
	})

	if err := listener.Listen(ChangesChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", ChangesChannel, err)
	}

	return &PgWatcher{Broadcaster: NewBroadcaster(0), listener: listener}, nil
}

// Run pumps notifications until ctx is done.
func (w *PgWatcher) Run(ctx context.Context) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.listener.Notify:
			// nil after a reconnect; missed events are not replayed
			if n == nil {
				continue
			}
			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				slog.Warn("undecodable change event", "error", err)
				continue
			}
			w.Publish(event)
		case <-ping.C:
			go w.listener.Ping()
		}
	}
}

func (w *PgWatcher) Close() error {
	return w.listener.Close()
}
