package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorelink/internal/models"
)

func TestBroadcaster_FiltersAndReleases(t *testing.T) {
	b := NewBroadcaster(4)

	postEvents, cancelPosts := b.Subscribe(func(ev models.ChangeEvent) bool {
		return ev.PostID == "p1"
	})
	all, cancelAll := b.Subscribe(nil)
	defer cancelAll()

	b.Publish(models.ChangeEvent{Collection: models.CollectionLikes, PostID: "p1"})
	b.Publish(models.ChangeEvent{Collection: models.CollectionLikes, PostID: "p2"})

	select {
	case ev := <-postEvents:
		assert.Equal(t, "p1", ev.PostID)
	case <-time.After(time.Second):
		t.Fatal("expected an event for p1")
	}
	assert.Len(t, postEvents, 0)
	assert.Len(t, all, 2)

	cancelPosts()
	cancelPosts()

	_, open := <-postEvents
	assert.False(t, open)

	// publishing after a subscriber left must not panic
	b.Publish(models.ChangeEvent{PostID: "p1"})
	assert.Len(t, all, 3)
}

func TestBroadcaster_DropsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe(nil)
	defer cancel()

	b.Publish(models.ChangeEvent{DocumentID: "1"})
	b.Publish(models.ChangeEvent{DocumentID: "2"})

	require.Len(t, ch, 1)
	assert.Equal(t, "1", (<-ch).DocumentID)
}

func TestStorageErr_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bad connection", driver.ErrBadConn, models.ErrStorageUnavailable},
		{"connection failure sqlstate", &pq.Error{Code: "08006"}, models.ErrStorageUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, models.ErrStorageUnavailable},
		{"unique violation", &pq.Error{Code: "23505", Constraint: "x"}, models.ErrConflict},
		{"malformed uuid", &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}, models.ErrNotFound},
		{"cancelled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageErr("op", fmt.Errorf("wrapped: %w", tt.err))
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}

	t.Run("other errors stay unclassified", func(t *testing.T) {
		err := storageErr("op", errors.New("syntax error"))
		assert.False(t, models.Retryable(err))
		assert.Contains(t, err.Error(), "op: syntax error")
	})
}
