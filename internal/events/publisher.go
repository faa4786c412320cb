package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	PostCreated                  = "post.created"
	PostDeleted                  = "post.deleted"
	PostLikeToggled              = "post.like_toggled"
	CommentAdded                 = "comment.added"
	ProfileUpdated               = "profile.updated"
	AccountVerificationRequested = "account.verification_requested"
	AccountDeleted               = "account.deleted"
	UserFollowToggled            = "user.follow_toggled"
)

// publishTimeout bounds a single delivery attempt.
const publishTimeout = 5 * time.Second

// All lists every event type the service emits.
var All = []string{
	PostCreated, PostDeleted, PostLikeToggled, CommentAdded,
	ProfileUpdated, AccountVerificationRequested, AccountDeleted, UserFollowToggled,
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Emit publishes data after the write it describes has committed. Delivery
// failures are logged, never returned: the domain operation already succeeded.
// The request's cancellation does not reach the broker; publishTimeout does.
func Emit(ctx context.Context, p Publisher, eventType, partitionKey string, data any) {
	if p == nil {
		return
	}

	payload, err := json.Marshal(Envelope{Type: eventType, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		slog.Error("encode event", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, eventType, payload, partitionKey); err != nil {
		slog.Warn("publish event", "type", eventType, "key", partitionKey, "error", err)
	}
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte, string) error { return nil }

func (NoopPublisher) Close() error { return nil }
