package live

import (
	"strings"
	"time"

	"lorelink/internal/models"
)

// Client -> server
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Server -> client
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeChange       = "change"
	TypePong         = "pong"
	TypeError        = "error"
)

const (
	TopicFeed       = "feed"
	topicPostPrefix = "post:"
	topicUserPrefix = "user:"
)

// ClientMessage is what a connected client may send.
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// ServerMessage is the envelope for everything the hub pushes.
type ServerMessage struct {
	Type      string              `json:"type"`
	Topic     string              `json:"topic,omitempty"`
	Change    *models.ChangeEvent `json:"change,omitempty"`
	Error     *ErrorPayload       `json:"error,omitempty"`
	Timestamp int64               `json:"ts"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(typ, topic string) ServerMessage {
	return ServerMessage{Type: typ, Topic: topic, Timestamp: time.Now().UnixMilli()}
}

func PostTopic(postID string) string { return topicPostPrefix + postID }

func UserTopic(userID string) string { return topicUserPrefix + userID }

func validTopic(topic string) bool {
	switch {
	case topic == TopicFeed:
		return true
	case strings.HasPrefix(topic, topicPostPrefix):
		return len(topic) > len(topicPostPrefix)
	case strings.HasPrefix(topic, topicUserPrefix):
		return len(topic) > len(topicUserPrefix)
	}
	return false
}

// Topics lists the topics a change is delivered on, most specific first.
// Feed clients see every post, like and comment change so counters stay live.
func Topics(ev models.ChangeEvent) []string {
	switch ev.Collection {
	case models.CollectionPosts:
		return []string{PostTopic(ev.DocumentID), TopicFeed}
	case models.CollectionLikes, models.CollectionComments:
		if ev.PostID == "" {
			return []string{TopicFeed}
		}
		return []string{PostTopic(ev.PostID), TopicFeed}
	case models.CollectionProfiles:
		return []string{UserTopic(ev.DocumentID), TopicFeed}
	case models.CollectionFollows:
		// counters moved on both profiles; the feed has nothing to redraw
		return []string{UserTopic(ev.TargetUserID), UserTopic(ev.UserID)}
	}
	return nil
}
