package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lorelink/internal/models"
	"lorelink/internal/repository"
	"lorelink/internal/session"
)

type staticTokens map[string]string

func (s staticTokens) ParseAccessToken(token string) (session.Principal, error) {
	id, ok := s[token]
	if !ok {
		return session.Principal{}, errors.New("bad token")
	}
	return session.Principal{UserID: id, Verified: true}, nil
}

type liveEnv struct {
	changes *repository.Broadcaster
	server  *httptest.Server
	cancel  context.CancelFunc
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	changes := repository.NewBroadcaster(16)
	hub := NewHub(changes)
	go hub.Run(ctx)

	tokens := staticTokens{"tok-1": "u1", "tok-2": "u2"}
	server := httptest.NewServer(ServeWS(ctx, hub, tokens, []string{"*"}))

	env := &liveEnv{changes: changes, server: server, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return env
}

func (e *liveEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func receive(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, topic string) {
	t.Helper()
	send(t, conn, ClientMessage{Type: TypeSubscribe, Topic: topic})
	ack := receive(t, conn)
	require.Equal(t, TypeSubscribed, ack.Type)
	require.Equal(t, topic, ack.Topic)
}

func TestServeWS_RequiresToken(t *testing.T) {
	env := newLiveEnv(t)

	for _, path := range []string{"/ws", "/ws?token=forged"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestFeedSubscription(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-1")
	subscribe(t, conn, TopicFeed)

	count := 1
	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpInsert, DocumentID: "p1", PostID: "p1", UserID: "u2"})
	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionLikes, Op: models.OpInsert, DocumentID: "p1:u3", PostID: "p1", Count: &count})

	first := receive(t, conn)
	assert.Equal(t, TypeChange, first.Type)
	assert.Equal(t, TopicFeed, first.Topic)
	require.NotNil(t, first.Change)
	assert.Equal(t, "p1", first.Change.DocumentID)

	second := receive(t, conn)
	require.NotNil(t, second.Change)
	assert.Equal(t, models.CollectionLikes, second.Change.Collection)
	require.NotNil(t, second.Change.Count)
	assert.Equal(t, 1, *second.Change.Count)
}

func TestPostSubscription_FiltersOtherPosts(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-1")
	subscribe(t, conn, PostTopic("p1"))

	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionComments, Op: models.OpInsert, DocumentID: "c1", PostID: "p2"})
	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionComments, Op: models.OpInsert, DocumentID: "c2", PostID: "p1"})

	msg := receive(t, conn)
	assert.Equal(t, PostTopic("p1"), msg.Topic)
	require.NotNil(t, msg.Change)
	assert.Equal(t, "c2", msg.Change.DocumentID)
}

func TestOverlappingTopics_DeliverOnce(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-1")
	subscribe(t, conn, TopicFeed)
	subscribe(t, conn, PostTopic("p1"))

	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpDelete, DocumentID: "p1", PostID: "p1"})
	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpInsert, DocumentID: "p2", PostID: "p2"})

	first := receive(t, conn)
	assert.Equal(t, PostTopic("p1"), first.Topic)
	second := receive(t, conn)
	assert.Equal(t, TopicFeed, second.Topic)
	assert.Equal(t, "p2", second.Change.DocumentID)
}

func TestUnsubscribe(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-1")
	subscribe(t, conn, TopicFeed)
	subscribe(t, conn, UserTopic("u2"))

	send(t, conn, ClientMessage{Type: TypeUnsubscribe, Topic: TopicFeed})
	require.Equal(t, TypeUnsubscribed, receive(t, conn).Type)

	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpInsert, DocumentID: "p9"})
	env.changes.Publish(models.ChangeEvent{Collection: models.CollectionProfiles, Op: models.OpUpdate, DocumentID: "u2", UserID: "u2"})

	msg := receive(t, conn)
	assert.Equal(t, UserTopic("u2"), msg.Topic)
}

func TestClientErrors(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-2")

	send(t, conn, ClientMessage{Type: TypeSubscribe, Topic: "post:"})
	msg := receive(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "INVALID_TOPIC", msg.Error.Code)

	send(t, conn, ClientMessage{Type: "shout"})
	msg = receive(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "UNKNOWN_TYPE", msg.Error.Code)

	send(t, conn, ClientMessage{Type: TypePing})
	assert.Equal(t, TypePong, receive(t, conn).Type)
}

func TestHubShutdown_ClosesClients(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "tok-1")
	subscribe(t, conn, TopicFeed)

	env.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var msg ServerMessage
	assert.Error(t, wsjson.Read(ctx, conn, &msg))
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		ev   models.ChangeEvent
		want []string
	}{
		{"post", models.ChangeEvent{Collection: models.CollectionPosts, DocumentID: "p1"}, []string{"post:p1", "feed"}},
		{"like", models.ChangeEvent{Collection: models.CollectionLikes, DocumentID: "p1:u1", PostID: "p1"}, []string{"post:p1", "feed"}},
		{"comment", models.ChangeEvent{Collection: models.CollectionComments, DocumentID: "c1", PostID: "p2"}, []string{"post:p2", "feed"}},
		{"profile", models.ChangeEvent{Collection: models.CollectionProfiles, DocumentID: "u1"}, []string{"user:u1", "feed"}},
		{"follow", models.ChangeEvent{Collection: models.CollectionFollows, DocumentID: "u1:u2", UserID: "u1", TargetUserID: "u2"}, []string{"user:u2", "user:u1"}},
		{"unknown", models.ChangeEvent{Collection: "accounts", DocumentID: "a1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Topics(tt.ev))
		})
	}
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"*", "app.lorelink.test", "localhost:3000"},
		originPatterns([]string{"*", "https://app.lorelink.test", "http://localhost:3000"}),
	)
}
