package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository/memory"
)

type testEnv struct {
	svc    *Service
	store  *memory.Store
	events *recordingPublisher
	cache  *mapCache
}

func testConfig() *config.Config {
	return &config.Config{
		Feed: config.Feed{DefaultPageSize: 20, MaxPageSize: 100},
		Avatars: config.Avatars{
			Male:    "defaults/male_default.png",
			Female:  "defaults/female_default.png",
			Neutral: "defaults/neutral_default.png",
			BaseURL: "https://static.lorelink.test",
		},
		JWTSecretKey:         "test-secret",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: time.Hour,
	}
}

func newTestEnv(t *testing.T, clock Clock) *testEnv {
	t.Helper()

	store := memory.New()
	env := &testEnv{
		store:  store,
		events: &recordingPublisher{},
		cache:  newMapCache(),
	}
	env.svc = NewService(Deps{
		Repo:   store.Repository(),
		Cfg:    testConfig(),
		Cache:  env.cache,
		Events: env.events,
		Clock:  clock,
	})
	return env
}

func (e *testEnv) newUser(t *testing.T, seed string) string {
	t.Helper()

	userID := uuid.New().String()
	_, err := e.svc.Profile.CreateProfile(context.Background(), userID, seed, "")
	require.NoError(t, err)
	return userID
}

func (e *testEnv) newPost(t *testing.T, authorID, text string) *models.Post {
	t.Helper()

	post, err := e.svc.Post.CreatePost(context.Background(), authorID, text, false)
	require.NoError(t, err)
	return post
}

// stepClock advances one microsecond per reading from a fixed start.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

// frozenClock always returns the same instant, forcing cursor ties.
type frozenClock struct{ at time.Time }

func (c frozenClock) Now() time.Time { return c.at }

type recordedEvent struct {
	eventType string
	key       string
	payload   []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, key: key, payload: payload})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// lastData decodes the data field of the most recent event of the given type.
func (p *recordingPublisher) lastData(t *testing.T, eventType string) map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].eventType != eventType {
			continue
		}
		var envelope struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(p.events[i].payload, &envelope))
		require.Equal(t, eventType, envelope.Type)
		return envelope.Data
	}
	t.Fatalf("no %s event published", eventType)
	return nil
}

type mapCache struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	deletes  int
}

func newMapCache() *mapCache {
	return &mapCache{profiles: make(map[string]models.Profile)}
}

func (c *mapCache) Get(_ context.Context, userID string) (*models.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *mapCache) Set(_ context.Context, profile *models.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[profile.UserID] = *profile
	return nil
}

func (c *mapCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
	c.deletes++
	return nil
}

func (c *mapCache) has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.profiles[userID]
	return ok
}

var _ events.Publisher = (*recordingPublisher)(nil)

func TestMonotonicClock(t *testing.T) {
	clock := &monotonicClock{}

	prev := clock.Now()
	for i := 0; i < 1000; i++ {
		next := clock.Now()
		require.True(t, next.After(prev), "clock went from %v to %v", prev, next)
		assert.Equal(t, next, next.Truncate(time.Microsecond))
		prev = next
	}
}

func TestPageLimit(t *testing.T) {
	cfg := testConfig()

	assert.Equal(t, 20, pageLimit(0, cfg))
	assert.Equal(t, 20, pageLimit(-3, cfg))
	assert.Equal(t, 7, pageLimit(7, cfg))
	assert.Equal(t, 100, pageLimit(1000, cfg))
}

// TestInteractionScenario walks the create, like, unlike and comment sequence end to end.
func TestInteractionScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	alice := env.newUser(t, "alice@example.com")
	bob := env.newUser(t, "bob@example.com")
	carol := env.newUser(t, "carol@example.com")

	post := env.newPost(t, alice, "Hello world")
	assert.Equal(t, 0, post.LikeCount)
	assert.Equal(t, 0, post.CommentCount)

	result, err := env.svc.Interaction.ToggleLike(ctx, post.PostID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: true, NewCount: 1}, result)

	result, err = env.svc.Interaction.ToggleLike(ctx, post.PostID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: false, NewCount: 0}, result)

	_, err = env.svc.Interaction.AddComment(ctx, post.PostID, carol, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	stored, err := env.svc.Post.GetPost(ctx, post.PostID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CommentCount)

	comment, err := env.svc.Interaction.AddComment(ctx, post.PostID, carol, "nice")
	require.NoError(t, err)
	assert.Equal(t, "nice", comment.Text)
	assert.Equal(t, carol, comment.AuthorID)

	stored, err = env.svc.Post.GetPost(ctx, post.PostID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CommentCount)
	assert.Equal(t, 0, stored.LikeCount)

	assert.Equal(t, 1, env.events.count(events.PostCreated))
	assert.Equal(t, 2, env.events.count(events.PostLikeToggled))
	assert.Equal(t, 1, env.events.count(events.CommentAdded))
}
