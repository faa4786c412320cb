package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorelink/internal/events"
	"lorelink/internal/models"
)

func TestCreatePost(t *testing.T) {
	clock := frozenClock{at: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)}
	env := newTestEnv(t, clock)
	ctx := context.Background()

	author := env.newUser(t, "writer@example.com")

	t.Run("service assigns time and zero counters", func(t *testing.T) {
		post, err := env.svc.Post.CreatePost(ctx, author, "  first light  ", true)
		require.NoError(t, err)

		assert.NotEmpty(t, post.PostID)
		assert.Equal(t, author, post.AuthorID)
		assert.Equal(t, "first light", post.Text)
		assert.True(t, post.Generated)
		assert.Equal(t, clock.at, post.CreatedAt)
		assert.Zero(t, post.LikeCount)
		assert.Zero(t, post.CommentCount)
		assert.Equal(t, 1, env.events.count(events.PostCreated))
	})

	t.Run("length is measured in characters", func(t *testing.T) {
		_, err := env.svc.Post.CreatePost(ctx, author, strings.Repeat("ж", MaxPostLength), false)
		assert.NoError(t, err)

		_, err = env.svc.Post.CreatePost(ctx, author, strings.Repeat("ж", MaxPostLength+1), false)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("rejects", func(t *testing.T) {
		_, err := env.svc.Post.CreatePost(ctx, author, "   ", false)
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = env.svc.Post.CreatePost(ctx, "", "hello", false)
		assert.ErrorIs(t, err, models.ErrAuthRequired)

		_, err = env.svc.Post.CreatePost(ctx, "ghost", "hello", false)
		assert.ErrorIs(t, err, models.ErrAuthRequired)
	})
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	author := env.newUser(t, "author@example.com")
	other := env.newUser(t, "other@example.com")
	post := env.newPost(t, author, "mine")

	_, err := env.svc.Interaction.ToggleLike(ctx, post.PostID, other)
	require.NoError(t, err)
	_, err = env.svc.Interaction.AddComment(ctx, post.PostID, other, "reply")
	require.NoError(t, err)

	err = env.svc.Post.DeletePost(ctx, post.PostID, other)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	_, err = env.svc.Post.GetPost(ctx, post.PostID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Post.DeletePost(ctx, post.PostID, author))
	assert.Equal(t, 1, env.events.count(events.PostDeleted))

	_, err = env.svc.Post.GetPost(ctx, post.PostID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = env.svc.Post.DeletePost(ctx, post.PostID, author)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// cascaded tombstones hide the post's comments and likes
	page, err := env.svc.Interaction.ListUserComments(ctx, other, models.PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)
	assert.Zero(t, env.store.LikeRecords(post.PostID))

	_, err = env.svc.Interaction.ToggleLike(ctx, post.PostID, other)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = env.svc.Interaction.AddComment(ctx, post.PostID, other, "late")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, env.svc.Post.DeletePost(ctx, post.PostID, ""), models.ErrAuthRequired)
}
