package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lorelink/internal/models"
)

type postRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `post_id, author_id, text, generated, created_at, like_count, comment_count, deleted_at`

// postInsertLock serializes post inserts; see Create.
const postInsertLock int64 = 0x6c6f7265

// Create stamps created_at inside the transaction while holding postInsertLock, so
// posts commit in created_at order and a reader's head watermark never passes a
// post that is still in flight. The stamp is strictly greater than every existing one.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.PostID == "" {
		post.PostID = uuid.New().String()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("create post", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postInsertLock); err != nil {
		return storageErr("create post", err)
	}

	query := `INSERT INTO posts (post_id, author_id, text, generated, created_at, like_count, comment_count)
		VALUES ($1, $2, $3, $4, GREATEST(clock_timestamp(),
			COALESCE((SELECT MAX(created_at) FROM posts), '-infinity') + INTERVAL '1 microsecond'), 0, 0)
		RETURNING created_at`

	var createdAt time.Time
	if err := tx.GetContext(ctx, &createdAt, query,
		post.PostID, post.AuthorID, post.Text, post.Generated); err != nil {
		return storageErr("create post", err)
	}

	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionPosts,
		Op:         models.OpInsert,
		DocumentID: post.PostID,
		PostID:     post.PostID,
		UserID:     post.AuthorID,
		At:         createdAt,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("create post", err)
	}

	post.CreatedAt = createdAt.UTC()
	post.LikeCount = 0
	post.CommentCount = 0
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post

	query := `SELECT ` + postColumns + ` FROM posts WHERE post_id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &post, query, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
		}
		return nil, storageErr("get post", err)
	}

	return &post, nil
}

func (r *postRepository) List(ctx context.Context, q models.PageQuery) ([]models.Post, error) {
	posts := []models.Post{}

	var err error
	if q.Cursor == nil {
		err = r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts
			WHERE deleted_at IS NULL
			ORDER BY created_at DESC, post_id DESC LIMIT $1`, clampLimit(q.Limit))
	} else {
		err = r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts
			WHERE deleted_at IS NULL AND (created_at, post_id) < ($1, $2)
			ORDER BY created_at DESC, post_id DESC LIMIT $3`, q.Cursor.CreatedAt, q.Cursor.ID, clampLimit(q.Limit))
	}
	if err != nil {
		return nil, storageErr("list posts", err)
	}

	return posts, nil
}

func (r *postRepository) ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error) {
	posts := []models.Post{}

	err := r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts
		WHERE deleted_at IS NULL AND (created_at, post_id) > ($1, $2)
		ORDER BY created_at ASC, post_id ASC LIMIT $3`, since.CreatedAt, since.ID, clampLimit(limit))
	if err != nil {
		return nil, storageErr("list newer posts", err)
	}

	return posts, nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error) {
	posts := []models.Post{}

	var err error
	if q.Cursor == nil {
		err = r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts
			WHERE author_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC, post_id DESC LIMIT $2`, authorID, clampLimit(q.Limit))
	} else {
		err = r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts
			WHERE author_id = $1 AND deleted_at IS NULL AND (created_at, post_id) < ($2, $3)
			ORDER BY created_at DESC, post_id DESC LIMIT $4`, authorID, q.Cursor.CreatedAt, q.Cursor.ID, clampLimit(q.Limit))
	}
	if err != nil {
		return nil, storageErr("list author posts", err)
	}

	return posts, nil
}

func (r *postRepository) Tombstone(ctx context.Context, postID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("delete post", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE posts SET deleted_at = NOW() WHERE post_id = $1 AND deleted_at IS NULL`, postID)
	if err != nil {
		return storageErr("delete post", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("delete post", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE comments SET deleted_at = NOW() WHERE post_id = $1 AND deleted_at IS NULL`, postID); err != nil {
		return storageErr("tombstone comments", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE post_likes SET deleted_at = NOW() WHERE post_id = $1 AND deleted_at IS NULL`, postID); err != nil {
		return storageErr("tombstone likes", err)
	}

	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionPosts,
		Op:         models.OpDelete,
		DocumentID: postID,
		PostID:     postID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete post", err)
	}

	return nil
}
