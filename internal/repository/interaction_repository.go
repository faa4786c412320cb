package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lorelink/internal/models"
)

type interactionRepository struct {
	db *sqlx.DB
}

func NewInteractionRepository(db *sqlx.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

const commentColumns = `comment_id, post_id, author_id, text, created_at, deleted_at`

// ToggleLike locks the post row for the duration of the toggle, so the like
// record and like_count always move together. Counter changes are applied
// by the database, never computed by the caller.
func (r *interactionRepository) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	var result models.LikeResult

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, storageErr("toggle like", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists,
		`SELECT 1 FROM posts WHERE post_id = $1 AND deleted_at IS NULL FOR UPDATE`, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
		}
		return result, storageErr("toggle like", err)
	}

	removed, err := execCount(ctx, tx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return result, storageErr("remove like", err)
	}

	if removed > 0 {
		err = tx.GetContext(ctx, &result.NewCount,
			`UPDATE posts SET like_count = GREATEST(like_count - 1, 0) WHERE post_id = $1 RETURNING like_count`, postID)
		if err != nil {
			return result, storageErr("decrement like count", err)
		}
	} else {
		inserted, err := execCount(ctx, tx,
			`INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT (post_id, user_id) DO NOTHING`,
			postID, userID)
		if err != nil {
			return result, storageErr("add like", err)
		}

		if inserted > 0 {
			err = tx.GetContext(ctx, &result.NewCount,
				`UPDATE posts SET like_count = like_count + 1 WHERE post_id = $1 RETURNING like_count`, postID)
		} else {
			err = tx.GetContext(ctx, &result.NewCount,
				`SELECT like_count FROM posts WHERE post_id = $1`, postID)
		}
		if err != nil {
			return result, storageErr("increment like count", err)
		}
		result.Liked = true
	}

	op := models.OpInsert
	if !result.Liked {
		op = models.OpDelete
	}
	count := result.NewCount
	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionLikes,
		Op:         op,
		DocumentID: postID + ":" + userID,
		PostID:     postID,
		UserID:     userID,
		Count:      &count,
	}); err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return models.LikeResult{}, storageErr("toggle like", err)
	}

	return result, nil
}

func (r *interactionRepository) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return liked, nil
	}

	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT post_id FROM post_likes WHERE user_id = $1 AND post_id = ANY($2) AND deleted_at IS NULL`,
		userID, pq.Array(postIDs))
	if err != nil {
		return nil, storageErr("list liked posts", err)
	}

	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

// AddComment bumps comment_count first: the row lock it takes also fences a concurrent post deletion.
func (r *interactionRepository) AddComment(ctx context.Context, comment *models.Comment) (int, error) {
	if comment.CommentID == "" {
		comment.CommentID = uuid.New().String()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr("add comment", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.GetContext(ctx, &count,
		`UPDATE posts SET comment_count = comment_count + 1 WHERE post_id = $1 AND deleted_at IS NULL RETURNING comment_count`,
		comment.PostID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("post %s: %w", comment.PostID, models.ErrNotFound)
		}
		return 0, storageErr("increment comment count", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO comments (comment_id, post_id, author_id, text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		comment.CommentID, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt)
	if err != nil {
		return 0, storageErr("add comment", err)
	}

	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionComments,
		Op:         models.OpInsert,
		DocumentID: comment.CommentID,
		PostID:     comment.PostID,
		UserID:     comment.AuthorID,
		Count:      &count,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("add comment", err)
	}

	return count, nil
}

func (r *interactionRepository) ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) ([]models.Comment, error) {
	comments := []models.Comment{}

	direction, cmp := "ASC", ">"
	if order == models.CommentsNewestFirst {
		direction, cmp = "DESC", "<"
	}

	var err error
	if q.Cursor == nil {
		err = r.db.SelectContext(ctx, &comments, fmt.Sprintf(`SELECT %s FROM comments
			WHERE post_id = $1 AND deleted_at IS NULL
			ORDER BY created_at %s, comment_id %s LIMIT $2`, commentColumns, direction, direction),
			postID, clampLimit(q.Limit))
	} else {
		err = r.db.SelectContext(ctx, &comments, fmt.Sprintf(`SELECT %s FROM comments
			WHERE post_id = $1 AND deleted_at IS NULL AND (created_at, comment_id) %s ($2, $3)
			ORDER BY created_at %s, comment_id %s LIMIT $4`, commentColumns, cmp, direction, direction),
			postID, q.Cursor.CreatedAt, q.Cursor.ID, clampLimit(q.Limit))
	}
	if err != nil {
		return nil, storageErr("list comments", err)
	}

	return comments, nil
}

// ListCommentsByAuthor is a user's activity: their comments, newest first, each
// with the text of the post it answers.
func (r *interactionRepository) ListCommentsByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Comment, error) {
	comments := []models.Comment{}

	const activity = `SELECT c.comment_id, c.post_id, c.author_id, c.text, c.created_at, c.deleted_at, p.text AS post_text
		FROM comments c JOIN posts p ON p.post_id = c.post_id AND p.deleted_at IS NULL
		WHERE c.author_id = $1 AND c.deleted_at IS NULL`

	var err error
	if q.Cursor == nil {
		err = r.db.SelectContext(ctx, &comments, activity+`
			ORDER BY c.created_at DESC, c.comment_id DESC LIMIT $2`, authorID, clampLimit(q.Limit))
	} else {
		err = r.db.SelectContext(ctx, &comments, activity+` AND (c.created_at, c.comment_id) < ($2, $3)
			ORDER BY c.created_at DESC, c.comment_id DESC LIMIT $4`, authorID, q.Cursor.CreatedAt, q.Cursor.ID, clampLimit(q.Limit))
	}
	if err != nil {
		return nil, storageErr("list user comments", err)
	}

	return comments, nil
}

func execCount(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
