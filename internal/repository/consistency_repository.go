package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"lorelink/internal/models"
)

type consistencyRepository struct {
	db *sqlx.DB
}

func NewConsistencyRepository(db *sqlx.DB) ConsistencyRepository {
	return &consistencyRepository{db: db}
}

func (r *consistencyRepository) CounterDrift(ctx context.Context, limit int) ([]models.CounterDrift, error) {
	drift := []models.CounterDrift{}

	err := r.db.SelectContext(ctx, &drift, `
		WITH counts AS (
			SELECT p.post_id, p.like_count, p.comment_count,
				(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.post_id AND l.deleted_at IS NULL) AS likes,
				(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.post_id AND c.deleted_at IS NULL) AS comments
			FROM posts p
			WHERE p.deleted_at IS NULL
		)
		SELECT post_id, like_count, likes, comment_count, comments FROM counts
		WHERE like_count <> likes OR comment_count <> comments
		ORDER BY post_id
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, storageErr("count counter drift", err)
	}

	return drift, nil
}

// RepairCounters recomputes both counters from the live ledger rows under the post's row lock.
func (r *consistencyRepository) RepairCounters(ctx context.Context, postID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE posts SET
			like_count = (SELECT COUNT(*) FROM post_likes l WHERE l.post_id = posts.post_id AND l.deleted_at IS NULL),
			comment_count = (SELECT COUNT(*) FROM comments c WHERE c.post_id = posts.post_id AND c.deleted_at IS NULL)
		WHERE post_id = $1 AND deleted_at IS NULL`, postID)
	if err != nil {
		return storageErr("repair counters", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("repair counters", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}

	return nil
}
