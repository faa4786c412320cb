package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lorelink/internal/models"
)

type followRepository struct {
	db *sqlx.DB
}

func NewFollowRepository(db *sqlx.DB) FollowRepository {
	return &followRepository{db: db}
}

// ToggleFollow locks both profile rows in user_id order, so two users following
// each other at once cannot deadlock, and the edge and both counters move together.
func (r *followRepository) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	var result models.FollowResult

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, storageErr("toggle follow", err)
	}
	defer tx.Rollback()

	var live []string
	err = tx.SelectContext(ctx, &live,
		`SELECT user_id FROM profiles WHERE user_id = ANY($1) AND deleted_at IS NULL ORDER BY user_id FOR UPDATE`,
		pq.Array([]string{followerID, followeeID}))
	if err != nil {
		return result, storageErr("toggle follow", err)
	}
	if !slices.Contains(live, followeeID) {
		return result, fmt.Errorf("profile %s: %w", followeeID, models.ErrNotFound)
	}
	if !slices.Contains(live, followerID) {
		return result, fmt.Errorf("profile %s: %w", followerID, models.ErrNotFound)
	}

	removed, err := execCount(ctx, tx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return result, storageErr("remove follow", err)
	}

	if removed > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET following_count = GREATEST(following_count - 1, 0) WHERE user_id = $1`, followerID); err != nil {
			return result, storageErr("decrement following count", err)
		}
		err = tx.GetContext(ctx, &result.FollowerCount,
			`UPDATE profiles SET follower_count = GREATEST(follower_count - 1, 0) WHERE user_id = $1 RETURNING follower_count`, followeeID)
		if err != nil {
			return result, storageErr("decrement follower count", err)
		}
	} else {
		inserted, err := execCount(ctx, tx,
			`INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT (follower_id, followee_id) DO NOTHING`,
			followerID, followeeID)
		if err != nil {
			return result, storageErr("add follow", err)
		}

		if inserted > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE profiles SET following_count = following_count + 1 WHERE user_id = $1`, followerID); err != nil {
				return result, storageErr("increment following count", err)
			}
			err = tx.GetContext(ctx, &result.FollowerCount,
				`UPDATE profiles SET follower_count = follower_count + 1 WHERE user_id = $1 RETURNING follower_count`, followeeID)
		} else {
			err = tx.GetContext(ctx, &result.FollowerCount,
				`SELECT follower_count FROM profiles WHERE user_id = $1`, followeeID)
		}
		if err != nil {
			return result, storageErr("increment follower count", err)
		}
		result.Following = true
	}

	op := models.OpInsert
	if !result.Following {
		op = models.OpDelete
	}
	count := result.FollowerCount
	if err := notify(ctx, tx, models.ChangeEvent{
		Collection:   models.CollectionFollows,
		Op:           op,
		DocumentID:   followerID + ":" + followeeID,
		UserID:       followerID,
		TargetUserID: followeeID,
		Count:        &count,
	}); err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return models.FollowResult{}, storageErr("toggle follow", err)
	}

	return result, nil
}

func (r *followRepository) FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error) {
	followed := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return followed, nil
	}

	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT followee_id FROM follows WHERE follower_id = $1 AND followee_id = ANY($2)`,
		followerID, pq.Array(userIDs))
	if err != nil {
		return nil, storageErr("list followed users", err)
	}

	for _, id := range ids {
		followed[id] = true
	}
	return followed, nil
}

func (r *followRepository) ListFollowers(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error) {
	return r.list(ctx, "list followers", "followee_id", "follower_id", userID, q)
}

func (r *followRepository) ListFollowing(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error) {
	return r.list(ctx, "list following", "follower_id", "followee_id", userID, q)
}

// list pages the edges where column = userID, newest first, keyed by (created_at, other).
func (r *followRepository) list(ctx context.Context, op, column, other, userID string, q models.PageQuery) ([]models.Follow, error) {
	follows := []models.Follow{}

	var err error
	if q.Cursor == nil {
		err = r.db.SelectContext(ctx, &follows, fmt.Sprintf(`SELECT follower_id, followee_id, created_at FROM follows
			WHERE %s = $1
			ORDER BY created_at DESC, %s DESC LIMIT $2`, column, other),
			userID, clampLimit(q.Limit))
	} else {
		err = r.db.SelectContext(ctx, &follows, fmt.Sprintf(`SELECT follower_id, followee_id, created_at FROM follows
			WHERE %s = $1 AND (created_at, %s) < ($2, $3)
			ORDER BY created_at DESC, %s DESC LIMIT $4`, column, other, other),
			userID, q.Cursor.CreatedAt, q.Cursor.ID, clampLimit(q.Limit))
	}
	if err != nil {
		return nil, storageErr(op, err)
	}

	return follows, nil
}

// dropFollowEdges removes every edge touching userID inside tx, releasing the
// counters it held on the other side.
func dropFollowEdges(ctx context.Context, tx *sqlx.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET follower_count = GREATEST(follower_count - 1, 0) WHERE user_id IN (SELECT followee_id FROM follows WHERE follower_id = $1)`,
		userID); err != nil {
		return storageErr("release follower counts", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET following_count = GREATEST(following_count - 1, 0) WHERE user_id IN (SELECT follower_id FROM follows WHERE followee_id = $1)`,
		userID); err != nil {
		return storageErr("release following counts", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = $1 OR followee_id = $1`, userID); err != nil {
		return storageErr("drop follows", err)
	}
	return nil
}
