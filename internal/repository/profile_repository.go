package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"lorelink/internal/models"
)

type profileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `user_id, handle, display_name, bio, avatar_ref, gender, verified, created_at, updated_at, deleted_at, follower_count, following_count`

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	query := `INSERT INTO profiles (user_id, handle, display_name, bio, avatar_ref, gender, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		profile.UserID, profile.Handle, profile.DisplayName, profile.Bio, profile.AvatarRef,
		profile.Gender, profile.Verified, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "handle") {
			return fmt.Errorf("%w: handle %s is taken", models.ErrConflict, profile.Handle)
		}
		return storageErr("create profile", err)
	}

	return nil
}

func (r *profileRepository) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	err := r.db.GetContext(ctx, &profile, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
		}
		return nil, storageErr("get profile", err)
	}

	return &profile, nil
}

func (r *profileRepository) HandlesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var handles []string

	// handles only hold [a-z0-9_]; escape the LIKE wildcard underscore
	pattern := strings.ReplaceAll(prefix, "_", `\_`) + "%"

	err := r.db.SelectContext(ctx, &handles, `SELECT handle FROM profiles WHERE handle LIKE $1`, pattern)
	if err != nil {
		return nil, storageErr("list handles", err)
	}

	return handles, nil
}

func (r *profileRepository) Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("display_name", patch.DisplayName)
	add("bio", patch.Bio)
	add("avatar_ref", patch.AvatarRef)

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE user_id = $%d AND deleted_at IS NULL RETURNING %s`,
		strings.Join(sets, ", "), len(args), profileColumns)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("update profile", err)
	}
	defer tx.Rollback()

	var profile models.Profile
	if err := tx.GetContext(ctx, &profile, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
		}
		return nil, storageErr("update profile", err)
	}

	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionProfiles,
		Op:         models.OpUpdate,
		DocumentID: userID,
		UserID:     userID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("update profile", err)
	}

	return &profile, nil
}

func (r *profileRepository) SetVerified(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET verified = TRUE, updated_at = NOW() WHERE user_id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return storageErr("verify profile", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("verify profile", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}

	return nil
}

// Tombstone keeps the row so historical posts can still render a placeholder author.
// The user's follow edges go with it, and the other side's counters are adjusted.
func (r *profileRepository) Tombstone(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("tombstone profile", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE profiles SET deleted_at = NOW(), updated_at = NOW() WHERE user_id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return storageErr("tombstone profile", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("tombstone profile", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}

	if err := dropFollowEdges(ctx, tx, userID); err != nil {
		return err
	}

	if err := notify(ctx, tx, models.ChangeEvent{
		Collection: models.CollectionProfiles,
		Op:         models.OpDelete,
		DocumentID: userID,
		UserID:     userID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("tombstone profile", err)
	}

	return nil
}
