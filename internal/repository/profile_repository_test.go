package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lorelink/internal/models"
)

var profileRowColumns = []string{"user_id", "handle", "display_name", "bio", "avatar_ref", "gender", "verified", "created_at", "updated_at", "deleted_at", "follower_count", "following_count"}

func TestProfileRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		profile := &models.Profile{UserID: "u1", Handle: "alice", DisplayName: models.DefaultDisplayName, Gender: models.GenderFemale}

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO profiles`)).
			WithArgs("u1", "alice", models.DefaultDisplayName, "", "", models.GenderFemale, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, profile))
		assert.False(t, profile.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("handle collision is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO profiles`)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "profiles_handle_key"})

		err := repo.Create(ctx, &models.Profile{UserID: "u2", Handle: "alice"})

		assert.True(t, errors.Is(err, models.ErrConflict))
	})
}

func TestProfileRepository_HandlesWithPrefix(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT handle FROM profiles WHERE handle LIKE $1`)).
		WithArgs(`john\_doe%`).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}).AddRow("john_doe").AddRow("john_doe1"))

	handles, err := repo.HandlesWithPrefix(context.Background(), "john_doe")

	require.NoError(t, err)
	assert.Equal(t, []string{"john_doe", "john_doe1"}, handles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_Update(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("only patched columns are set", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		name := "Alice"
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE profiles SET updated_at = $1, display_name = $2 WHERE user_id = $3 AND deleted_at IS NULL RETURNING`)).
			WithArgs(sqlmock.AnyArg(), "Alice", "u1").
			WillReturnRows(sqlmock.NewRows(profileRowColumns).
				AddRow("u1", "alice", "Alice", "bio", "", models.GenderFemale, true, now, now, nil, 4, 2))
		expectNotify(mock)
		mock.ExpectCommit()

		profile, err := repo.Update(ctx, "u1", models.ProfilePatch{DisplayName: &name})

		require.NoError(t, err)
		assert.Equal(t, "Alice", profile.DisplayName)
		assert.Equal(t, "bio", profile.Bio)
		assert.Equal(t, 4, profile.FollowerCount)
		assert.Equal(t, 2, profile.FollowingCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tombstoned profile is not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		bio := "x"
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE profiles SET updated_at = $1, bio = $2`)).
			WithArgs(sqlmock.AnyArg(), "x", "u1").
			WillReturnRows(sqlmock.NewRows(profileRowColumns))
		mock.ExpectRollback()

		_, err := repo.Update(ctx, "u1", models.ProfilePatch{Bio: &bio})

		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileRepository_GetByID_ReturnsTombstones(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow("u1", "alice", "Alice", "", "", models.GenderFemale, true, now, now, now, 0, 0))

	profile, err := repo.GetByID(context.Background(), "u1")

	require.NoError(t, err)
	assert.True(t, profile.Tombstoned())
}

func TestProfileRepository_Tombstone(t *testing.T) {
	ctx := context.Background()

	t.Run("drops follow edges with the profile", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET deleted_at = NOW(), updated_at = NOW() WHERE user_id = $1 AND deleted_at IS NULL`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET follower_count = GREATEST(follower_count - 1, 0) WHERE user_id IN (SELECT followee_id FROM follows WHERE follower_id = $1)`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET following_count = GREATEST(following_count - 1, 0) WHERE user_id IN (SELECT follower_id FROM follows WHERE followee_id = $1)`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM follows WHERE follower_id = $1 OR followee_id = $1`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 5))
		expectNotify(mock)
		mock.ExpectCommit()

		require.NoError(t, repo.Tombstone(ctx, "u1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already tombstoned", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET deleted_at = NOW()`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Tombstone(ctx, "u1")

		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
