package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"lorelink/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Account, error)
	SetVerificationToken(ctx context.Context, accountID, token string) error
	VerifyByToken(ctx context.Context, token string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error
	UpdateRefreshToken(ctx context.Context, accountID string, refreshToken *string, expiryTime *time.Time) error
	SoftDelete(ctx context.Context, accountID string) error
	// Purge hard-deletes an account that never got a profile.
	Purge(ctx context.Context, accountID string) error
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	// GetByID returns tombstoned profiles too; callers decide how to render them.
	GetByID(ctx context.Context, userID string) (*models.Profile, error)
	HandlesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error)
	SetVerified(ctx context.Context, userID string) error
	Tombstone(ctx context.Context, userID string) error
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, postID string) (*models.Post, error)
	// List returns live posts strictly older than q.Cursor, newest first.
	List(ctx context.Context, q models.PageQuery) ([]models.Post, error)
	// ListNewer returns live posts strictly newer than since, oldest first.
	ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error)
	// Tombstone soft-deletes the post with its comments and likes in one transaction.
	Tombstone(ctx context.Context, postID string) error
}

type InteractionRepository interface {
	// ToggleLike flips the (post, user) like and adjusts like_count in the same transaction.
	ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error)
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	// AddComment appends the comment and increments comment_count in the same transaction.
	AddComment(ctx context.Context, comment *models.Comment) (int, error)
	ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) ([]models.Comment, error)
	ListCommentsByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Comment, error)
}

type FollowRepository interface {
	// ToggleFollow flips the edge and moves both users' counters in the same transaction.
	// A missing or tombstoned profile on either side is NotFound.
	ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error)
	FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error)
	// ListFollowers and ListFollowing page newest edge first; the cursor id is the other user.
	ListFollowers(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error)
	ListFollowing(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error)
}

type ConsistencyRepository interface {
	CounterDrift(ctx context.Context, limit int) ([]models.CounterDrift, error)
	RepairCounters(ctx context.Context, postID string) error
}

// Watcher streams committed change events. The returned cancel func must be
// called to release the subscription.
type Watcher interface {
	Subscribe(filter func(models.ChangeEvent) bool) (<-chan models.ChangeEvent, func())
}

type Repository struct {
	Account     AccountRepository
	Profile     ProfileRepository
	Post        PostRepository
	Interaction InteractionRepository
	Follow      FollowRepository
	Consistency ConsistencyRepository
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		Account:     NewAccountRepository(db),
		Profile:     NewProfileRepository(db),
		Post:        NewPostRepository(db),
		Interaction: NewInteractionRepository(db),
		Follow:      NewFollowRepository(db),
		Consistency: NewConsistencyRepository(db),
	}
}

const (
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
	pqConnectionClass           = "08"
	pqOperatorClass             = "57"
)

// storageErr attaches the operation name and classifies driver failures into the domain taxonomy.
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, models.ErrConflict, pqErr.Constraint)
		case pqErr.Code == pqInvalidTextRepresentation:
			// id columns are UUIDs, so a malformed id names a row that cannot exist
			return fmt.Errorf("%s: %w", op, models.ErrNotFound)
		case pqErr.Code.Class() == pqConnectionClass, pqErr.Code.Class() == pqOperatorClass:
			return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error, constraintFragment string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraintFragment == "" || strings.Contains(pqErr.Constraint, constraintFragment)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
