package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"lorelink/internal/cache"
	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
)

type FollowService interface {
	ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error)
	FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error)
	ListFollowers(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error)
	ListFollowing(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error)
}

type followService struct {
	followRepo  repository.FollowRepository
	profileRepo repository.ProfileRepository
	profiles    ProfileService
	cache       cache.ProfileCache
	events      events.Publisher
	cfg         *config.Config
}

func NewFollowService(
	followRepo repository.FollowRepository,
	profileRepo repository.ProfileRepository,
	profiles ProfileService,
	profileCache cache.ProfileCache,
	publisher events.Publisher,
	cfg *config.Config,
) FollowService {
	return &followService{
		followRepo:  followRepo,
		profileRepo: profileRepo,
		profiles:    profiles,
		cache:       profileCache,
		events:      publisher,
		cfg:         cfg,
	}
}

func (s *followService) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	if followerID == "" {
		return models.FollowResult{}, models.ErrAuthRequired
	}
	if followeeID == "" {
		return models.FollowResult{}, fmt.Errorf("%w: userId is required", models.ErrValidation)
	}
	if followerID == followeeID {
		return models.FollowResult{}, fmt.Errorf("%w: cannot follow yourself", models.ErrValidation)
	}
	if err := requireMember(ctx, s.profileRepo, followerID); err != nil {
		return models.FollowResult{}, err
	}

	result, err := s.followRepo.ToggleFollow(ctx, followerID, followeeID)
	if err != nil {
		return models.FollowResult{}, err
	}

	// both profiles carry a counter that just moved
	for _, id := range []string{followerID, followeeID} {
		if err := s.cache.Delete(ctx, id); err != nil {
			slog.Warn("profile cache invalidation failed", "userId", id, "error", err)
		}
	}

	events.Emit(ctx, s.events, events.UserFollowToggled, followeeID, map[string]any{
		"followerId":    followerID,
		"followeeId":    followeeID,
		"following":     result.Following,
		"followerCount": result.FollowerCount,
	})
	return result, nil
}

func (s *followService) FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error) {
	if followerID == "" {
		return map[string]bool{}, nil
	}
	return s.followRepo.FollowedIDs(ctx, followerID, userIDs)
}

func (s *followService) ListFollowers(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error) {
	return s.list(ctx, userID, q, s.followRepo.ListFollowers, func(f models.Follow) string { return f.FollowerID })
}

func (s *followService) ListFollowing(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error) {
	return s.list(ctx, userID, q, s.followRepo.ListFollowing, func(f models.Follow) string { return f.FolloweeID })
}

type followLister func(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error)

// list pages one side of userID's edges; other picks the user shown on each row.
func (s *followService) list(ctx context.Context, userID string, q models.PageQuery, fetch followLister, other func(models.Follow) string) (*models.FollowPage, error) {
	if _, err := s.profiles.GetProfile(ctx, userID); err != nil {
		return nil, err
	}

	limit := pageLimit(q.Limit, s.cfg)
	follows, err := fetch(ctx, userID, models.PageQuery{Cursor: q.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}

	hasMore := len(follows) > limit
	if hasMore {
		follows = follows[:limit]
	}

	entries := make([]models.FollowEntry, len(follows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorLookupLimit)
	for i, f := range follows {
		entries[i].FollowedAt = f.CreatedAt
		g.Go(func() error {
			profile, err := s.profiles.LookupAuthor(gctx, other(f))
			if err != nil {
				return fmt.Errorf("user %s: %w", other(f), err)
			}
			entries[i].Profile = profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &models.FollowPage{Entries: entries, HasMore: hasMore}
	if hasMore {
		last := follows[len(follows)-1]
		page.NextCursor = models.Cursor{CreatedAt: last.CreatedAt, ID: other(last)}.Encode()
	}
	return page, nil
}
