package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lorelink/internal/cache"
	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
	"lorelink/internal/storage"
)

type Service struct {
	Auth        AuthService
	Account     AccountService
	Profile     ProfileService
	Post        PostService
	Interaction InteractionService
	Follow      FollowService
	Feed        FeedService
}

// Deps are the adapters the services run on. Nil Cache, Events and Avatars fall back to
// no-ops, and a nil Clock to the process clock.
type Deps struct {
	Repo    *repository.Repository
	Cfg     *config.Config
	Avatars storage.AvatarStorage
	Cache   cache.ProfileCache
	Events  events.Publisher
	Clock   Clock
}

func NewService(deps Deps) *Service {
	if deps.Cache == nil {
		deps.Cache = cache.NoopProfileCache{}
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	if deps.Avatars == nil {
		deps.Avatars = storage.StaticAvatars{BaseURL: deps.Cfg.Avatars.BaseURL}
	}
	if deps.Clock == nil {
		deps.Clock = &monotonicClock{}
	}

	auth := NewAuthService(deps.Repo.Account, deps.Events, deps.Cfg)
	profile := NewProfileService(deps.Repo.Profile, deps.Cache, deps.Avatars, deps.Events, deps.Cfg)
	post := NewPostService(deps.Repo.Post, deps.Repo.Profile, deps.Events, deps.Clock)
	interaction := NewInteractionService(deps.Repo.Interaction, deps.Repo.Post, deps.Repo.Profile, deps.Repo.Consistency, deps.Events, deps.Clock, deps.Cfg)
	follow := NewFollowService(deps.Repo.Follow, deps.Repo.Profile, profile, deps.Cache, deps.Events, deps.Cfg)

	return &Service{
		Auth:        auth,
		Account:     NewAccountService(auth, profile),
		Profile:     profile,
		Post:        post,
		Interaction: interaction,
		Follow:      follow,
		Feed:        NewFeedService(post, interaction, follow, profile, deps.Cfg),
	}
}

// Clock assigns creation times. Readings never repeat or go backwards within
// a process, and are truncated to the microsecond precision Postgres stores.
type Clock interface {
	Now() time.Time
}

type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

func pageLimit(limit int, cfg *config.Config) int {
	if limit <= 0 {
		return cfg.Feed.DefaultPageSize
	}
	if limit > cfg.Feed.MaxPageSize {
		return cfg.Feed.MaxPageSize
	}
	return limit
}

// requireMember fails unless userID still has a live profile. Access tokens outlive
// account deletion, so every write on behalf of a principal goes through here.
func requireMember(ctx context.Context, profiles repository.ProfileRepository, userID string) error {
	profile, err := profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: no profile for %s", models.ErrAuthRequired, userID)
		}
		return err
	}
	if profile.Tombstoned() {
		return fmt.Errorf("%w: account %s has been deleted", models.ErrAuthRequired, userID)
	}
	return nil
}
