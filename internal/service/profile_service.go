package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lorelink/internal/cache"
	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
	"lorelink/internal/storage"
)

type ProfileService interface {
	CreateProfile(ctx context.Context, userID, seedHandle, gender string) (*models.Profile, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, callerID, userID string, patch models.ProfilePatch) (*models.Profile, error)
	// LookupAuthor never fails with NotFound: missing or tombstoned users render as the deleted-user placeholder.
	LookupAuthor(ctx context.Context, userID string) (*models.Profile, error)
	SetVerified(ctx context.Context, userID string) error
	DeleteProfile(ctx context.Context, userID string) error
}

type profileService struct {
	profileRepo repository.ProfileRepository
	cache       cache.ProfileCache
	avatars     storage.AvatarStorage
	events      events.Publisher
	cfg         *config.Config
}

func NewProfileService(
	profileRepo repository.ProfileRepository,
	profileCache cache.ProfileCache,
	avatars storage.AvatarStorage,
	publisher events.Publisher,
	cfg *config.Config,
) ProfileService {
	return &profileService{
		profileRepo: profileRepo,
		cache:       profileCache,
		avatars:     avatars,
		events:      publisher,
		cfg:         cfg,
	}
}

func (s *profileService) CreateProfile(ctx context.Context, userID, seedHandle, gender string) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", models.ErrValidation)
	}
	gender, err := normalizeGender(gender)
	if err != nil {
		return nil, err
	}

	base := baseHandle(seedHandle)

	var lastErr error
	for attempt := 0; attempt < handleRetryLimit; attempt++ {
		taken, err := s.profileRepo.HandlesWithPrefix(ctx, base)
		if err != nil {
			return nil, err
		}

		profile := &models.Profile{
			UserID:      userID,
			Handle:      pickHandle(base, taken),
			DisplayName: models.DefaultDisplayName,
			Bio:         models.DefaultBio,
			Gender:      gender,
		}

		err = s.profileRepo.Create(ctx, profile)
		if err == nil {
			return s.decorate(ctx, profile), nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}

		// another sign-up took the same handle between the read and the insert
		slog.Debug("handle collision, retrying", "handle", profile.Handle, "attempt", attempt+1)
		lastErr = err
	}

	return nil, fmt.Errorf("allocate handle for %s: %w", base, lastErr)
}

func (s *profileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.Tombstoned() {
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	return s.decorate(ctx, profile), nil
}

func (s *profileService) UpdateProfile(ctx context.Context, callerID, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	if callerID == "" {
		return nil, models.ErrAuthRequired
	}
	if callerID != userID {
		return nil, fmt.Errorf("%w: cannot edit another user's profile", models.ErrPermissionDenied)
	}

	patch, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.Update(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)

	events.Emit(ctx, s.events, events.ProfileUpdated, userID, patch)
	return s.decorate(ctx, profile), nil
}

func (s *profileService) LookupAuthor(ctx context.Context, userID string) (*models.Profile, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		slog.Warn("profile cache read failed", "userId", userID, "error", err)
	}
	if cached != nil {
		return s.authorView(ctx, cached), nil
	}

	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.placeholder(ctx, userID, nil), nil
		}
		return nil, err
	}

	if err := s.cache.Set(ctx, profile); err != nil {
		slog.Warn("profile cache write failed", "userId", userID, "error", err)
	}
	return s.authorView(ctx, profile), nil
}

func (s *profileService) SetVerified(ctx context.Context, userID string) error {
	if err := s.profileRepo.SetVerified(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *profileService) DeleteProfile(ctx context.Context, userID string) error {
	if err := s.profileRepo.Tombstone(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *profileService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.Warn("profile cache invalidation failed", "userId", userID, "error", err)
	}
}

func (s *profileService) authorView(ctx context.Context, profile *models.Profile) *models.Profile {
	if profile.Tombstoned() {
		return s.placeholder(ctx, profile.UserID, profile.DeletedAt)
	}
	return s.decorate(ctx, profile)
}

func (s *profileService) placeholder(ctx context.Context, userID string, deletedAt *time.Time) *models.Profile {
	return s.decorate(ctx, &models.Profile{
		UserID:      userID,
		Handle:      models.DeletedUserHandle,
		DisplayName: models.DeletedUserDisplayName,
		Gender:      models.GenderUnknown,
		DeletedAt:   deletedAt,
	})
}

// decorate fills the read-only view fields: the fetchable avatar URL and the completeness flag.
func (s *profileService) decorate(ctx context.Context, profile *models.Profile) *models.Profile {
	ref := profile.AvatarRef
	if ref == "" {
		ref = s.defaultAvatar(profile.Gender)
	}

	url, err := s.avatars.AvatarURL(ctx, ref)
	if err != nil {
		slog.Warn("resolve avatar", "userId", profile.UserID, "ref", ref, "error", err)
		url = ""
	}
	profile.AvatarURL = url
	profile.Complete = !profile.Tombstoned() &&
		profile.DisplayName != models.DefaultDisplayName &&
		profile.AvatarRef != ""
	return profile
}

func (s *profileService) defaultAvatar(gender string) string {
	switch gender {
	case models.GenderMale:
		return s.cfg.Avatars.Male
	case models.GenderFemale:
		return s.cfg.Avatars.Female
	default:
		return s.cfg.Avatars.Neutral
	}
}
