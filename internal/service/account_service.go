package service

import (
	"context"
	"fmt"
	"log/slog"

	"lorelink/internal/models"
)

// Registration is returned by Register. The account cannot sign in until its email is verified.
type Registration struct {
	PrincipalID string          `json:"principalId"`
	Profile     *models.Profile `json:"profile"`
}

// AccountService orchestrates the identity gateway and the profile store for
// lifecycle operations that touch both.
type AccountService interface {
	Register(ctx context.Context, email, password, confirmPassword, gender string) (*Registration, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email, password string) error
	DeleteAccount(ctx context.Context, principalID, password string) error
}

type accountService struct {
	auth     AuthService
	profiles ProfileService
}

func NewAccountService(auth AuthService, profiles ProfileService) AccountService {
	return &accountService{auth: auth, profiles: profiles}
}

func (s *accountService) Register(ctx context.Context, email, password, confirmPassword, gender string) (*Registration, error) {
	if password != confirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", models.ErrValidation)
	}
	if _, err := normalizeGender(gender); err != nil {
		return nil, err
	}

	principalID, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.CreateProfile(ctx, principalID, normalizeEmail(email), gender)
	if err != nil {
		// without a profile the account is unusable; release the email for another attempt
		if delErr := s.auth.DiscardSignUp(ctx, principalID); delErr != nil {
			slog.Error("rollback account after failed profile creation", "principalId", principalID, "error", delErr)
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if err := s.auth.SendVerificationEmail(ctx, principalID); err != nil {
		slog.Warn("send verification email", "principalId", principalID, "error", err)
	}

	return &Registration{PrincipalID: principalID, Profile: profile}, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) (string, error) {
	principalID, err := s.auth.VerifyEmail(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.profiles.SetVerified(ctx, principalID); err != nil {
		return "", fmt.Errorf("mark profile verified: %w", err)
	}
	return principalID, nil
}

func (s *accountService) ResendVerification(ctx context.Context, email, password string) error {
	account, err := s.auth.CheckCredentials(ctx, email, password)
	if err != nil {
		return err
	}
	if account.Verified {
		return fmt.Errorf("%w: email already verified", models.ErrConflict)
	}
	return s.auth.SendVerificationEmail(ctx, account.AccountID)
}

// DeleteAccount re-authenticates, removes the account and tombstones the profile.
// Posts stay in place and render with the deleted-user placeholder.
func (s *accountService) DeleteAccount(ctx context.Context, principalID, password string) error {
	if principalID == "" {
		return models.ErrAuthRequired
	}
	if err := s.auth.Reauthenticate(ctx, principalID, password); err != nil {
		return err
	}

	if err := s.auth.DeleteAccount(ctx, principalID); err != nil {
		return err
	}
	if err := s.profiles.DeleteProfile(ctx, principalID); err != nil {
		return fmt.Errorf("tombstone profile: %w", err)
	}
	return nil
}
