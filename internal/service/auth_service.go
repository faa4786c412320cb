package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
	"lorelink/internal/session"
)

// Session is the result of a successful sign-in. Tokens are only issued to verified accounts.
type Session struct {
	PrincipalID  string `json:"principalId"`
	Verified     bool   `json:"verified"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type AuthService interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, principalID string) error
	RefreshTokens(ctx context.Context, refreshToken string) (*Session, error)
	SendVerificationEmail(ctx context.Context, principalID string) error
	VerifyEmail(ctx context.Context, token string) (string, error)
	ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error
	DeleteAccount(ctx context.Context, principalID string) error
	// DiscardSignUp removes an account whose registration could not complete.
	DiscardSignUp(ctx context.Context, principalID string) error
	// Reauthenticate checks password against the principal's current credentials.
	Reauthenticate(ctx context.Context, principalID, password string) error
	// CheckCredentials resolves an email/password pair without issuing tokens.
	CheckCredentials(ctx context.Context, email, password string) (*models.Account, error)
	ParseAccessToken(token string) (session.Principal, error)
}

type authService struct {
	accountRepo repository.AccountRepository
	events      events.Publisher
	cfg         *config.Config
	validate    *validator.Validate
}

func NewAuthService(accountRepo repository.AccountRepository, publisher events.Publisher, cfg *config.Config) AuthService {
	return &authService{
		accountRepo: accountRepo,
		events:      publisher,
		cfg:         cfg,
		validate:    validator.New(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("%w: invalid email", models.ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		AccountID:    uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return "", err
	}

	return account.AccountID, nil
}

func (s *authService) CheckCredentials(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accountRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return account, nil
}

func (s *authService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.CheckCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !account.Verified {
		return nil, fmt.Errorf("%w: %s", models.ErrEmailNotVerified, account.Email)
	}

	return s.issue(ctx, account)
}

func (s *authService) issue(ctx context.Context, account *models.Account) (*Session, error) {
	accessToken, err := s.generateAccessToken(account)
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.New().String()
	expiry := time.Now().Add(s.cfg.RefreshTokenDuration)
	if err := s.accountRepo.UpdateRefreshToken(ctx, account.AccountID, &refreshToken, &expiry); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		PrincipalID:  account.AccountID,
		Verified:     account.Verified,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *authService) SignOut(ctx context.Context, principalID string) error {
	return s.accountRepo.UpdateRefreshToken(ctx, principalID, nil, nil)
}

func (s *authService) RefreshTokens(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: refresh token is required", models.ErrValidation)
	}

	account, err := s.accountRepo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("invalid refresh token: %w", models.ErrAuthRequired)
		}
		return nil, err
	}

	return s.issue(ctx, account)
}

func (s *authService) SendVerificationEmail(ctx context.Context, principalID string) error {
	account, err := s.accountRepo.GetByID(ctx, principalID)
	if err != nil {
		return err
	}
	if account.Verified {
		return fmt.Errorf("%w: email already verified", models.ErrConflict)
	}

	token := uuid.New().String()
	if err := s.accountRepo.SetVerificationToken(ctx, principalID, token); err != nil {
		return err
	}

	events.Emit(ctx, s.events, events.AccountVerificationRequested, principalID, map[string]string{
		"principalId": principalID,
		"email":       account.Email,
		"token":       token,
	})
	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: verification token is required", models.ErrValidation)
	}

	account, err := s.accountRepo.VerifyByToken(ctx, token)
	if err != nil {
		return "", err
	}
	return account.AccountID, nil
}

func (s *authService) Reauthenticate(ctx context.Context, principalID, password string) error {
	account, err := s.accountRepo.GetByID(ctx, principalID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return models.ErrInvalidCredentials
	}
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := s.Reauthenticate(ctx, principalID, oldPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.accountRepo.UpdatePasswordHash(ctx, principalID, string(hash))
}

func (s *authService) DeleteAccount(ctx context.Context, principalID string) error {
	if err := s.accountRepo.SoftDelete(ctx, principalID); err != nil {
		return err
	}

	events.Emit(ctx, s.events, events.AccountDeleted, principalID, map[string]string{"principalId": principalID})
	return nil
}

func (s *authService) DiscardSignUp(ctx context.Context, principalID string) error {
	return s.accountRepo.Purge(ctx, principalID)
}

func (s *authService) generateAccessToken(account *models.Account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      account.AccountID,
		"verified": account.Verified,
		"exp":      now.Add(s.cfg.AccessTokenDuration).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return tokenString, nil
}

func (s *authService) ParseAccessToken(tokenString string) (session.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return session.Principal{}, fmt.Errorf("invalid access token: %w", models.ErrAuthRequired)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return session.Principal{}, fmt.Errorf("invalid token claims: %w", models.ErrAuthRequired)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return session.Principal{}, fmt.Errorf("token has no subject: %w", models.ErrAuthRequired)
	}
	verified, _ := claims["verified"].(bool)

	return session.Principal{UserID: sub, Verified: verified}, nil
}
