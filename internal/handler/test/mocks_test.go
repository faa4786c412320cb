package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lorelink/internal/models"
	"lorelink/internal/service"
	"lorelink/internal/session"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (*service.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *MockAuthService) SignOut(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockAuthService) RefreshTokens(ctx context.Context, refreshToken string) (*service.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *MockAuthService) SendVerificationEmail(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	args := m.Called(ctx, principalID, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockAuthService) DeleteAccount(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockAuthService) DiscardSignUp(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockAuthService) Reauthenticate(ctx context.Context, principalID, password string) error {
	args := m.Called(ctx, principalID, password)
	return args.Error(0)
}

func (m *MockAuthService) CheckCredentials(ctx context.Context, email, password string) (*models.Account, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAuthService) ParseAccessToken(token string) (session.Principal, error) {
	args := m.Called(token)
	return args.Get(0).(session.Principal), args.Error(1)
}

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, email, password, confirmPassword, gender string) (*service.Registration, error) {
	args := m.Called(ctx, email, password, confirmPassword, gender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Registration), args.Error(1)
}

func (m *MockAccountService) VerifyEmail(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockAccountService) ResendVerification(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func (m *MockAccountService) DeleteAccount(ctx context.Context, principalID, password string) error {
	args := m.Called(ctx, principalID, password)
	return args.Error(0)
}

type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) CreateProfile(ctx context.Context, userID, seedHandle, gender string) (*models.Profile, error) {
	args := m.Called(ctx, userID, seedHandle, gender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileService) UpdateProfile(ctx context.Context, callerID, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	args := m.Called(ctx, callerID, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileService) LookupAuthor(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileService) SetVerified(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockProfileService) DeleteProfile(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockPostService struct {
	mock.Mock
}

func (m *MockPostService) CreatePost(ctx context.Context, authorID, text string, generated bool) (*models.Post, error) {
	args := m.Called(ctx, authorID, text, generated)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostService) DeletePost(ctx context.Context, postID, requesterID string) error {
	args := m.Called(ctx, postID, requesterID)
	return args.Error(0)
}

func (m *MockPostService) ListPosts(ctx context.Context, q models.PageQuery) ([]models.Post, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.Post), args.Error(1)
}

func (m *MockPostService) ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error) {
	args := m.Called(ctx, since, limit)
	return args.Get(0).([]models.Post), args.Error(1)
}

func (m *MockPostService) ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error) {
	args := m.Called(ctx, authorID, q)
	return args.Get(0).([]models.Post), args.Error(1)
}

type MockInteractionService struct {
	mock.Mock
}

func (m *MockInteractionService) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	args := m.Called(ctx, postID, userID)
	return args.Get(0).(models.LikeResult), args.Error(1)
}

func (m *MockInteractionService) AddComment(ctx context.Context, postID, userID, text string) (*models.Comment, error) {
	args := m.Called(ctx, postID, userID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockInteractionService) ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) (*models.CommentPage, error) {
	args := m.Called(ctx, postID, order, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommentPage), args.Error(1)
}

func (m *MockInteractionService) ListUserComments(ctx context.Context, userID string, q models.PageQuery) (*models.CommentPage, error) {
	args := m.Called(ctx, userID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommentPage), args.Error(1)
}

func (m *MockInteractionService) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userID, postIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockInteractionService) CheckCounters(ctx context.Context, limit int) ([]models.CounterDrift, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.CounterDrift), args.Error(1)
}

func (m *MockInteractionService) RepairCounters(ctx context.Context, postID string) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

type MockFollowService struct {
	mock.Mock
}

func (m *MockFollowService) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	args := m.Called(ctx, followerID, followeeID)
	return args.Get(0).(models.FollowResult), args.Error(1)
}

func (m *MockFollowService) FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, followerID, userIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockFollowService) ListFollowers(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error) {
	args := m.Called(ctx, userID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FollowPage), args.Error(1)
}

func (m *MockFollowService) ListFollowing(ctx context.Context, userID string, q models.PageQuery) (*models.FollowPage, error) {
	args := m.Called(ctx, userID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FollowPage), args.Error(1)
}

type MockFeedService struct {
	mock.Mock
}

func (m *MockFeedService) ComposeFeed(ctx context.Context, viewerID string, q models.FeedQuery) (*models.FeedPage, error) {
	args := m.Called(ctx, viewerID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FeedPage), args.Error(1)
}

func (m *MockFeedService) ComposeUserFeed(ctx context.Context, viewerID, authorID string, q models.FeedQuery) (*models.FeedPage, error) {
	args := m.Called(ctx, viewerID, authorID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FeedPage), args.Error(1)
}

func (m *MockFeedService) ComposeThread(ctx context.Context, viewerID, postID string, order models.CommentOrder, q models.PageQuery) (*models.Thread, error) {
	args := m.Called(ctx, viewerID, postID, order, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

type MockHealth struct {
	mock.Mock
}

func (m *MockHealth) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
