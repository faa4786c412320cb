package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"lorelink/internal/config"
	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
)

type InteractionService interface {
	ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error)
	AddComment(ctx context.Context, postID, userID, text string) (*models.Comment, error)
	ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) (*models.CommentPage, error)
	ListUserComments(ctx context.Context, userID string, q models.PageQuery) (*models.CommentPage, error)
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	// CheckCounters lists posts whose cached counters disagree with the ledger.
	CheckCounters(ctx context.Context, limit int) ([]models.CounterDrift, error)
	RepairCounters(ctx context.Context, postID string) error
}

type interactionService struct {
	interactionRepo repository.InteractionRepository
	postRepo        repository.PostRepository
	profileRepo     repository.ProfileRepository
	consistencyRepo repository.ConsistencyRepository
	events          events.Publisher
	clock           Clock
	cfg             *config.Config
}

func NewInteractionService(
	interactionRepo repository.InteractionRepository,
	postRepo repository.PostRepository,
	profileRepo repository.ProfileRepository,
	consistencyRepo repository.ConsistencyRepository,
	publisher events.Publisher,
	clock Clock,
	cfg *config.Config,
) InteractionService {
	return &interactionService{
		interactionRepo: interactionRepo,
		postRepo:        postRepo,
		profileRepo:     profileRepo,
		consistencyRepo: consistencyRepo,
		events:          publisher,
		clock:           clock,
		cfg:             cfg,
	}
}

func (s *interactionService) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	if userID == "" {
		return models.LikeResult{}, models.ErrAuthRequired
	}
	if postID == "" {
		return models.LikeResult{}, fmt.Errorf("%w: postId is required", models.ErrValidation)
	}
	if err := requireMember(ctx, s.profileRepo, userID); err != nil {
		return models.LikeResult{}, err
	}

	result, err := s.interactionRepo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return models.LikeResult{}, err
	}

	events.Emit(ctx, s.events, events.PostLikeToggled, postID, map[string]any{
		"postId":   postID,
		"userId":   userID,
		"liked":    result.Liked,
		"newCount": result.NewCount,
	})
	return result, nil
}

func (s *interactionService) AddComment(ctx context.Context, postID, userID, text string) (*models.Comment, error) {
	if userID == "" {
		return nil, models.ErrAuthRequired
	}

	text, err := validateText("comment", text, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.profileRepo, userID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		CommentID: uuid.New().String(),
		PostID:    postID,
		AuthorID:  userID,
		Text:      text,
		CreatedAt: s.clock.Now(),
	}

	count, err := s.interactionRepo.AddComment(ctx, comment)
	if err != nil {
		return nil, err
	}
	slog.Debug("comment added", "postId", postID, "commentCount", count)

	events.Emit(ctx, s.events, events.CommentAdded, postID, comment)
	return comment, nil
}

func (s *interactionService) ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) (*models.CommentPage, error) {
	switch order {
	case "":
		order = models.CommentsOldestFirst
	case models.CommentsOldestFirst, models.CommentsNewestFirst:
	default:
		return nil, fmt.Errorf("%w: unknown comment order %q", models.ErrValidation, order)
	}

	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}

	limit := pageLimit(q.Limit, s.cfg)
	comments, err := s.interactionRepo.ListComments(ctx, postID, order, models.PageQuery{Cursor: q.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	return commentPage(comments, limit), nil
}

func (s *interactionService) ListUserComments(ctx context.Context, userID string, q models.PageQuery) (*models.CommentPage, error) {
	limit := pageLimit(q.Limit, s.cfg)
	comments, err := s.interactionRepo.ListCommentsByAuthor(ctx, userID, models.PageQuery{Cursor: q.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	return commentPage(comments, limit), nil
}

func (s *interactionService) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	if userID == "" || len(postIDs) == 0 {
		return map[string]bool{}, nil
	}
	return s.interactionRepo.LikedPostIDs(ctx, userID, postIDs)
}

func (s *interactionService) CheckCounters(ctx context.Context, limit int) ([]models.CounterDrift, error) {
	return s.consistencyRepo.CounterDrift(ctx, limit)
}

func (s *interactionService) RepairCounters(ctx context.Context, postID string) error {
	if err := s.consistencyRepo.RepairCounters(ctx, postID); err != nil {
		return err
	}
	slog.Info("post counters repaired", "postId", postID)
	return nil
}

// commentPage trims a limit+1 fetch down to limit and derives the continuation cursor.
func commentPage(comments []models.Comment, limit int) *models.CommentPage {
	page := &models.CommentPage{Comments: comments}
	if len(comments) > limit {
		page.Comments = comments[:limit]
		page.HasMore = true
		page.NextCursor = page.Comments[limit-1].Cursor().Encode()
	}
	if page.Comments == nil {
		page.Comments = []models.Comment{}
	}
	return page
}
