package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lorelink/internal/events"
	"lorelink/internal/models"
	"lorelink/internal/repository"
)

type PostService interface {
	CreatePost(ctx context.Context, authorID, text string, generated bool) (*models.Post, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	DeletePost(ctx context.Context, postID, requesterID string) error
	ListPosts(ctx context.Context, q models.PageQuery) ([]models.Post, error)
	ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error)
}

type postService struct {
	postRepo    repository.PostRepository
	profileRepo repository.ProfileRepository
	events      events.Publisher
	clock       Clock
}

func NewPostService(postRepo repository.PostRepository, profileRepo repository.ProfileRepository, publisher events.Publisher, clock Clock) PostService {
	return &postService{
		postRepo:    postRepo,
		profileRepo: profileRepo,
		events:      publisher,
		clock:       clock,
	}
}

func (s *postService) CreatePost(ctx context.Context, authorID, text string, generated bool) (*models.Post, error) {
	if authorID == "" {
		return nil, models.ErrAuthRequired
	}

	text, err := validateText("text", text, MaxPostLength)
	if err != nil {
		return nil, err
	}

	if err := requireMember(ctx, s.profileRepo, authorID); err != nil {
		return nil, err
	}

	post := &models.Post{
		PostID:    uuid.New().String(),
		AuthorID:  authorID,
		Text:      text,
		Generated: generated,
		CreatedAt: s.clock.Now(),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, events.PostCreated, post.PostID, post)
	return post, nil
}

func (s *postService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	if postID == "" {
		return nil, fmt.Errorf("%w: postId is required", models.ErrValidation)
	}
	return s.postRepo.GetByID(ctx, postID)
}

func (s *postService) DeletePost(ctx context.Context, postID, requesterID string) error {
	if requesterID == "" {
		return models.ErrAuthRequired
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		return fmt.Errorf("%w: only the author can delete post %s", models.ErrPermissionDenied, postID)
	}

	if err := s.postRepo.Tombstone(ctx, postID); err != nil {
		return err
	}

	events.Emit(ctx, s.events, events.PostDeleted, postID, map[string]string{"postId": postID, "authorId": requesterID})
	return nil
}

func (s *postService) ListPosts(ctx context.Context, q models.PageQuery) ([]models.Post, error) {
	return s.postRepo.List(ctx, q)
}

func (s *postService) ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error) {
	return s.postRepo.ListNewer(ctx, since, limit)
}

func (s *postService) ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error) {
	return s.postRepo.ListByAuthor(ctx, authorID, q)
}
