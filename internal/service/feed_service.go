package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"lorelink/internal/config"
	"lorelink/internal/models"
)

// authorLookupLimit bounds concurrent profile reads while assembling one page.
const authorLookupLimit = 8

type FeedService interface {
	// ComposeFeed pages backwards from q.Cursor, or forwards from q.Since when set.
	// Entries are always newest first.
	ComposeFeed(ctx context.Context, viewerID string, q models.FeedQuery) (*models.FeedPage, error)
	ComposeUserFeed(ctx context.Context, viewerID, authorID string, q models.FeedQuery) (*models.FeedPage, error)
	ComposeThread(ctx context.Context, viewerID, postID string, order models.CommentOrder, q models.PageQuery) (*models.Thread, error)
}

type feedService struct {
	posts        PostService
	interactions InteractionService
	follows      FollowService
	profiles     ProfileService
	cfg          *config.Config
}

func NewFeedService(posts PostService, interactions InteractionService, follows FollowService, profiles ProfileService, cfg *config.Config) FeedService {
	return &feedService{
		posts:        posts,
		interactions: interactions,
		follows:      follows,
		profiles:     profiles,
		cfg:          cfg,
	}
}

func (s *feedService) ComposeFeed(ctx context.Context, viewerID string, q models.FeedQuery) (*models.FeedPage, error) {
	limit := pageLimit(q.Limit, s.cfg)

	if q.Since != nil {
		return s.composeNewer(ctx, viewerID, *q.Since, limit)
	}

	posts, err := s.posts.ListPosts(ctx, models.PageQuery{Cursor: q.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	return s.page(ctx, viewerID, posts, limit)
}

func (s *feedService) ComposeUserFeed(ctx context.Context, viewerID, authorID string, q models.FeedQuery) (*models.FeedPage, error) {
	if q.Since != nil {
		return nil, fmt.Errorf("%w: since is only supported on the home feed", models.ErrValidation)
	}
	limit := pageLimit(q.Limit, s.cfg)

	posts, err := s.posts.ListByAuthor(ctx, authorID, models.PageQuery{Cursor: q.Cursor, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	return s.page(ctx, viewerID, posts, limit)
}

// page turns a newest-first limit+1 fetch into a FeedPage.
func (s *feedService) page(ctx context.Context, viewerID string, posts []models.Post, limit int) (*models.FeedPage, error) {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	entries, err := s.assemble(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}

	page := &models.FeedPage{Entries: entries, HasMore: hasMore}
	if len(posts) > 0 {
		page.HeadCursor = posts[0].Cursor().Encode()
		if hasMore {
			page.NextCursor = posts[len(posts)-1].Cursor().Encode()
		}
	}
	return page, nil
}

// composeNewer returns up to limit posts above the head watermark. HasMore means
// even newer posts remain; the caller repeats with the returned HeadCursor.
func (s *feedService) composeNewer(ctx context.Context, viewerID string, since models.Cursor, limit int) (*models.FeedPage, error) {
	posts, err := s.posts.ListNewer(ctx, since, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	newestFirst := make([]models.Post, len(posts))
	for i, p := range posts {
		newestFirst[len(posts)-1-i] = p
	}

	entries, err := s.assemble(ctx, viewerID, newestFirst)
	if err != nil {
		return nil, err
	}

	page := &models.FeedPage{Entries: entries, HasMore: hasMore, HeadCursor: since.Encode()}
	if len(newestFirst) > 0 {
		page.HeadCursor = newestFirst[0].Cursor().Encode()
	}
	return page, nil
}

func (s *feedService) ComposeThread(ctx context.Context, viewerID, postID string, order models.CommentOrder, q models.PageQuery) (*models.Thread, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	entries, err := s.assemble(ctx, viewerID, []models.Post{*post})
	if err != nil {
		return nil, err
	}

	comments, err := s.interactions.ListComments(ctx, postID, order, q)
	if err != nil {
		return nil, err
	}

	authorIDs := make([]string, 0, len(comments.Comments))
	for _, c := range comments.Comments {
		authorIDs = append(authorIDs, c.AuthorID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorLookupLimit)
	authors := s.lookupAuthors(gctx, g, authorIDs)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	thread := &models.Thread{
		Entry:      entries[0],
		Comments:   make([]models.ThreadComment, 0, len(comments.Comments)),
		NextCursor: comments.NextCursor,
		HasMore:    comments.HasMore,
	}
	for _, c := range comments.Comments {
		thread.Comments = append(thread.Comments, models.ThreadComment{Comment: c, AuthorProfile: authors.get(c.AuthorID)})
	}
	return thread, nil
}

// assemble joins each post with its author's current profile and the viewer's like and follow state.
// Counters are read from the post as stored; they are never recomputed here.
func (s *feedService) assemble(ctx context.Context, viewerID string, posts []models.Post) ([]models.FeedEntry, error) {
	entries := make([]models.FeedEntry, 0, len(posts))
	if len(posts) == 0 {
		return entries, nil
	}

	postIDs := make([]string, 0, len(posts))
	authorIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.PostID)
		authorIDs = append(authorIDs, p.AuthorID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorLookupLimit)

	var liked, followed map[string]bool
	g.Go(func() error {
		var err error
		liked, err = s.interactions.LikedPostIDs(gctx, viewerID, postIDs)
		return err
	})
	g.Go(func() error {
		var err error
		followed, err = s.follows.FollowedIDs(gctx, viewerID, authorIDs)
		return err
	})
	authors := s.lookupAuthors(gctx, g, authorIDs)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range posts {
		entries = append(entries, models.FeedEntry{
			Post:           p,
			AuthorProfile:  authors.get(p.AuthorID),
			LikeCount:      p.LikeCount,
			CommentCount:   p.CommentCount,
			ViewerHasLiked: liked[p.PostID],
			AuthorFollowed: followed[p.AuthorID],
		})
	}
	return entries, nil
}

type authorSet struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
}

func (a *authorSet) get(userID string) *models.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profiles[userID]
}

// lookupAuthors schedules one LookupAuthor per distinct id on g. Results are
// complete once g.Wait returns without error.
func (s *feedService) lookupAuthors(ctx context.Context, g *errgroup.Group, userIDs []string) *authorSet {
	set := &authorSet{profiles: make(map[string]*models.Profile, len(userIDs))}

	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			profile, err := s.profiles.LookupAuthor(ctx, id)
			if err != nil {
				return fmt.Errorf("author %s: %w", id, err)
			}
			set.mu.Lock()
			set.profiles[id] = profile
			set.mu.Unlock()
			return nil
		})
	}
	return set
}
