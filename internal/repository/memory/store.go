// Package memory is an in-process Document Store used by tests. It honours the
// same contracts as the Postgres repositories: counters move with their ledger
// rows under one lock and tombstones hide records from listings. Committed
// writes are published to watchers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lorelink/internal/models"
	"lorelink/internal/repository"
)

type likeKey struct {
	postID string
	userID string
}

type followKey struct {
	followerID string
	followeeID string
}

type Store struct {
	*repository.Broadcaster

	mu       sync.Mutex
	accounts map[string]*models.Account
	profiles map[string]*models.Profile
	posts    map[string]*models.Post
	likes    map[likeKey]*models.Like
	comments map[string]*models.Comment
	follows  map[followKey]*models.Follow
	fault    error
}

func New() *Store {
	return &Store{
		Broadcaster: repository.NewBroadcaster(256),
		accounts:    make(map[string]*models.Account),
		profiles:    make(map[string]*models.Profile),
		posts:       make(map[string]*models.Post),
		likes:       make(map[likeKey]*models.Like),
		comments:    make(map[string]*models.Comment),
		follows:     make(map[followKey]*models.Follow),
	}
}

func (s *Store) Repository() *repository.Repository {
	return &repository.Repository{
		Account:     accounts{s},
		Profile:     profiles{s},
		Post:        posts{s},
		Interaction: interactions{s},
		Follow:      follows{s},
		Consistency: consistency{s},
	}
}

// FailNext makes the next store call return err without touching any state.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// LikeRecords counts live likes for a post, for checking counters against the ledger.
func (s *Store) LikeRecords(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, like := range s.likes {
		if k.postID == postID && like.DeletedAt == nil {
			n++
		}
	}
	return n
}

// lock acquires the store and returns a pending fault or a context error.
func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.fault != nil {
		err := s.fault
		s.fault = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type accounts struct{ s *Store }

func (r accounts) Create(ctx context.Context, account *models.Account) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && strings.EqualFold(a.Email, account.Email) {
			return fmt.Errorf("%w: email %s is already registered", models.ErrConflict, account.Email)
		}
	}
	if account.AccountID == "" {
		account.AccountID = uuid.New().String()
	}
	account.CreatedAt = now()
	stored := *account
	r.s.accounts[account.AccountID] = &stored
	return nil
}

func (r accounts) find(ctx context.Context, match func(*models.Account) bool) (*models.Account, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && match(a) {
			found := *a
			return &found, nil
		}
	}
	return nil, fmt.Errorf("account: %w", models.ErrNotFound)
}

func (r accounts) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	return r.find(ctx, func(a *models.Account) bool { return a.AccountID == accountID })
}

func (r accounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find(ctx, func(a *models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (r accounts) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Account, error) {
	account, err := r.find(ctx, func(a *models.Account) bool {
		return a.RefreshToken != nil && *a.RefreshToken == refreshToken
	})
	if err != nil {
		return nil, err
	}
	if account.RefreshTokenExpiryTime == nil || account.RefreshTokenExpiryTime.Before(time.Now()) {
		return nil, fmt.Errorf("refresh token expired: %w", models.ErrAuthRequired)
	}
	return account, nil
}

func (r accounts) update(ctx context.Context, accountID string, apply func(*models.Account)) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[accountID]
	if !ok || a.DeletedAt != nil {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	apply(a)
	return nil
}

func (r accounts) SetVerificationToken(ctx context.Context, accountID, token string) error {
	return r.update(ctx, accountID, func(a *models.Account) { a.VerificationToken = &token })
}

func (r accounts) VerifyByToken(ctx context.Context, token string) (*models.Account, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && a.VerificationToken != nil && *a.VerificationToken == token {
			a.Verified = true
			a.VerificationToken = nil
			verified := *a
			return &verified, nil
		}
	}
	return nil, fmt.Errorf("verify email: %w", models.ErrNotFound)
}

func (r accounts) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	return r.update(ctx, accountID, func(a *models.Account) { a.PasswordHash = passwordHash })
}

func (r accounts) UpdateRefreshToken(ctx context.Context, accountID string, refreshToken *string, expiryTime *time.Time) error {
	return r.update(ctx, accountID, func(a *models.Account) {
		a.RefreshToken = refreshToken
		a.RefreshTokenExpiryTime = expiryTime
	})
}

func (r accounts) SoftDelete(ctx context.Context, accountID string) error {
	return r.update(ctx, accountID, func(a *models.Account) {
		deletedAt := now()
		a.DeletedAt = &deletedAt
		a.RefreshToken = nil
		a.RefreshTokenExpiryTime = nil
		a.VerificationToken = nil
	})
}

func (r accounts) Purge(ctx context.Context, accountID string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[accountID]; !ok {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	delete(r.s.accounts, accountID)
	return nil
}

type profiles struct{ s *Store }

func (r profiles) Create(ctx context.Context, profile *models.Profile) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for _, p := range r.s.profiles {
		if p.Handle == profile.Handle {
			return fmt.Errorf("%w: handle %s is taken", models.ErrConflict, profile.Handle)
		}
	}
	profile.CreatedAt = now()
	profile.UpdatedAt = profile.CreatedAt
	stored := *profile
	r.s.profiles[profile.UserID] = &stored
	return nil
}

func (r profiles) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	found := *p
	return &found, nil
}

func (r profiles) HandlesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var handles []string
	for _, p := range r.s.profiles {
		if strings.HasPrefix(p.Handle, prefix) {
			handles = append(handles, p.Handle)
		}
	}
	sort.Strings(handles)
	return handles, nil
}

func (r profiles) Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}

	p, ok := r.s.profiles[userID]
	if !ok || p.DeletedAt != nil {
		r.s.mu.Unlock()
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Bio != nil {
		p.Bio = *patch.Bio
	}
	if patch.AvatarRef != nil {
		p.AvatarRef = *patch.AvatarRef
	}
	p.UpdatedAt = now()
	updated := *p
	r.s.mu.Unlock()

	r.s.Publish(models.ChangeEvent{Collection: models.CollectionProfiles, Op: models.OpUpdate, DocumentID: userID, UserID: userID, At: updated.UpdatedAt})
	return &updated, nil
}

func (r profiles) SetVerified(ctx context.Context, userID string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	p.Verified = true
	return nil
}

func (r profiles) Tombstone(ctx context.Context, userID string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}

	p, ok := r.s.profiles[userID]
	if !ok || p.DeletedAt != nil {
		r.s.mu.Unlock()
		return fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	deletedAt := now()
	p.DeletedAt = &deletedAt
	for k := range r.s.follows {
		if k.followerID != userID && k.followeeID != userID {
			continue
		}
		if other, ok := r.s.profiles[k.followeeID]; ok && k.followerID == userID && other.FollowerCount > 0 {
			other.FollowerCount--
		}
		if other, ok := r.s.profiles[k.followerID]; ok && k.followeeID == userID && other.FollowingCount > 0 {
			other.FollowingCount--
		}
		delete(r.s.follows, k)
	}
	r.s.mu.Unlock()

	r.s.Publish(models.ChangeEvent{Collection: models.CollectionProfiles, Op: models.OpDelete, DocumentID: userID, UserID: userID, At: deletedAt})
	return nil
}

type posts struct{ s *Store }

func (r posts) Create(ctx context.Context, post *models.Post) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}

	if post.PostID == "" {
		post.PostID = uuid.New().String()
	}
	post.LikeCount = 0
	post.CommentCount = 0
	stored := *post
	r.s.posts[post.PostID] = &stored
	r.s.mu.Unlock()

	r.s.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpInsert, DocumentID: post.PostID, PostID: post.PostID, UserID: post.AuthorID, At: post.CreatedAt})
	return nil
}

func (r posts) GetByID(ctx context.Context, postID string) (*models.Post, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.posts[postID]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	found := *p
	return &found, nil
}

// page selects live posts matching keep, newest first, strictly older than the cursor.
func (r posts) page(ctx context.Context, q models.PageQuery, keep func(*models.Post) bool) ([]models.Post, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	out := []models.Post{}
	for _, p := range r.s.posts {
		if p.DeletedAt != nil || !keep(p) {
			continue
		}
		if q.Cursor != nil && !p.Cursor().Before(*q.Cursor) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Cursor().Before(out[i].Cursor()) })

	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r posts) List(ctx context.Context, q models.PageQuery) ([]models.Post, error) {
	return r.page(ctx, q, func(*models.Post) bool { return true })
}

func (r posts) ListByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Post, error) {
	return r.page(ctx, q, func(p *models.Post) bool { return p.AuthorID == authorID })
}

func (r posts) ListNewer(ctx context.Context, since models.Cursor, limit int) ([]models.Post, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	out := []models.Post{}
	for _, p := range r.s.posts {
		if p.DeletedAt == nil && since.Before(p.Cursor()) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cursor().Before(out[j].Cursor()) })

	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r posts) Tombstone(ctx context.Context, postID string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}

	p, ok := r.s.posts[postID]
	if !ok || p.DeletedAt != nil {
		r.s.mu.Unlock()
		return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	deletedAt := now()
	p.DeletedAt = &deletedAt
	for _, c := range r.s.comments {
		if c.PostID == postID && c.DeletedAt == nil {
			c.DeletedAt = &deletedAt
		}
	}
	for k, like := range r.s.likes {
		if k.postID == postID && like.DeletedAt == nil {
			like.DeletedAt = &deletedAt
		}
	}
	r.s.mu.Unlock()

	r.s.Publish(models.ChangeEvent{Collection: models.CollectionPosts, Op: models.OpDelete, DocumentID: postID, PostID: postID, At: deletedAt})
	return nil
}

type interactions struct{ s *Store }

func (r interactions) ToggleLike(ctx context.Context, postID, userID string) (models.LikeResult, error) {
	var result models.LikeResult
	if err := r.s.lock(ctx); err != nil {
		return result, err
	}

	p, ok := r.s.posts[postID]
	if !ok || p.DeletedAt != nil {
		r.s.mu.Unlock()
		return result, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}

	key := likeKey{postID: postID, userID: userID}
	if _, exists := r.s.likes[key]; exists {
		delete(r.s.likes, key)
		if p.LikeCount > 0 {
			p.LikeCount--
		}
	} else {
		r.s.likes[key] = &models.Like{PostID: postID, UserID: userID, CreatedAt: now()}
		p.LikeCount++
		result.Liked = true
	}
	result.NewCount = p.LikeCount
	r.s.mu.Unlock()

	op := models.OpInsert
	if !result.Liked {
		op = models.OpDelete
	}
	count := result.NewCount
	r.s.Publish(models.ChangeEvent{Collection: models.CollectionLikes, Op: op, DocumentID: postID + ":" + userID, PostID: postID, UserID: userID, Count: &count, At: now()})
	return result, nil
}

func (r interactions) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	liked := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		if like, ok := r.s.likes[likeKey{postID: id, userID: userID}]; ok && like.DeletedAt == nil {
			liked[id] = true
		}
	}
	return liked, nil
}

func (r interactions) AddComment(ctx context.Context, comment *models.Comment) (int, error) {
	if err := r.s.lock(ctx); err != nil {
		return 0, err
	}

	p, ok := r.s.posts[comment.PostID]
	if !ok || p.DeletedAt != nil {
		r.s.mu.Unlock()
		return 0, fmt.Errorf("post %s: %w", comment.PostID, models.ErrNotFound)
	}
	if comment.CommentID == "" {
		comment.CommentID = uuid.New().String()
	}
	stored := *comment
	r.s.comments[comment.CommentID] = &stored
	p.CommentCount++
	count := p.CommentCount
	r.s.mu.Unlock()

	r.s.Publish(models.ChangeEvent{Collection: models.CollectionComments, Op: models.OpInsert, DocumentID: comment.CommentID, PostID: comment.PostID, UserID: comment.AuthorID, Count: &count, At: comment.CreatedAt})
	return count, nil
}

func (r interactions) comments(ctx context.Context, q models.PageQuery, newestFirst bool, keep func(*models.Comment) bool) ([]models.Comment, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	out := []models.Comment{}
	for _, c := range r.s.comments {
		if c.DeletedAt != nil || !keep(c) {
			continue
		}
		if q.Cursor != nil {
			if newestFirst && !c.Cursor().Before(*q.Cursor) {
				continue
			}
			if !newestFirst && !q.Cursor.Before(c.Cursor()) {
				continue
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[j].Cursor().Before(out[i].Cursor())
		}
		return out[i].Cursor().Before(out[j].Cursor())
	})

	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r interactions) ListComments(ctx context.Context, postID string, order models.CommentOrder, q models.PageQuery) ([]models.Comment, error) {
	return r.comments(ctx, q, order == models.CommentsNewestFirst, func(c *models.Comment) bool { return c.PostID == postID })
}

func (r interactions) ListCommentsByAuthor(ctx context.Context, authorID string, q models.PageQuery) ([]models.Comment, error) {
	comments, err := r.comments(ctx, q, true, func(c *models.Comment) bool { return c.AuthorID == authorID })
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range comments {
		if p, ok := r.s.posts[comments[i].PostID]; ok {
			comments[i].PostText = p.Text
		}
	}
	return comments, nil
}

type follows struct{ s *Store }

func (r follows) ToggleFollow(ctx context.Context, followerID, followeeID string) (models.FollowResult, error) {
	var result models.FollowResult
	if err := r.s.lock(ctx); err != nil {
		return result, err
	}

	followee, ok := r.s.profiles[followeeID]
	if !ok || followee.DeletedAt != nil {
		r.s.mu.Unlock()
		return result, fmt.Errorf("profile %s: %w", followeeID, models.ErrNotFound)
	}
	follower, ok := r.s.profiles[followerID]
	if !ok || follower.DeletedAt != nil {
		r.s.mu.Unlock()
		return result, fmt.Errorf("profile %s: %w", followerID, models.ErrNotFound)
	}

	key := followKey{followerID: followerID, followeeID: followeeID}
	if _, exists := r.s.follows[key]; exists {
		delete(r.s.follows, key)
		if follower.FollowingCount > 0 {
			follower.FollowingCount--
		}
		if followee.FollowerCount > 0 {
			followee.FollowerCount--
		}
	} else {
		r.s.follows[key] = &models.Follow{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: now()}
		follower.FollowingCount++
		followee.FollowerCount++
		result.Following = true
	}
	result.FollowerCount = followee.FollowerCount
	r.s.mu.Unlock()

	op := models.OpInsert
	if !result.Following {
		op = models.OpDelete
	}
	count := result.FollowerCount
	r.s.Publish(models.ChangeEvent{Collection: models.CollectionFollows, Op: op, DocumentID: followerID + ":" + followeeID, UserID: followerID, TargetUserID: followeeID, Count: &count, At: now()})
	return result, nil
}

func (r follows) FollowedIDs(ctx context.Context, followerID string, userIDs []string) (map[string]bool, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	followed := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if _, ok := r.s.follows[followKey{followerID: followerID, followeeID: id}]; ok {
			followed[id] = true
		}
	}
	return followed, nil
}

func (r follows) ListFollowers(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error) {
	return r.list(ctx, q, func(f *models.Follow) (string, bool) { return f.FollowerID, f.FolloweeID == userID })
}

func (r follows) ListFollowing(ctx context.Context, userID string, q models.PageQuery) ([]models.Follow, error) {
	return r.list(ctx, q, func(f *models.Follow) (string, bool) { return f.FolloweeID, f.FollowerID == userID })
}

// list pages edges accepted by side, newest first; side also names the user the cursor is keyed on.
func (r follows) list(ctx context.Context, q models.PageQuery, side func(*models.Follow) (string, bool)) ([]models.Follow, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	cursorOf := func(f models.Follow) models.Cursor {
		other, _ := side(&f)
		return models.Cursor{CreatedAt: f.CreatedAt, ID: other}
	}

	out := []models.Follow{}
	for _, f := range r.s.follows {
		if _, ok := side(f); !ok {
			continue
		}
		if q.Cursor != nil && !cursorOf(*f).Before(*q.Cursor) {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return cursorOf(out[j]).Before(cursorOf(out[i])) })

	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type consistency struct{ s *Store }

func (r consistency) CounterDrift(ctx context.Context, limit int) ([]models.CounterDrift, error) {
	if err := r.s.lock(ctx); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	drift := []models.CounterDrift{}
	for _, p := range r.s.posts {
		if p.DeletedAt != nil {
			continue
		}
		d := r.countLocked(p)
		if d.Likes != d.LikeCount || d.Comments != d.CommentCount {
			drift = append(drift, d)
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].PostID < drift[j].PostID })
	if limit = clampLimit(limit); len(drift) > limit {
		drift = drift[:limit]
	}
	return drift, nil
}

func (r consistency) RepairCounters(ctx context.Context, postID string) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.posts[postID]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	d := r.countLocked(p)
	p.LikeCount = d.Likes
	p.CommentCount = d.Comments
	return nil
}

func (r consistency) countLocked(p *models.Post) models.CounterDrift {
	d := models.CounterDrift{PostID: p.PostID, LikeCount: p.LikeCount, CommentCount: p.CommentCount}
	for k, like := range r.s.likes {
		if k.postID == p.PostID && like.DeletedAt == nil {
			d.Likes++
		}
	}
	for _, c := range r.s.comments {
		if c.PostID == p.PostID && c.DeletedAt == nil {
			d.Comments++
		}
	}
	return d
}

// SetCounters overwrites a post's cached counters, simulating drift left by an old client.
func (s *Store) SetCounters(postID string, likeCount, commentCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.posts[postID]; ok {
		p.LikeCount = likeCount
		p.CommentCount = commentCount
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
