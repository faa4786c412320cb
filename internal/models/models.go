package models

import (
	"time"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unspecified"

	DefaultDisplayName = "new user"
	DefaultBio         = "Hey There, I am new to Lorelink!"

	DeletedUserHandle      = "deleted"
	DeletedUserDisplayName = "deleted user"
)

// Account is the identity record behind a principal. It is never exposed over HTTP.
type Account struct {
	AccountID              string     `json:"accountId" db:"account_id"`
	Email                  string     `json:"email" db:"email"`
	PasswordHash           string     `json:"-" db:"password_hash"`
	Verified               bool       `json:"verified" db:"verified"`
	VerificationToken      *string    `json:"-" db:"verification_token"`
	RefreshToken           *string    `json:"-" db:"refresh_token"`
	RefreshTokenExpiryTime *time.Time `json:"-" db:"refresh_token_expiry_time"`
	CreatedAt              time.Time  `json:"createdAt" db:"created_at"`
	DeletedAt              *time.Time `json:"-" db:"deleted_at"`
}

type Profile struct {
	UserID      string     `json:"userId" db:"user_id"`
	Handle      string     `json:"handle" db:"handle"`
	DisplayName string     `json:"displayName" db:"display_name"`
	Bio         string     `json:"bio" db:"bio"`
	AvatarRef   string     `json:"avatarRef,omitempty" db:"avatar_ref"`
	Gender      string     `json:"gender" db:"gender"`
	Verified    bool       `json:"verified" db:"verified"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`

	FollowerCount  int `json:"followerCount" db:"follower_count"`
	FollowingCount int `json:"followingCount" db:"following_count"`

	AvatarURL string `json:"avatarUrl" db:"-"`
	Complete  bool   `json:"complete" db:"-"`
}

func (p *Profile) Tombstoned() bool {
	return p.DeletedAt != nil
}

// ProfilePatch is a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarRef   *string `json:"avatarRef,omitempty"`
}

func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.Bio == nil && p.AvatarRef == nil
}

type Post struct {
	PostID       string     `json:"postId" db:"post_id"`
	AuthorID     string     `json:"authorId" db:"author_id"`
	Text         string     `json:"text" db:"text"`
	Generated    bool       `json:"generated" db:"generated"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	LikeCount    int        `json:"likeCount" db:"like_count"`
	CommentCount int        `json:"commentCount" db:"comment_count"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
}

func (p *Post) Cursor() Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.PostID}
}

type Like struct {
	PostID    string     `json:"postId" db:"post_id"`
	UserID    string     `json:"userId" db:"user_id"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

type LikeResult struct {
	Liked    bool `json:"liked"`
	NewCount int  `json:"newCount"`
}

type Comment struct {
	CommentID string     `json:"commentId" db:"comment_id"`
	PostID    string     `json:"postId" db:"post_id"`
	AuthorID  string     `json:"authorId" db:"author_id"`
	Text      string     `json:"text" db:"text"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`

	// PostText is filled on activity listings only.
	PostText string `json:"postText,omitempty" db:"post_text"`
}

func (c *Comment) Cursor() Cursor {
	return Cursor{CreatedAt: c.CreatedAt, ID: c.CommentID}
}

// Follow is a directed edge from FollowerID to FolloweeID.
type Follow struct {
	FollowerID string    `json:"followerId" db:"follower_id"`
	FolloweeID string    `json:"followeeId" db:"followee_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

type FollowResult struct {
	Following     bool `json:"following"`
	FollowerCount int  `json:"followerCount"`
}

// FollowEntry is one row of a followers or following listing.
type FollowEntry struct {
	Profile    *Profile  `json:"profile"`
	FollowedAt time.Time `json:"followedAt"`
}

type FollowPage struct {
	Entries    []FollowEntry `json:"entries"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// PageQuery is a watermark page request. A nil Cursor starts from the newest (or oldest) item.
type PageQuery struct {
	Cursor *Cursor
	Limit  int
}

type CommentOrder string

const (
	CommentsOldestFirst CommentOrder = "oldest"
	CommentsNewestFirst CommentOrder = "newest"
)

type CommentPage struct {
	Comments   []Comment `json:"comments"`
	NextCursor string    `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`
}

// FeedEntry is assembled per request and never stored.
type FeedEntry struct {
	Post           Post     `json:"post"`
	AuthorProfile  *Profile `json:"authorProfile"`
	LikeCount      int      `json:"likeCount"`
	CommentCount   int      `json:"commentCount"`
	ViewerHasLiked bool     `json:"viewerHasLiked"`
	AuthorFollowed bool     `json:"authorFollowed"`
}

type FeedQuery struct {
	Cursor *Cursor
	Since  *Cursor
	Limit  int
}

type FeedPage struct {
	Entries    []FeedEntry `json:"entries"`
	NextCursor string      `json:"nextCursor,omitempty"`
	HeadCursor string      `json:"headCursor,omitempty"`
	HasMore    bool        `json:"hasMore"`
}

type ThreadComment struct {
	Comment       Comment  `json:"comment"`
	AuthorProfile *Profile `json:"authorProfile"`
}

type Thread struct {
	Entry      FeedEntry       `json:"entry"`
	Comments   []ThreadComment `json:"comments"`
	NextCursor string          `json:"nextCursor,omitempty"`
	HasMore    bool            `json:"hasMore"`
}

// CounterDrift is a post whose cached counters disagree with its live likes or comments.
type CounterDrift struct {
	PostID       string `json:"postId" db:"post_id"`
	LikeCount    int    `json:"likeCount" db:"like_count"`
	Likes        int    `json:"likes" db:"likes"`
	CommentCount int    `json:"commentCount" db:"comment_count"`
	Comments     int    `json:"comments" db:"comments"`
}
