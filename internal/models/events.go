package models

import "time"

const (
	CollectionPosts    = "posts"
	CollectionLikes    = "likes"
	CollectionComments = "comments"
	CollectionProfiles = "profiles"
	CollectionFollows  = "follows"

	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent describes a committed write, as seen by watchers. TargetUserID is
// the followee on follow changes.
type ChangeEvent struct {
	Collection   string    `json:"collection"`
	Op           string    `json:"op"`
	DocumentID   string    `json:"documentId"`
	PostID       string    `json:"postId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	TargetUserID string    `json:"targetUserId,omitempty"`
	Count        *int      `json:"count,omitempty"`
	At           time.Time `json:"at"`
}
