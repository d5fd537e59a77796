package storage

import (
	"context"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

// Backend makes the engagement store durable. The store keeps the working set
// in memory and hands every mutation to Commit before applying it, so a failed
// commit leaves memory untouched.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, cs *Changeset) error
	Close() error
}

// Snapshot is the full durable state. Users and posts are in ascending id
// order, follows and bookmarks in creation order, notifications in ascending
// sequence order.
type Snapshot struct {
	Users         []*user.User
	Posts         []*post.Post
	Follows       []user.Follow
	Bookmarks     []user.Bookmark
	Notifications []*notification.Notification
}

func (s *Snapshot) Empty() bool {
	return len(s.Users) == 0 && len(s.Posts) == 0 && len(s.Follows) == 0 &&
		len(s.Bookmarks) == 0 && len(s.Notifications) == 0
}

// Changeset is the set of writes produced by one store operation. Users, Posts
// and Notifications are full documents to upsert.
type Changeset struct {
	Users            []*user.User
	Posts            []*post.Post
	FollowsAdded     []user.Follow
	FollowsRemoved   []user.Follow
	BookmarksAdded   []user.Bookmark
	BookmarksRemoved []user.Bookmark
	Notifications    []*notification.Notification
}
