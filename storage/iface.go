package storage

import (
	"context"

	"microblog/domain/feed"
	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

type Storage interface {
	RegisterUser(ctx context.Context, p user.Profile) (*user.User, error)
	GetUserById(ctx context.Context, userId int64) (*user.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*user.User, error)

	AddPost(ctx context.Context, userId int64, text string) (*post.Post, error)
	GetPostById(ctx context.Context, postId int64) (*post.Post, error)

	ToggleLike(ctx context.Context, postId, userId int64) (*post.Post, error)
	ToggleRetweet(ctx context.Context, postId, userId int64) (*post.Post, error)
	ToggleFollow(ctx context.Context, followerId, followeeId int64) (bool, *user.User, error)
	ToggleBookmark(ctx context.Context, userId, postId int64) (bool, error)

	GetFeed(ctx context.Context, page, size int) (*feed.Page, error)
	GetHomeFeed(ctx context.Context, userId int64, page, size int) (*feed.Page, error)
	GetPostsByUserId(ctx context.Context, userId int64, page, size int) (*feed.Page, error)
	GetLikedPosts(ctx context.Context, userId int64, page, size int) (*feed.Page, error)
	GetBookmarks(ctx context.Context, userId int64, page, size int) (*feed.Page, error)
	GetSubscribers(ctx context.Context, userId int64) ([]int64, error)
	GetSubscriptions(ctx context.Context, userId int64) ([]int64, error)

	Search(ctx context.Context, query string) (*feed.SearchResult, error)
	GetTrending(ctx context.Context) ([]feed.Trend, error)
	GetSuggestedUsers(ctx context.Context, userId int64) ([]*user.User, error)

	GetNotifications(ctx context.Context, userId int64) ([]*notification.Notification, int, error)
	MarkNotificationRead(ctx context.Context, userId int64, notificationId string) (*notification.Notification, error)
}
