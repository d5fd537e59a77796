package api

import (
	"time"

	"microblog/domain/feed"
	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
	"microblog/utils"
)

type CreatePostRequest struct {
	Text string `json:"text" validate:"required"`
}

type RegisterRequest struct {
	Handle      string `json:"handle" validate:"required,max=16"`
	DisplayName string `json:"displayName" validate:"required,max=50"`
	Bio         string `json:"bio" validate:"max=160"`
	Location    string `json:"location" validate:"max=30"`
	Avatar      string `json:"avatar" validate:"omitempty,url"`
	Website     string `json:"website" validate:"omitempty,url"`
}

func (r RegisterRequest) profile() user.Profile {
	return user.Profile{
		Handle:      r.Handle,
		DisplayName: r.DisplayName,
		Bio:         r.Bio,
		Location:    r.Location,
		Avatar:      r.Avatar,
		Website:     r.Website,
	}
}

type AuthorDTO struct {
	Id          int64  `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Verified    bool   `json:"verified"`
}

// PostDTO is a post ready for display: counters come both raw and
// abbreviated, and Liked/Retweeted are relative to the acting user.
type PostDTO struct {
	Id           int64      `json:"id"`
	Author       *AuthorDTO `json:"author,omitempty"`
	Text         string     `json:"text"`
	CreatedAt    time.Time  `json:"createdAt"`
	TimeAgo      string     `json:"timeAgo"`
	LikeCount    int        `json:"likeCount"`
	Likes        string     `json:"likes"`
	RetweetCount int        `json:"retweetCount"`
	Retweets     string     `json:"retweets"`
	ReplyCount   int        `json:"replyCount"`
	Replies      string     `json:"replies"`
	Liked        bool       `json:"liked"`
	Retweeted    bool       `json:"retweeted"`
	Hashtags     []string   `json:"hashtags"`
	Mentions     []string   `json:"mentions"`
	Media        string     `json:"media,omitempty"`
}

type PageDTO struct {
	Posts    []PostDTO `json:"posts"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	HasNext  bool      `json:"hasNext"`
}

type UserDTO struct {
	*user.User
	FollowersText string `json:"followersText"`
	FollowingText string `json:"followingText"`
}

type SearchDTO struct {
	Posts []PostDTO `json:"posts"`
	Users []UserDTO `json:"users"`
}

type TrendingDTO struct {
	Trends []feed.Trend `json:"trends"`
}

type NotificationsDTO struct {
	Notifications []*notification.Notification `json:"notifications"`
	Unread        int                          `json:"unread"`
}

type FollowDTO struct {
	Following bool    `json:"following"`
	User      UserDTO `json:"user"`
}

type BookmarkDTO struct {
	Bookmarked bool `json:"bookmarked"`
}

type IdsDTO struct {
	Users []int64 `json:"users"`
}

func toUserDTO(u *user.User) UserDTO {
	return UserDTO{
		User:          u,
		FollowersText: utils.FormatNumber(int64(u.Followers)),
		FollowingText: utils.FormatNumber(int64(u.Following)),
	}
}

func toUserDTOs(users []*user.User) []UserDTO {
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	return out
}

func toPostDTO(p *post.Post, author *user.User, actorId int64, now time.Time) PostDTO {
	dto := PostDTO{
		Id:           p.Id,
		Text:         p.Text,
		CreatedAt:    p.CreatedAt,
		TimeAgo:      utils.TimeAgo(p.CreatedAt, now),
		LikeCount:    p.LikeCount,
		Likes:        utils.FormatNumber(int64(p.LikeCount)),
		RetweetCount: p.RetweetCount,
		Retweets:     utils.FormatNumber(int64(p.RetweetCount)),
		ReplyCount:   p.ReplyCount,
		Replies:      utils.FormatNumber(int64(p.ReplyCount)),
		Liked:        p.LikedBy.Has(actorId),
		Retweeted:    p.RetweetedBy.Has(actorId),
		Hashtags:     p.Hashtags,
		Mentions:     p.Mentions,
		Media:        p.Media,
	}
	if author != nil {
		dto.Author = &AuthorDTO{
			Id:          author.Id,
			Handle:      author.Handle,
			DisplayName: author.DisplayName,
			Avatar:      author.Avatar,
			Verified:    author.Verified,
		}
	}
	return dto
}
