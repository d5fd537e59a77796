package user

import "time"

const (
	MaxHandleLength      = 15
	MaxDisplayNameLength = 50
)

type User struct {
	Id          int64     `json:"id" bson:"_id"`
	Handle      string    `json:"handle" bson:"handle"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	Bio         string    `json:"bio" bson:"bio"`
	Location    string    `json:"location" bson:"location"`
	Avatar      string    `json:"avatar" bson:"avatar"`
	Website     string    `json:"website" bson:"website"`
	Verified    bool      `json:"verified" bson:"verified"`
	JoinedAt    time.Time `json:"joinedAt" bson:"joinedAt"`
	Followers   int       `json:"followers" bson:"followers"`
	Following   int       `json:"following" bson:"following"`
	TweetCount  int       `json:"tweetCount" bson:"tweetCount"`
	LikeCount   int       `json:"likeCount" bson:"likeCount"`
}

// Profile holds the caller-supplied fields of a new account.
type Profile struct {
	Handle      string
	DisplayName string
	Bio         string
	Location    string
	Avatar      string
	Website     string
	Verified    bool
}

func (u *User) Clone() *User {
	c := *u
	return &c
}

// Follow is a directed follower -> followee edge.
type Follow struct {
	FollowerId int64     `json:"followerId" bson:"followerId"`
	FolloweeId int64     `json:"followeeId" bson:"followeeId"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

type Bookmark struct {
	UserId    int64     `json:"userId" bson:"userId"`
	PostId    int64     `json:"postId" bson:"postId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
