package post

import "time"

const MaxTextLength = 280

type Post struct {
	Id           int64     `json:"id"`
	AuthorId     int64     `json:"authorId"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
	LikeCount    int       `json:"likeCount"`
	RetweetCount int       `json:"retweetCount"`
	ReplyCount   int       `json:"replyCount"`
	LikedBy      UserSet   `json:"likedBy"`
	RetweetedBy  UserSet   `json:"retweetedBy"`
	Hashtags     []string  `json:"hashtags"`
	Mentions     []string  `json:"mentions"`
	Media        string    `json:"media,omitempty"`
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *Post) Clone() *Post {
	c := *p
	c.LikedBy = p.LikedBy.Clone()
	c.RetweetedBy = p.RetweetedBy.Clone()
	c.Hashtags = append([]string(nil), p.Hashtags...)
	c.Mentions = append([]string(nil), p.Mentions...)
	return &c
}

// Record is the flattened document form used by document stores.
type Record struct {
	Id           int64     `bson:"_id"`
	AuthorId     int64     `bson:"authorId"`
	Text         string    `bson:"text"`
	CreatedAt    time.Time `bson:"createdAt"`
	LikeCount    int       `bson:"likeCount"`
	RetweetCount int       `bson:"retweetCount"`
	ReplyCount   int       `bson:"replyCount"`
	LikedBy      []int64   `bson:"likedBy"`
	RetweetedBy  []int64   `bson:"retweetedBy"`
	Hashtags     []string  `bson:"hashtags"`
	Mentions     []string  `bson:"mentions"`
	Media        string    `bson:"media,omitempty"`
}

func (p *Post) ToRecord() Record {
	return Record{
		Id:           p.Id,
		AuthorId:     p.AuthorId,
		Text:         p.Text,
		CreatedAt:    p.CreatedAt,
		LikeCount:    p.LikeCount,
		RetweetCount: p.RetweetCount,
		ReplyCount:   p.ReplyCount,
		LikedBy:      p.LikedBy.Slice(),
		RetweetedBy:  p.RetweetedBy.Slice(),
		Hashtags:     p.Hashtags,
		Mentions:     p.Mentions,
		Media:        p.Media,
	}
}

func (r *Record) ToPost() Post {
	return Post{
		Id:           r.Id,
		AuthorId:     r.AuthorId,
		Text:         r.Text,
		CreatedAt:    r.CreatedAt,
		LikeCount:    len(r.LikedBy),
		RetweetCount: len(r.RetweetedBy),
		ReplyCount:   r.ReplyCount,
		LikedBy:      NewUserSet(r.LikedBy...),
		RetweetedBy:  NewUserSet(r.RetweetedBy...),
		Hashtags:     r.Hashtags,
		Mentions:     r.Mentions,
		Media:        r.Media,
	}
}
