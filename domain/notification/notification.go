package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindLike    Kind = "like"
	KindRetweet Kind = "retweet"
	KindFollow  Kind = "follow"
)

// Subject is what a notification is about. It is one of Like, Retweet or Follow.
type Subject interface {
	Kind() Kind
}

type Like struct {
	PostId int64
}

type Retweet struct {
	PostId int64
}

type Follow struct{}

func (Like) Kind() Kind    { return KindLike }
func (Retweet) Kind() Kind { return KindRetweet }
func (Follow) Kind() Kind  { return KindFollow }

type Notification struct {
	Id           string
	Seq          int64
	Subject      Subject
	ActorId      int64
	TargetUserId int64
	CreatedAt    time.Time
	Read         bool
}

// PostId reports the post a like or retweet notification refers to.
func (n *Notification) PostId() (int64, bool) {
	switch s := n.Subject.(type) {
	case Like:
		return s.PostId, true
	case Retweet:
		return s.PostId, true
	default:
		return 0, false
	}
}

func (n *Notification) Clone() *Notification {
	c := *n
	return &c
}

// Record is the flat wire and document shape of a Notification.
type Record struct {
	Id           string    `json:"id" bson:"_id"`
	Seq          int64     `json:"seq" bson:"seq"`
	Type         Kind      `json:"type" bson:"type"`
	PostId       *int64    `json:"postId,omitempty" bson:"postId,omitempty"`
	ActorId      int64     `json:"actorId" bson:"actorId"`
	TargetUserId int64     `json:"targetUserId" bson:"targetUserId"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	Read         bool      `json:"read" bson:"read"`
}

func (n *Notification) ToRecord() Record {
	r := Record{
		Id:           n.Id,
		Seq:          n.Seq,
		Type:         n.Subject.Kind(),
		ActorId:      n.ActorId,
		TargetUserId: n.TargetUserId,
		CreatedAt:    n.CreatedAt,
		Read:         n.Read,
	}
	if id, ok := n.PostId(); ok {
		r.PostId = &id
	}
	return r
}

func (r *Record) ToNotification() (Notification, error) {
	n := Notification{
		Id:           r.Id,
		Seq:          r.Seq,
		ActorId:      r.ActorId,
		TargetUserId: r.TargetUserId,
		CreatedAt:    r.CreatedAt,
		Read:         r.Read,
	}
	switch r.Type {
	case KindLike, KindRetweet:
		if r.PostId == nil {
			return n, fmt.Errorf("notification %s: %s without post id", r.Id, r.Type)
		}
		if r.Type == KindLike {
			n.Subject = Like{PostId: *r.PostId}
		} else {
			n.Subject = Retweet{PostId: *r.PostId}
		}
	case KindFollow:
		n.Subject = Follow{}
	default:
		return n, fmt.Errorf("notification %s: unknown type %q", r.Id, r.Type)
	}
	return n, nil
}

func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToRecord())
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded, err := r.ToNotification()
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}
