package storage

import (
	"context"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
	"microblog/metrics"
	"microblog/utils"
)

// ToggleLike adds or removes userId's like on postId and returns the updated
// post. A new like notifies the author unless they liked their own post.
func (s *EngagementStore) ToggleLike(ctx context.Context, postId, userId int64) (*post.Post, error) {
	return s.toggleEngagement(ctx, notification.KindLike, postId, userId)
}

// ToggleRetweet is ToggleLike over the retweeter set.
func (s *EngagementStore) ToggleRetweet(ctx context.Context, postId, userId int64) (*post.Post, error) {
	return s.toggleEngagement(ctx, notification.KindRetweet, postId, userId)
}

func (s *EngagementStore) toggleEngagement(ctx context.Context, kind notification.Kind, postId, userId int64) (*post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.postOrErr(postId)
	if err != nil {
		return nil, err
	}
	actor, err := s.userOrErr(userId)
	if err != nil {
		return nil, err
	}

	p := current.Clone()
	set := p.LikedBy
	if kind == notification.KindRetweet {
		set = p.RetweetedBy
	}
	added := !set.Has(userId)
	if added {
		set[userId] = struct{}{}
	} else {
		delete(set, userId)
	}
	p.LikeCount = p.LikedBy.Len()
	p.RetweetCount = p.RetweetedBy.Len()

	cs := &Changeset{Posts: []*post.Post{p}}
	if kind == notification.KindLike {
		a := actor.Clone()
		if added {
			a.LikeCount++
		} else if a.LikeCount > 0 {
			a.LikeCount--
		}
		cs.Users = append(cs.Users, a)
	}

	var subject notification.Subject = notification.Like{PostId: postId}
	if kind == notification.KindRetweet {
		subject = notification.Retweet{PostId: postId}
	}
	if added {
		n, err := s.newNotification(subject, userId, p.AuthorId)
		if err != nil {
			return nil, err
		}
		if n != nil {
			cs.Notifications = append(cs.Notifications, n)
		}
	}

	if err := s.commit(ctx, cs); err != nil {
		return nil, err
	}
	metrics.IncEngagement(string(kind), added)
	if len(cs.Notifications) > 0 {
		metrics.IncNotification(string(kind))
	}
	return p.Clone(), nil
}

// ToggleFollow creates or removes the followerId -> followeeId edge. It
// returns whether the edge exists afterwards and the updated followee.
func (s *EngagementStore) ToggleFollow(ctx context.Context, followerId, followeeId int64) (bool, *user.User, error) {
	if followerId == followeeId {
		return false, nil, validationf("users cannot follow themselves")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	follower, err := s.userOrErr(followerId)
	if err != nil {
		return false, nil, err
	}
	followee, err := s.userOrErr(followeeId)
	if err != nil {
		return false, nil, err
	}

	from, to := follower.Clone(), followee.Clone()
	edge := user.Follow{FollowerId: followerId, FolloweeId: followeeId, CreatedAt: s.now()}
	cs := &Changeset{Users: []*user.User{from, to}}

	following := !s.isFollowing(followerId, followeeId)
	if following {
		from.Following++
		to.Followers++
		cs.FollowsAdded = []user.Follow{edge}
		n, err := s.newNotification(notification.Follow{}, followerId, followeeId)
		if err != nil {
			return false, nil, err
		}
		cs.Notifications = append(cs.Notifications, n)
	} else {
		from.Following--
		to.Followers--
		cs.FollowsRemoved = []user.Follow{edge}
	}

	if err := s.commit(ctx, cs); err != nil {
		return false, nil, err
	}
	metrics.IncEngagement("follow", following)
	if following {
		metrics.IncNotification(string(notification.KindFollow))
	}
	s.logger.Debug("follow toggled", "follower_id", followerId, "followee_id", followeeId, "following", following)
	return following, to.Clone(), nil
}

// ToggleBookmark flips the (userId, postId) bookmark and returns whether it is
// set afterwards.
func (s *EngagementStore) ToggleBookmark(ctx context.Context, userId, postId int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userOrErr(userId); err != nil {
		return false, err
	}
	if _, err := s.postOrErr(postId); err != nil {
		return false, err
	}

	b := user.Bookmark{UserId: userId, PostId: postId, CreatedAt: s.now()}
	l, ok := s.bookmarks[userId]
	bookmarked := !ok || !l.has(postId)

	cs := &Changeset{}
	if bookmarked {
		cs.BookmarksAdded = []user.Bookmark{b}
	} else {
		cs.BookmarksRemoved = []user.Bookmark{b}
	}
	if err := s.commit(ctx, cs); err != nil {
		return false, err
	}
	metrics.IncEngagement("bookmark", bookmarked)
	return bookmarked, nil
}

// newNotification builds the next notification for targetId, or returns nil
// when the actor is the target. Callers hold mu; the sequence is only consumed
// once the changeset is applied.
func (s *EngagementStore) newNotification(subject notification.Subject, actorId, targetId int64) (*notification.Notification, error) {
	if actorId == targetId {
		return nil, nil
	}
	id, err := utils.GenerateId("ntf")
	if err != nil {
		return nil, internal(err, "allocate notification id")
	}
	return &notification.Notification{
		Id:           id,
		Seq:          s.lastSeq + 1,
		Subject:      subject,
		ActorId:      actorId,
		TargetUserId: targetId,
		CreatedAt:    s.now(),
	}, nil
}
