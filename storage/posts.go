package storage

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"microblog/domain/post"
	"microblog/domain/user"
	"microblog/metrics"
	"microblog/utils"
)

var handleRe = regexp.MustCompile(`^\w{1,15}$`)

func (s *EngagementStore) RegisterUser(ctx context.Context, p user.Profile) (*user.User, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(p.Handle), "@")
	if !handleRe.MatchString(handle) {
		return nil, validationf("handle must be 1-%d letters, digits or underscores", user.MaxHandleLength)
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return nil, validationf("display name is required")
	}
	if utf8.RuneCountInString(name) > user.MaxDisplayNameLength {
		return nil, validationf("display name exceeds %d characters", user.MaxDisplayNameLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.handles[handleKey(handle)]; taken {
		return nil, alreadyExistsf("handle @%s is taken", handle)
	}

	u := &user.User{
		Id:          s.lastUserId + 1,
		Handle:      handle,
		DisplayName: name,
		Bio:         strings.TrimSpace(p.Bio),
		Location:    strings.TrimSpace(p.Location),
		Avatar:      p.Avatar,
		Website:     p.Website,
		Verified:    p.Verified,
		JoinedAt:    s.now(),
	}
	if err := s.commit(ctx, &Changeset{Users: []*user.User{u}}); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.Id, "handle", u.Handle)
	return u.Clone(), nil
}

func (s *EngagementStore) GetUserById(_ context.Context, userId int64) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.userOrErr(userId)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *EngagementStore) GetUserByHandle(_ context.Context, handle string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.handles[handleKey(handle)]
	if !ok {
		return nil, notFoundf("user @%s not found", strings.TrimPrefix(handle, "@"))
	}
	return s.users[id].Clone(), nil
}

// AddPost publishes text on behalf of userId. The text is trimmed and must
// hold 1..280 characters.
func (s *EngagementStore) AddPost(ctx context.Context, userId int64, text string) (*post.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationf("post text is empty")
	}
	if utf8.RuneCountInString(text) > post.MaxTextLength {
		return nil, validationf("post text exceeds %d characters", post.MaxTextLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	author, err := s.userOrErr(userId)
	if err != nil {
		return nil, err
	}

	p := &post.Post{
		Id:          s.lastPostId + 1,
		AuthorId:    userId,
		Text:        text,
		CreatedAt:   s.now(),
		LikedBy:     post.NewUserSet(),
		RetweetedBy: post.NewUserSet(),
		Hashtags:    utils.ExtractHashtags(text),
		Mentions:    utils.ExtractMentions(text),
	}
	updated := author.Clone()
	updated.TweetCount++

	cs := &Changeset{Users: []*user.User{updated}, Posts: []*post.Post{p}}
	if err := s.commit(ctx, cs); err != nil {
		return nil, err
	}
	metrics.PostsCreated.Inc()
	s.logger.Debug("post created", "post_id", p.Id, "author_id", userId, "hashtags", len(p.Hashtags))
	return p.Clone(), nil
}

func (s *EngagementStore) GetPostById(_ context.Context, postId int64) (*post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.postOrErr(postId)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}
