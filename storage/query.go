package storage

import (
	"context"
	"sort"
	"strings"

	"microblog/domain/feed"
	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

const (
	trendingLimit  = 5
	suggestedLimit = 3
)

// checkPage validates paging input. A zero size selects the default.
func checkPage(page, size int) (int, error) {
	if page < 1 || page > feed.MaxPage {
		return 0, validationf("page must be between 1 and %d, got %d", feed.MaxPage, page)
	}
	if size == 0 {
		size = feed.DefaultPageSize
	}
	if size < 1 || size > feed.MaxPageSize {
		return 0, validationf("page size must be between 1 and %d, got %d", feed.MaxPageSize, size)
	}
	return size, nil
}

// pageOf slices ids (already in display order) and clones the posts. Callers
// hold mu.
func (s *EngagementStore) pageOf(ids []int64, page, size int) *feed.Page {
	start, end, hasNext := feed.Bounds(len(ids), page, size)
	out := &feed.Page{Posts: make([]*post.Post, 0, end-start), Page: page, PageSize: size, HasNext: hasNext}
	for _, id := range ids[start:end] {
		out.Posts = append(out.Posts, s.posts[id].Clone())
	}
	return out
}

// newestFirst returns the ids of posts matching keep, newest first.
func (s *EngagementStore) newestFirst(keep func(*post.Post) bool) []int64 {
	ids := make([]int64, 0)
	for i := len(s.feed) - 1; i >= 0; i-- {
		if p := s.posts[s.feed[i]]; keep == nil || keep(p) {
			ids = append(ids, p.Id)
		}
	}
	return ids
}

// GetFeed returns one page of the global reverse-chronological feed.
func (s *EngagementStore) GetFeed(_ context.Context, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end, hasNext := feed.Bounds(len(s.feed), page, size)
	out := &feed.Page{Posts: make([]*post.Post, 0, end-start), Page: page, PageSize: size, HasNext: hasNext}
	for i := start; i < end; i++ {
		out.Posts = append(out.Posts, s.posts[s.feed[len(s.feed)-1-i]].Clone())
	}
	return out, nil
}

// GetHomeFeed returns posts by userId and every account it follows.
func (s *EngagementStore) GetHomeFeed(_ context.Context, userId int64, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	ids := s.newestFirst(func(p *post.Post) bool {
		return p.AuthorId == userId || s.isFollowing(userId, p.AuthorId)
	})
	return s.pageOf(ids, page, size), nil
}

func (s *EngagementStore) GetPostsByUserId(_ context.Context, userId int64, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	ids := s.newestFirst(func(p *post.Post) bool { return p.AuthorId == userId })
	return s.pageOf(ids, page, size), nil
}

func (s *EngagementStore) GetLikedPosts(_ context.Context, userId int64, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	ids := s.newestFirst(func(p *post.Post) bool { return p.LikedBy.Has(userId) })
	return s.pageOf(ids, page, size), nil
}

// GetBookmarks lists userId's bookmarks in the order they were made.
func (s *EngagementStore) GetBookmarks(_ context.Context, userId int64, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	return s.pageOf(s.bookmarkIds(userId), page, size), nil
}

// GetSubscribers returns the ids following userId, oldest edge first.
func (s *EngagementStore) GetSubscribers(_ context.Context, userId int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	return s.followerIds(userId), nil
}

// GetSubscriptions returns the ids userId follows, oldest edge first.
func (s *EngagementStore) GetSubscriptions(_ context.Context, userId int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, err
	}
	return s.followingIds(userId), nil
}

// normalizeQuery trims q, drops one leading '#' or '@' and lowercases it, so
// "#React", "@react" and "react" search alike.
func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if strings.HasPrefix(q, "#") || strings.HasPrefix(q, "@") {
		q = q[1:]
	}
	return strings.ToLower(q)
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

func (s *EngagementStore) Search(_ context.Context, query string) (*feed.SearchResult, error) {
	res := &feed.SearchResult{Posts: []*post.Post{}, Users: []*user.User{}}
	q := normalizeQuery(query)
	if q == "" {
		return res, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.newestFirst(func(p *post.Post) bool {
		author := s.users[p.AuthorId]
		if containsFold(p.Text, q) || containsFold(author.DisplayName, q) || containsFold(author.Handle, q) {
			return true
		}
		for _, tag := range p.Hashtags {
			if containsFold(tag, q) {
				return true
			}
		}
		return false
	}) {
		res.Posts = append(res.Posts, s.posts[id].Clone())
	}
	for _, id := range s.userOrder {
		u := s.users[id]
		if containsFold(u.DisplayName, q) || containsFold(u.Handle, q) {
			res.Users = append(res.Users, u.Clone())
		}
	}
	return res, nil
}

// GetTrending counts hashtag occurrences across all posts and returns the
// five most used. Ties keep first-seen order, walking posts newest first.
func (s *EngagementStore) GetTrending(_ context.Context) ([]feed.Trend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trends := make([]feed.Trend, 0)
	index := make(map[string]int)
	for i := len(s.feed) - 1; i >= 0; i-- {
		for _, tag := range s.posts[s.feed[i]].Hashtags {
			if at, ok := index[tag]; ok {
				trends[at].Count++
				continue
			}
			index[tag] = len(trends)
			trends = append(trends, feed.Trend{Hashtag: tag, Count: 1})
		}
	}
	sort.SliceStable(trends, func(i, j int) bool { return trends[i].Count > trends[j].Count })
	if len(trends) > trendingLimit {
		trends = trends[:trendingLimit]
	}
	return trends, nil
}

// GetSuggestedUsers returns up to three accounts other than userId in
// registration order. userId need not exist.
func (s *EngagementStore) GetSuggestedUsers(_ context.Context, userId int64) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*user.User, 0, suggestedLimit)
	for _, id := range s.userOrder {
		if len(out) == suggestedLimit {
			break
		}
		if id != userId {
			out = append(out, s.users[id].Clone())
		}
	}
	return out, nil
}

// GetNotifications returns the notifications targeted at userId, newest
// first, along with how many are unread.
func (s *EngagementStore) GetNotifications(_ context.Context, userId int64) ([]*notification.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.userOrErr(userId); err != nil {
		return nil, 0, err
	}
	out := make([]*notification.Notification, 0)
	unread := 0
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.TargetUserId != userId {
			continue
		}
		if !n.Read {
			unread++
		}
		out = append(out, n.Clone())
	}
	return out, unread, nil
}

// MarkNotificationRead flags a notification of userId as read. Marking an
// already read notification is a no-op.
func (s *EngagementStore) MarkNotificationRead(ctx context.Context, userId int64, notificationId string) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifIndex[notificationId]
	if !ok || n.TargetUserId != userId {
		return nil, notFoundf("notification %s not found", notificationId)
	}
	if n.Read {
		return n.Clone(), nil
	}
	updated := n.Clone()
	updated.Read = true
	if err := s.commit(ctx, &Changeset{Notifications: []*notification.Notification{updated}}); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}
