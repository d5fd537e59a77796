package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

// EngagementStore is the system of record for users, posts, follow edges,
// likes, retweets, bookmarks and notifications.
//
// A single RWMutex serialises every mutation end to end (check, commit,
// apply) and lets queries run concurrently, so readers never see a toggle
// half applied. Entities are cloned on the way out.
type EngagementStore struct {
	mu      sync.RWMutex
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	users     map[int64]*user.User
	userOrder []int64
	handles   map[string]int64

	posts map[int64]*post.Post
	// feed holds post ids in insertion order; the newest post is last.
	feed []int64

	following map[int64]*idList
	followers map[int64]*idList
	bookmarks map[int64]*idList

	// notifications in emission order; the newest is last.
	notifications []*notification.Notification
	notifIndex    map[string]*notification.Notification

	lastUserId int64
	lastPostId int64
	lastSeq    int64
}

type Options struct {
	Backend Backend
	Logger  *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewEngagementStore loads the backend snapshot into a new store.
func NewEngagementStore(ctx context.Context, opts Options) (*EngagementStore, error) {
	s := &EngagementStore{
		backend: opts.Backend,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.backend == nil {
		s.backend = NewMemoryBackend()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.reset()

	snap, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := s.restore(snap); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	s.logger.Info("engagement store loaded",
		"users", len(s.users),
		"posts", len(s.posts),
		"notifications", len(s.notifications))
	return s, nil
}

func (s *EngagementStore) reset() {
	s.users = make(map[int64]*user.User)
	s.userOrder = nil
	s.handles = make(map[string]int64)
	s.posts = make(map[int64]*post.Post)
	s.feed = nil
	s.following = make(map[int64]*idList)
	s.followers = make(map[int64]*idList)
	s.bookmarks = make(map[int64]*idList)
	s.notifications = nil
	s.notifIndex = make(map[string]*notification.Notification)
	s.lastUserId, s.lastPostId, s.lastSeq = 0, 0, 0
}

// Close releases the backend.
func (s *EngagementStore) Close() error {
	return s.backend.Close()
}

// Empty reports whether the store holds no users.
func (s *EngagementStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users) == 0
}

// Import loads snap into an empty store and commits it to the backend as one
// changeset. Counters are recomputed from the relations in snap.
func (s *EngagementStore) Import(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) != 0 || len(s.posts) != 0 {
		return validationf("import requires an empty store")
	}
	if err := s.restore(snap); err != nil {
		s.reset()
		return validationf("import: %v", err)
	}
	cs := s.importChangeset(snap)
	if err := s.backend.Commit(ctx, cs); err != nil {
		s.reset()
		return internal(err, "commit import")
	}
	s.logger.Info("snapshot imported", "users", len(s.users), "posts", len(s.posts))
	return nil
}

// restore replaces nothing: it adds snap to the current (empty) state and then
// recomputes every cached counter from the relation sets.
func (s *EngagementStore) restore(snap *Snapshot) error {
	for _, u := range snap.Users {
		key := handleKey(u.Handle)
		if _, dup := s.handles[key]; dup {
			return fmt.Errorf("duplicate handle %q", u.Handle)
		}
		s.putUser(u.Clone())
	}
	for _, p := range snap.Posts {
		if _, ok := s.users[p.AuthorId]; !ok {
			return fmt.Errorf("post %d: unknown author %d", p.Id, p.AuthorId)
		}
		if p.Id <= s.lastPostId {
			return fmt.Errorf("post %d: ids must be ascending", p.Id)
		}
		c := p.Clone()
		if c.LikedBy == nil {
			c.LikedBy = post.NewUserSet()
		}
		if c.RetweetedBy == nil {
			c.RetweetedBy = post.NewUserSet()
		}
		s.putPost(c)
	}
	for _, f := range snap.Follows {
		if f.FollowerId == f.FolloweeId {
			return fmt.Errorf("self follow of user %d", f.FollowerId)
		}
		if !s.hasUsers(f.FollowerId, f.FolloweeId) {
			return fmt.Errorf("follow %d -> %d: unknown user", f.FollowerId, f.FolloweeId)
		}
		s.addFollow(f.FollowerId, f.FolloweeId)
	}
	for _, b := range snap.Bookmarks {
		if _, ok := s.posts[b.PostId]; !ok || !s.hasUsers(b.UserId) {
			return fmt.Errorf("bookmark %d/%d: unknown user or post", b.UserId, b.PostId)
		}
		s.listFor(s.bookmarks, b.UserId).add(b.PostId)
	}
	for _, n := range snap.Notifications {
		s.putNotification(n.Clone())
	}
	s.recount()
	return nil
}

// recount derives every user counter from the relation sets.
func (s *EngagementStore) recount() {
	for _, u := range s.users {
		u.Followers = len(s.followerIds(u.Id))
		u.Following = len(s.followingIds(u.Id))
		u.TweetCount = 0
		u.LikeCount = 0
	}
	for _, p := range s.posts {
		p.LikeCount = p.LikedBy.Len()
		p.RetweetCount = p.RetweetedBy.Len()
		s.users[p.AuthorId].TweetCount++
		for id := range p.LikedBy {
			if u, ok := s.users[id]; ok {
				u.LikeCount++
			}
		}
	}
}

// importChangeset renders the restored state as upserts. Edges keep the
// timestamps from snap.
func (s *EngagementStore) importChangeset(snap *Snapshot) *Changeset {
	cs := &Changeset{
		FollowsAdded:   append([]user.Follow(nil), snap.Follows...),
		BookmarksAdded: append([]user.Bookmark(nil), snap.Bookmarks...),
	}
	for _, id := range s.userOrder {
		cs.Users = append(cs.Users, s.users[id].Clone())
	}
	for _, id := range s.feed {
		cs.Posts = append(cs.Posts, s.posts[id].Clone())
	}
	for _, n := range s.notifications {
		cs.Notifications = append(cs.Notifications, n.Clone())
	}
	return cs
}

// commit persists cs and, on success, applies it to memory. Callers hold mu.
func (s *EngagementStore) commit(ctx context.Context, cs *Changeset) error {
	if err := s.backend.Commit(ctx, cs); err != nil {
		s.logger.Error("backend commit failed", "error", err)
		return internal(err, "commit changes")
	}
	s.apply(cs)
	return nil
}

func (s *EngagementStore) apply(cs *Changeset) {
	for _, u := range cs.Users {
		if _, ok := s.users[u.Id]; ok {
			s.users[u.Id] = u
			continue
		}
		s.putUser(u)
	}
	for _, p := range cs.Posts {
		if _, ok := s.posts[p.Id]; ok {
			s.posts[p.Id] = p
			continue
		}
		s.putPost(p)
	}
	for _, f := range cs.FollowsAdded {
		s.addFollow(f.FollowerId, f.FolloweeId)
	}
	for _, f := range cs.FollowsRemoved {
		s.listFor(s.following, f.FollowerId).remove(f.FolloweeId)
		s.listFor(s.followers, f.FolloweeId).remove(f.FollowerId)
	}
	for _, b := range cs.BookmarksAdded {
		s.listFor(s.bookmarks, b.UserId).add(b.PostId)
	}
	for _, b := range cs.BookmarksRemoved {
		s.listFor(s.bookmarks, b.UserId).remove(b.PostId)
	}
	for _, n := range cs.Notifications {
		if _, ok := s.notifIndex[n.Id]; ok {
			*s.notifIndex[n.Id] = *n
			continue
		}
		s.putNotification(n)
	}
}

func (s *EngagementStore) putUser(u *user.User) {
	s.users[u.Id] = u
	s.userOrder = append(s.userOrder, u.Id)
	s.handles[handleKey(u.Handle)] = u.Id
	if u.Id > s.lastUserId {
		s.lastUserId = u.Id
	}
}

func (s *EngagementStore) putPost(p *post.Post) {
	s.posts[p.Id] = p
	s.feed = append(s.feed, p.Id)
	if p.Id > s.lastPostId {
		s.lastPostId = p.Id
	}
}

func (s *EngagementStore) putNotification(n *notification.Notification) {
	s.notifications = append(s.notifications, n)
	s.notifIndex[n.Id] = n
	if n.Seq > s.lastSeq {
		s.lastSeq = n.Seq
	}
}

func (s *EngagementStore) addFollow(followerId, followeeId int64) {
	s.listFor(s.following, followerId).add(followeeId)
	s.listFor(s.followers, followeeId).add(followerId)
}

func (s *EngagementStore) listFor(m map[int64]*idList, id int64) *idList {
	l, ok := m[id]
	if !ok {
		l = newIdList()
		m[id] = l
	}
	return l
}

func (s *EngagementStore) isFollowing(followerId, followeeId int64) bool {
	l, ok := s.following[followerId]
	return ok && l.has(followeeId)
}

func (s *EngagementStore) followingIds(id int64) []int64 {
	if l, ok := s.following[id]; ok {
		return l.slice()
	}
	return []int64{}
}

func (s *EngagementStore) followerIds(id int64) []int64 {
	if l, ok := s.followers[id]; ok {
		return l.slice()
	}
	return []int64{}
}

func (s *EngagementStore) bookmarkIds(id int64) []int64 {
	if l, ok := s.bookmarks[id]; ok {
		return l.slice()
	}
	return []int64{}
}

func (s *EngagementStore) hasUsers(ids ...int64) bool {
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			return false
		}
	}
	return true
}

func (s *EngagementStore) userOrErr(id int64) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFoundf("user %d not found", id)
	}
	return u, nil
}

func (s *EngagementStore) postOrErr(id int64) (*post.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, notFoundf("post %d not found", id)
	}
	return p, nil
}

func handleKey(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
