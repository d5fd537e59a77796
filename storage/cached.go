package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/RichardKnop/machinery/v1/backends/result"
	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/go-redis/redis/v8"

	"microblog/domain/feed"
	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
)

const (
	// TimelineCap bounds the cached home timeline of one user.
	TimelineCap = 800

	TaskFanout      = "fanout"
	TaskSubscribe   = "subscribe"
	TaskUnsubscribe = "unsubscribe"

	trendingKey = "trending"
)

// TaskSender enqueues background tasks. *machinery.Server satisfies it.
type TaskSender interface {
	SendTaskWithContext(ctx context.Context, signature *tasks.Signature) (*result.AsyncResult, error)
}

// CachedStorage puts a redis read-through cache in front of another Storage.
// Posts, users and trending hashtags are cached as JSON with a TTL. Home
// timelines are redis sorted sets scored by post id, filled on first read and
// kept fresh by fan-out tasks. Redis and task failures are logged and never
// fail the call.
type CachedStorage struct {
	Client          *redis.Client
	InternalStorage Storage
	Tasks           TaskSender
	TTL             time.Duration
	Logger          *slog.Logger
}

func (cs *CachedStorage) postIdKey(postId int64) string {
	return "pid:" + strconv.FormatInt(postId, 10)
}

func (cs *CachedStorage) userIdKey(userId int64) string {
	return "uid:" + strconv.FormatInt(userId, 10)
}

// TimelineKey is the sorted set holding userId's home timeline.
func TimelineKey(userId int64) string {
	return "tl:" + strconv.FormatInt(userId, 10)
}

func (cs *CachedStorage) logger() *slog.Logger {
	if cs.Logger == nil {
		return slog.Default()
	}
	return cs.Logger
}

func (cs *CachedStorage) ttl() time.Duration {
	if cs.TTL <= 0 {
		return time.Hour
	}
	return cs.TTL
}

func generationKey(key string) string {
	return "gen:" + key
}

// fillScript sets KEYS[1] only while KEYS[2] still holds the generation the
// caller read before loading the value.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or ''
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// generation reads key's invalidation counter. ok is false when redis is
// unreachable and the value should not be cached.
func (cs *CachedStorage) generation(ctx context.Context, key string) (string, bool) {
	gen, err := cs.Client.Get(ctx, generationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", true
	}
	if err != nil {
		cs.logger().Warn("cache generation read failed", "key", key, "error", err)
		return "", false
	}
	return gen, true
}

// fill caches v under key unless key was invalidated after gen was read.
func (cs *CachedStorage) fill(ctx context.Context, key, gen string, v any) {
	res, err := json.Marshal(v)
	if err != nil {
		return
	}
	keys := []string{key, generationKey(key)}
	if err := fillScript.Run(ctx, cs.Client, keys, gen, res, cs.ttl().Milliseconds()).Err(); err != nil {
		cs.logger().Warn("cache set failed", "key", key, "error", err)
	}
}

// load decodes key into v, returning ErrCacheMiss when it is absent.
func (cs *CachedStorage) load(ctx context.Context, key string, v any) error {
	r, err := cs.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cs.logger().Warn("cache get failed", "key", key, "error", err)
		}
		return ErrCacheMiss
	}
	if err := json.Unmarshal(r, v); err != nil {
		return ErrCacheMiss
	}
	return nil
}

// invalidate drops keys and bumps their generations, so fills that loaded a
// value before the invalidation are discarded.
func (cs *CachedStorage) invalidate(ctx context.Context, keys ...string) {
	_, err := cs.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), 2*cs.ttl())
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		cs.logger().Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}

func (cs *CachedStorage) send(ctx context.Context, sig *tasks.Signature) {
	if cs.Tasks == nil {
		return
	}
	if _, err := cs.Tasks.SendTaskWithContext(ctx, sig); err != nil {
		cs.logger().Warn("send task failed", "task", sig.Name, "error", err)
	}
}

func (cs *CachedStorage) RegisterUser(ctx context.Context, p user.Profile) (*user.User, error) {
	return cs.InternalStorage.RegisterUser(ctx, p)
}

func (cs *CachedStorage) GetUserById(ctx context.Context, userId int64) (*user.User, error) {
	key := cs.userIdKey(userId)
	var u user.User
	if cs.load(ctx, key, &u) == nil {
		return &u, nil
	}
	gen, ok := cs.generation(ctx, key)
	found, err := cs.InternalStorage.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if ok {
		cs.fill(ctx, key, gen, found)
	}
	return found, nil
}

func (cs *CachedStorage) GetUserByHandle(ctx context.Context, handle string) (*user.User, error) {
	return cs.InternalStorage.GetUserByHandle(ctx, handle)
}

func (cs *CachedStorage) GetPostById(ctx context.Context, postId int64) (*post.Post, error) {
	key := cs.postIdKey(postId)
	var p post.Post
	if cs.load(ctx, key, &p) == nil {
		return &p, nil
	}
	gen, ok := cs.generation(ctx, key)
	found, err := cs.InternalStorage.GetPostById(ctx, postId)
	if err != nil {
		return nil, err
	}
	if ok {
		cs.fill(ctx, key, gen, found)
	}
	return found, nil
}

// AddPost publishes through the wrapped storage and fans the new post out to
// the author's and followers' cached timelines.
func (cs *CachedStorage) AddPost(ctx context.Context, userId int64, text string) (*post.Post, error) {
	p, err := cs.InternalStorage.AddPost(ctx, userId, text)
	if err != nil {
		return nil, err
	}
	cs.invalidate(ctx, cs.userIdKey(userId), trendingKey)

	recipients, err := cs.InternalStorage.GetSubscribers(ctx, userId)
	if err != nil {
		cs.logger().Warn("load subscribers for fanout failed", "user_id", userId, "error", err)
		recipients = nil
	}
	recipients = append(recipients, userId)
	cs.send(ctx, &tasks.Signature{
		Name: TaskFanout,
		Args: []tasks.Arg{
			{Type: "int64", Value: p.Id},
			{Type: "[]int64", Value: recipients},
		},
	})
	return p, nil
}

func (cs *CachedStorage) ToggleLike(ctx context.Context, postId, userId int64) (*post.Post, error) {
	p, err := cs.InternalStorage.ToggleLike(ctx, postId, userId)
	if err != nil {
		return nil, err
	}
	cs.invalidate(ctx, cs.postIdKey(p.Id), cs.userIdKey(userId))
	return p, nil
}

func (cs *CachedStorage) ToggleRetweet(ctx context.Context, postId, userId int64) (*post.Post, error) {
	p, err := cs.InternalStorage.ToggleRetweet(ctx, postId, userId)
	if err != nil {
		return nil, err
	}
	cs.invalidate(ctx, cs.postIdKey(p.Id))
	return p, nil
}

// ToggleFollow updates the edge and asks the worker to merge or strip the
// followee's posts in the follower's cached timeline.
func (cs *CachedStorage) ToggleFollow(ctx context.Context, followerId, followeeId int64) (bool, *user.User, error) {
	following, followee, err := cs.InternalStorage.ToggleFollow(ctx, followerId, followeeId)
	if err != nil {
		return false, nil, err
	}
	cs.invalidate(ctx, cs.userIdKey(followerId), cs.userIdKey(followeeId))

	postIds, err := cs.authoredIds(ctx, followeeId)
	if err != nil {
		// The timeline can no longer be patched; rebuild it on next read.
		cs.logger().Warn("load followee posts failed", "user_id", followeeId, "error", err)
		cs.invalidate(ctx, TimelineKey(followerId))
		return following, followee, nil
	}
	name := TaskUnsubscribe
	if following {
		name = TaskSubscribe
	}
	cs.send(ctx, &tasks.Signature{
		Name: name,
		Args: []tasks.Arg{
			{Type: "int64", Value: followerId},
			{Type: "[]int64", Value: postIds},
		},
	})
	return following, followee, nil
}

// authoredIds returns up to TimelineCap of userId's newest post ids.
func (cs *CachedStorage) authoredIds(ctx context.Context, userId int64) ([]int64, error) {
	ids := make([]int64, 0)
	for page := 1; len(ids) < TimelineCap; page++ {
		pg, err := cs.InternalStorage.GetPostsByUserId(ctx, userId, page, feed.MaxPageSize)
		if err != nil {
			return nil, err
		}
		for _, p := range pg.Posts {
			ids = append(ids, p.Id)
		}
		if !pg.HasNext {
			break
		}
	}
	return ids, nil
}

func (cs *CachedStorage) ToggleBookmark(ctx context.Context, userId, postId int64) (bool, error) {
	return cs.InternalStorage.ToggleBookmark(ctx, userId, postId)
}

func (cs *CachedStorage) GetFeed(ctx context.Context, page, size int) (*feed.Page, error) {
	return cs.InternalStorage.GetFeed(ctx, page, size)
}

// GetHomeFeed serves the timeline from its sorted set when cached, otherwise
// rebuilds the set from the wrapped storage. The set holds at most
// TimelineCap ids, so pages reaching past a full set are read from the
// wrapped storage.
func (cs *CachedStorage) GetHomeFeed(ctx context.Context, userId int64, page, size int) (*feed.Page, error) {
	size, err := checkPage(page, size)
	if err != nil {
		return nil, err
	}
	key := TimelineKey(userId)

	n, err := cs.Client.ZCard(ctx, key).Result()
	if err == nil && n > 0 {
		if !coversPage(int(n), page, size) {
			return cs.InternalStorage.GetHomeFeed(ctx, userId, page, size)
		}
		pg, err := cs.timelinePage(ctx, key, page, size)
		if err == nil {
			return pg, nil
		}
		cs.logger().Warn("read cached timeline failed", "user_id", userId, "error", err)
	}

	ids, err := cs.homeIds(ctx, userId)
	if err != nil {
		return nil, err
	}
	cs.fillTimeline(ctx, key, ids)
	if !coversPage(len(ids), page, size) {
		return cs.InternalStorage.GetHomeFeed(ctx, userId, page, size)
	}

	start, end, hasNext := feed.Bounds(len(ids), page, size)
	return cs.postsPage(ctx, ids[start:end], page, size, hasNext)
}

// coversPage reports whether a timeline of n newest ids answers page
// exactly. A timeline shorter than TimelineCap is complete; a full one only
// answers pages that end before its last id.
func coversPage(n, page, size int) bool {
	if n < TimelineCap {
		return true
	}
	return page-1 < n/size && page*size < n
}

func (cs *CachedStorage) timelinePage(ctx context.Context, key string, page, size int) (*feed.Page, error) {
	start := int64(page-1) * int64(size)
	members, err := cs.Client.ZRevRange(ctx, key, start, start+int64(size)).Result()
	if err != nil {
		return nil, err
	}
	hasNext := len(members) > size
	if hasNext {
		members = members[:size]
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return cs.postsPage(ctx, ids, page, size, hasNext)
}

func (cs *CachedStorage) postsPage(ctx context.Context, ids []int64, page, size int, hasNext bool) (*feed.Page, error) {
	out := &feed.Page{Posts: make([]*post.Post, 0, len(ids)), Page: page, PageSize: size, HasNext: hasNext}
	for _, id := range ids {
		p, err := cs.GetPostById(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Posts = append(out.Posts, p)
	}
	return out, nil
}

// homeIds collects up to TimelineCap home timeline post ids, newest first.
func (cs *CachedStorage) homeIds(ctx context.Context, userId int64) ([]int64, error) {
	ids := make([]int64, 0)
	for page := 1; len(ids) < TimelineCap; page++ {
		pg, err := cs.InternalStorage.GetHomeFeed(ctx, userId, page, feed.MaxPageSize)
		if err != nil {
			return nil, err
		}
		for _, p := range pg.Posts {
			ids = append(ids, p.Id)
		}
		if !pg.HasNext {
			break
		}
	}
	if len(ids) > TimelineCap {
		ids = ids[:TimelineCap]
	}
	return ids, nil
}

func (cs *CachedStorage) fillTimeline(ctx context.Context, key string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	members := make([]*redis.Z, 0, len(ids))
	for _, id := range ids {
		members = append(members, &redis.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
	}
	_, err := cs.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, cs.ttl())
		return nil
	})
	if err != nil {
		cs.logger().Warn("fill timeline failed", "key", key, "error", err)
	}
}

func (cs *CachedStorage) GetPostsByUserId(ctx context.Context, userId int64, page, size int) (*feed.Page, error) {
	return cs.InternalStorage.GetPostsByUserId(ctx, userId, page, size)
}

func (cs *CachedStorage) GetLikedPosts(ctx context.Context, userId int64, page, size int) (*feed.Page, error) {
	return cs.InternalStorage.GetLikedPosts(ctx, userId, page, size)
}

func (cs *CachedStorage) GetBookmarks(ctx context.Context, userId int64, page, size int) (*feed.Page, error) {
	return cs.InternalStorage.GetBookmarks(ctx, userId, page, size)
}

func (cs *CachedStorage) GetSubscribers(ctx context.Context, userId int64) ([]int64, error) {
	return cs.InternalStorage.GetSubscribers(ctx, userId)
}

func (cs *CachedStorage) GetSubscriptions(ctx context.Context, userId int64) ([]int64, error) {
	return cs.InternalStorage.GetSubscriptions(ctx, userId)
}

func (cs *CachedStorage) Search(ctx context.Context, query string) (*feed.SearchResult, error) {
	return cs.InternalStorage.Search(ctx, query)
}

func (cs *CachedStorage) GetTrending(ctx context.Context) ([]feed.Trend, error) {
	var trends []feed.Trend
	if cs.load(ctx, trendingKey, &trends) == nil {
		return trends, nil
	}
	gen, ok := cs.generation(ctx, trendingKey)
	trends, err := cs.InternalStorage.GetTrending(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		cs.fill(ctx, trendingKey, gen, trends)
	}
	return trends, nil
}

func (cs *CachedStorage) GetSuggestedUsers(ctx context.Context, userId int64) ([]*user.User, error) {
	return cs.InternalStorage.GetSuggestedUsers(ctx, userId)
}

func (cs *CachedStorage) GetNotifications(ctx context.Context, userId int64) ([]*notification.Notification, int, error) {
	return cs.InternalStorage.GetNotifications(ctx, userId)
}

func (cs *CachedStorage) MarkNotificationRead(ctx context.Context, userId int64, notificationId string) (*notification.Notification, error) {
	return cs.InternalStorage.MarkNotificationRead(ctx, userId, notificationId)
}
