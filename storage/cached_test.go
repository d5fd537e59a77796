package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RichardKnop/machinery/v1/backends/result"
	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/domain/post"
	"microblog/domain/user"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*tasks.Signature
	err  error
}

func (r *recordingSender) SendTaskWithContext(_ context.Context, sig *tasks.Signature) (*result.AsyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sig)
	return nil, r.err
}

// racingStorage runs during once, after a read has loaded its value and
// before it returns, to interleave a write with a cache miss.
type racingStorage struct {
	Storage
	during func()
}

func (r *racingStorage) race() {
	if f := r.during; f != nil {
		r.during = nil
		f()
	}
}

func (r *racingStorage) GetPostById(ctx context.Context, postId int64) (*post.Post, error) {
	p, err := r.Storage.GetPostById(ctx, postId)
	r.race()
	return p, err
}

func (r *racingStorage) GetUserById(ctx context.Context, userId int64) (*user.User, error) {
	u, err := r.Storage.GetUserById(ctx, userId)
	r.race()
	return u, err
}

func newCached(t *testing.T) (*CachedStorage, *EngagementStore, *miniredis.Miniredis, *recordingSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := newTestStore(t, nil)
	sender := &recordingSender{}
	return &CachedStorage{
		Client:          client,
		InternalStorage: inner,
		Tasks:           sender,
		TTL:             time.Minute,
		Logger:          quietLogger(),
	}, inner, mr, sender
}

func TestCachedStorage_PostReadThrough(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	bob := mustUser(t, inner, "bob")
	p, err := inner.AddPost(ctx, alice.Id, "cache me")
	require.NoError(t, err)

	got, err := cs.GetPostById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, p.Text, got.Text)
	assert.True(t, mr.Exists("pid:1"))

	liked, err := cs.ToggleLike(ctx, p.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)
	assert.False(t, mr.Exists("pid:1"), "toggle drops the cached post")

	got, err = cs.GetPostById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikeCount)
	assert.True(t, got.LikedBy.Has(bob.Id))

	_, err = cs.GetPostById(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStorage_ToggleDuringMissIsNotOverwritten(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	bob := mustUser(t, inner, "bob")
	p, err := inner.AddPost(ctx, alice.Id, "contended")
	require.NoError(t, err)

	racing := &racingStorage{Storage: inner}
	cs.InternalStorage = racing
	racing.during = func() {
		_, err := cs.ToggleLike(ctx, p.Id, bob.Id)
		require.NoError(t, err)
	}

	stale, err := cs.GetPostById(ctx, p.Id)
	require.NoError(t, err)
	assert.Zero(t, stale.LikeCount, "the miss returns what it loaded")
	assert.False(t, mr.Exists("pid:1"), "a value loaded before the toggle is not cached")

	got, err := cs.GetPostById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikeCount)
	assert.True(t, got.LikedBy.Has(bob.Id))
	assert.True(t, mr.Exists("pid:1"))

	racing.during = func() {
		_, _, err := cs.ToggleFollow(ctx, alice.Id, bob.Id)
		require.NoError(t, err)
	}
	_, err = cs.GetUserById(ctx, bob.Id)
	require.NoError(t, err)
	assert.False(t, mr.Exists("uid:2"))

	u, err := cs.GetUserById(ctx, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Followers)
}

func TestCachedStorage_TrendingInvalidatedByNewPost(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")

	_, err := cs.AddPost(ctx, alice.Id, "#go")
	require.NoError(t, err)
	trends, err := cs.GetTrending(ctx)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.True(t, mr.Exists(trendingKey))

	_, err = cs.AddPost(ctx, alice.Id, "#go #redis")
	require.NoError(t, err)
	assert.False(t, mr.Exists(trendingKey))

	trends, err = cs.GetTrending(ctx)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, 2, trends[0].Count)
}

func TestCachedStorage_UserInvalidatedByFollow(t *testing.T) {
	cs, inner, _, sender := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	bob := mustUser(t, inner, "bob")
	_, err := inner.AddPost(ctx, bob.Id, "b1")
	require.NoError(t, err)

	u, err := cs.GetUserById(ctx, bob.Id)
	require.NoError(t, err)
	assert.Zero(t, u.Followers)

	following, _, err := cs.ToggleFollow(ctx, alice.Id, bob.Id)
	require.NoError(t, err)
	require.True(t, following)

	u, err = cs.GetUserById(ctx, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Followers)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, TaskSubscribe, sender.sent[0].Name)
	assert.Equal(t, alice.Id, sender.sent[0].Args[0].Value)
	assert.Equal(t, []int64{1}, sender.sent[0].Args[1].Value)

	_, _, err = cs.ToggleFollow(ctx, alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, TaskUnsubscribe, sender.sent[1].Name)
}

func TestCachedStorage_AddPostSendsFanout(t *testing.T) {
	cs, inner, _, sender := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	bob := mustUser(t, inner, "bob")
	_, _, err := inner.ToggleFollow(ctx, bob.Id, alice.Id)
	require.NoError(t, err)

	sender.err = errors.New("broker down")
	p, err := cs.AddPost(ctx, alice.Id, "hello")
	require.NoError(t, err, "task failures do not fail the write")

	require.Len(t, sender.sent, 1)
	sig := sender.sent[0]
	assert.Equal(t, TaskFanout, sig.Name)
	assert.Equal(t, p.Id, sig.Args[0].Value)
	assert.Equal(t, []int64{bob.Id, alice.Id}, sig.Args[1].Value)
}

func TestCachedStorage_HomeFeedFromTimeline(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	bob := mustUser(t, inner, "bob")
	_, _, err := inner.ToggleFollow(ctx, alice.Id, bob.Id)
	require.NoError(t, err)

	a1, _ := inner.AddPost(ctx, alice.Id, "a1")
	b1, _ := inner.AddPost(ctx, bob.Id, "b1")
	a2, _ := inner.AddPost(ctx, alice.Id, "a2")

	pg, err := cs.GetHomeFeed(ctx, alice.Id, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{a2.Id, b1.Id}, ids(pg.Posts))
	assert.True(t, pg.HasNext)
	assert.True(t, mr.Exists(TimelineKey(alice.Id)))

	// Served from the sorted set from now on.
	members, err := mr.ZMembers(TimelineKey(alice.Id))
	require.NoError(t, err)
	assert.Len(t, members, 3)

	pg, err = cs.GetHomeFeed(ctx, alice.Id, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.Id}, ids(pg.Posts))
	assert.False(t, pg.HasNext)

	_, err = cs.GetHomeFeed(ctx, alice.Id, 0, 2)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = cs.GetHomeFeed(ctx, 404, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStorage_HomeFeedPastTimelineCap(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	total := TimelineCap + 50
	for i := 0; i < total; i++ {
		_, err := inner.AddPost(ctx, alice.Id, "post")
		require.NoError(t, err)
	}

	for round := 0; round < 2; round++ {
		pg, err := cs.GetHomeFeed(ctx, alice.Id, 9, 100)
		require.NoError(t, err)
		require.Len(t, pg.Posts, 50, "round %d", round)
		assert.EqualValues(t, 50, pg.Posts[0].Id)
		assert.False(t, pg.HasNext)

		members, err := mr.ZMembers(TimelineKey(alice.Id))
		require.NoError(t, err)
		assert.Len(t, members, TimelineCap)
	}

	pg, err := cs.GetHomeFeed(ctx, alice.Id, 8, 100)
	require.NoError(t, err)
	require.Len(t, pg.Posts, 100)
	assert.True(t, pg.HasNext)

	pg, err = cs.GetHomeFeed(ctx, alice.Id, 1, 100)
	require.NoError(t, err)
	assert.EqualValues(t, total, pg.Posts[0].Id)
	assert.True(t, pg.HasNext)
}

func TestCachedStorage_SurvivesRedisOutage(t *testing.T) {
	cs, inner, mr, _ := newCached(t)
	ctx := context.Background()
	alice := mustUser(t, inner, "alice")
	p, _ := inner.AddPost(ctx, alice.Id, "still here")

	mr.Close()

	got, err := cs.GetPostById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, p.Id, got.Id)

	pg, err := cs.GetHomeFeed(ctx, alice.Id, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.Id}, ids(pg.Posts))
}
