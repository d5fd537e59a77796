package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/storage"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *storage.EngagementStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewEngagementStore(context.Background(), storage.Options{Logger: logger})
	require.NoError(t, err)

	doc, err := LoadSchema(context.Background())
	require.NoError(t, err)

	h := NewHTTPHandler(store, logger)
	h.now = func() time.Time { return time.Now().Add(2*time.Hour + 30*time.Second) }
	router, err := NewRouter(h, doc)
	require.NoError(t, err)
	return &testServer{t: t, router: router, store: store}
}

func (s *testServer) do(method, path string, actorId int64, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorId != 0 {
		req.Header.Set("User-Id", strconv.FormatInt(actorId, 10))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(handle string) int64 {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/users", 0, map[string]string{
		"handle":      handle,
		"displayName": strings.ToUpper(handle),
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var u UserDTO
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u.Id
}

func (s *testServer) post(authorId int64, text string) PostDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/posts", authorId, map[string]string{"text": text})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var p PostDTO
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestRegisterUser(t *testing.T) {
	s := newTestServer(t)
	id := s.register("alice")
	assert.Equal(t, int64(1), id)

	rec := s.do(http.MethodPost, "/api/v1/users", 0, map[string]string{"handle": "@ALICE", "displayName": "Dup"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/users", 0, map[string]string{"handle": "bad handle", "displayName": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/users", 0, map[string]string{"handle": "bob", "displayName": "Bob", "website": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "website")

	rec = s.do(http.MethodGet, "/api/v1/users/by-handle/@alice", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"handle":"alice"`)

	rec = s.do(http.MethodGet, "/api/v1/users/42", 0, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestCreatePost(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")

	p := s.post(alice, "  hello #go @bob  ")
	assert.Equal(t, "hello #go @bob", p.Text)
	assert.Equal(t, []string{"go"}, p.Hashtags)
	assert.Equal(t, []string{"bob"}, p.Mentions)
	require.NotNil(t, p.Author)
	assert.Equal(t, "alice", p.Author.Handle)
	assert.Equal(t, "2h", p.TimeAgo)
	assert.Equal(t, "0", p.Likes)

	rec := s.do(http.MethodPost, "/api/v1/posts", 0, map[string]string{"text": "anonymous"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/posts", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "schema requires text")

	rec = s.do(http.MethodPost, "/api/v1/posts", alice, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/posts", alice, map[string]string{"text": strings.Repeat("x", 281)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/posts", 99, map[string]string{"text": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/posts/"+strconv.FormatInt(p.Id, 10), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestToggles(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")
	p := s.post(alice, "like me")
	path := "/api/v1/posts/" + strconv.FormatInt(p.Id, 10)

	rec := s.do(http.MethodPost, path+"/like", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var liked PostDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &liked))
	assert.True(t, liked.Liked)
	assert.Equal(t, 1, liked.LikeCount)

	rec = s.do(http.MethodPost, path+"/retweet", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retweeted":true`)

	rec = s.do(http.MethodPost, path+"/bookmark", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookmarked":true}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/bookmarks", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pg PageDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	require.Len(t, pg.Posts, 1)
	assert.Equal(t, p.Id, pg.Posts[0].Id)

	rec = s.do(http.MethodPost, "/api/v1/posts/404/like", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, path+"/like", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFollow(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")
	bobPath := "/api/v1/users/" + strconv.FormatInt(bob, 10)

	rec := s.do(http.MethodPost, bobPath+"/follow", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var f FollowDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.True(t, f.Following)
	assert.Equal(t, 1, f.User.Followers)

	rec = s.do(http.MethodGet, bobPath+"/followers", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[1]}`, rec.Body.String())

	rec = s.do(http.MethodPost, bobPath+"/follow", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "self-follow")

	s.post(bob, "from bob")
	s.post(alice, "from alice")
	rec = s.do(http.MethodGet, "/api/v1/feed", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pg PageDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	require.Len(t, pg.Posts, 2)
	assert.Equal(t, "from alice", pg.Posts[0].Text)
}

func TestPagination(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	for i := 0; i < 5; i++ {
		s.post(alice, "post "+strconv.Itoa(i))
	}

	rec := s.do(http.MethodGet, "/api/v1/posts?page=2&size=2", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pg PageDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	assert.Equal(t, 2, pg.Page)
	assert.True(t, pg.HasNext)
	require.Len(t, pg.Posts, 2)
	assert.Equal(t, "post 2", pg.Posts[0].Text)

	rec = s.do(http.MethodGet, "/api/v1/posts?page=2147483647&size=100", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	assert.Empty(t, pg.Posts)
	assert.False(t, pg.HasNext)

	for _, q := range []string{"page=0", "page=4611686018427387904", "size=101", "size=abc"} {
		rec = s.do(http.MethodGet, "/api/v1/posts?"+q, 0, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = s.do(http.MethodGet, "/api/v1/users/1/posts", 0, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pg))
	assert.Equal(t, 20, pg.PageSize)
	assert.Len(t, pg.Posts, 5)
}

func TestSearchAndTrending(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	s.post(alice, "learning #golang")
	s.post(alice, "more #golang and #redis")

	rec := s.do(http.MethodGet, "/api/v1/search?q=%23GoLang", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res SearchDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Posts, 2)
	assert.Empty(t, res.Users)

	rec = s.do(http.MethodGet, "/api/v1/search?q=", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"posts":[],"users":[]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/trending", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trends":[{"hashtag":"golang","count":2},{"hashtag":"redis","count":1}]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/users/suggested", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	bob := s.register("bob")
	p := s.post(alice, "notify me")
	s.do(http.MethodPost, "/api/v1/posts/"+strconv.FormatInt(p.Id, 10)+"/like", bob, nil)

	rec := s.do(http.MethodGet, "/api/v1/notifications", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Notifications []struct {
			Id     string `json:"id"`
			Type   string `json:"type"`
			PostId int64  `json:"postId"`
			Read   bool   `json:"read"`
		} `json:"notifications"`
		Unread int `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, 1, out.Unread)
	n := out.Notifications[0]
	assert.Equal(t, "like", n.Type)
	assert.Equal(t, p.Id, n.PostId)
	assert.True(t, strings.HasPrefix(n.Id, "ntf-"))

	rec = s.do(http.MethodPost, "/api/v1/notifications/"+n.Id+"/read", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "not bob's notification")

	rec = s.do(http.MethodPost, "/api/v1/notifications/"+n.Id+"/read", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"read":true`)

	rec = s.do(http.MethodGet, "/api/v1/notifications", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notifications":[],"unread":0}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s.register("alice")
	rec = s.do(http.MethodGet, "/metrics", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "microblog_http_request_duration_seconds")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(storage.CodeValidation))
	assert.Equal(t, http.StatusNotFound, statusOf(storage.CodeNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(storage.CodeAlreadyExists))
	assert.Equal(t, http.StatusInternalServerError, statusOf(storage.CodeInternal))
}
