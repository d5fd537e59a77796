package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"

	"microblog/config"
	"microblog/domain/feed"
	"microblog/domain/post"
	"microblog/domain/user"
	"microblog/metrics"
	"microblog/storage"
)

func MakeServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		Addr:         "0.0.0.0:" + cfg.Port,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}
}

// NewRouter mounts every route. API routes are validated against doc before
// they reach a handler.
func NewRouter(h *HTTPHandler, doc *openapi3.T) (*mux.Router, error) {
	validate, err := requestValidator(doc)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(instrument(h.logger), validate)

	v1.HandleFunc("/users", h.RegisterUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/suggested", h.GetSuggestedUsers).Methods(http.MethodGet)
	v1.HandleFunc("/users/by-handle/{handle}", h.GetUserByHandle).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}", h.GetUserById).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}/posts", h.GetPostsByUserId).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}/likes", h.GetLikedPosts).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}/followers", h.GetSubscribers).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}/following", h.GetSubscriptions).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userId:[0-9]+}/follow", h.ToggleFollow).Methods(http.MethodPost)

	v1.HandleFunc("/posts", h.GetFeed).Methods(http.MethodGet)
	v1.HandleFunc("/posts", h.CreatePost).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{postId:[0-9]+}", h.GetPostById).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{postId:[0-9]+}/like", h.ToggleLike).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{postId:[0-9]+}/retweet", h.ToggleRetweet).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{postId:[0-9]+}/bookmark", h.ToggleBookmark).Methods(http.MethodPost)

	v1.HandleFunc("/feed", h.GetHomeFeed).Methods(http.MethodGet)
	v1.HandleFunc("/bookmarks", h.GetBookmarks).Methods(http.MethodGet)
	v1.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	v1.HandleFunc("/trending", h.GetTrending).Methods(http.MethodGet)
	v1.HandleFunc("/notifications", h.GetNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/{notificationId}/read", h.MarkNotificationRead).Methods(http.MethodPost)

	return r, nil
}

func NewHTTPHandler(s storage.Storage, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		storage:   s,
		validator: NewValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

type HTTPHandler struct {
	storage   storage.Storage
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

func (h *HTTPHandler) Health(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) RegisterUser(rw http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(rw, r, &req) {
		return
	}
	u, err := h.storage.RegisterUser(r.Context(), req.profile())
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, toUserDTO(u))
}

func (h *HTTPHandler) GetUserById(rw http.ResponseWriter, r *http.Request) {
	userId, ok := pathId(rw, r, "userId")
	if !ok {
		return
	}
	u, err := h.storage.GetUserById(r.Context(), userId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, toUserDTO(u))
}

func (h *HTTPHandler) GetUserByHandle(rw http.ResponseWriter, r *http.Request) {
	u, err := h.storage.GetUserByHandle(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, toUserDTO(u))
}

func (h *HTTPHandler) GetSuggestedUsers(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	users, err := h.storage.GetSuggestedUsers(r.Context(), actorId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string][]UserDTO{"users": toUserDTOs(users)})
}

func (h *HTTPHandler) CreatePost(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	var req CreatePostRequest
	if !h.decode(rw, r, &req) {
		return
	}
	p, err := h.storage.AddPost(r.Context(), actorId, req.Text)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, h.renderPost(r.Context(), p, actorId))
}

func (h *HTTPHandler) GetPostById(rw http.ResponseWriter, r *http.Request) {
	postId, ok := pathId(rw, r, "postId")
	if !ok {
		return
	}
	p, err := h.storage.GetPostById(r.Context(), postId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	actorId, _ := actor(r)
	writeJSON(rw, http.StatusOK, h.renderPost(r.Context(), p, actorId))
}

func (h *HTTPHandler) ToggleLike(rw http.ResponseWriter, r *http.Request) {
	h.togglePost(rw, r, h.storage.ToggleLike)
}

func (h *HTTPHandler) ToggleRetweet(rw http.ResponseWriter, r *http.Request) {
	h.togglePost(rw, r, h.storage.ToggleRetweet)
}

func (h *HTTPHandler) togglePost(rw http.ResponseWriter, r *http.Request, toggle func(context.Context, int64, int64) (*post.Post, error)) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	postId, ok := pathId(rw, r, "postId")
	if !ok {
		return
	}
	p, err := toggle(r.Context(), postId, actorId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, h.renderPost(r.Context(), p, actorId))
}

func (h *HTTPHandler) ToggleBookmark(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	postId, ok := pathId(rw, r, "postId")
	if !ok {
		return
	}
	bookmarked, err := h.storage.ToggleBookmark(r.Context(), actorId, postId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, BookmarkDTO{Bookmarked: bookmarked})
}

func (h *HTTPHandler) ToggleFollow(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	userId, ok := pathId(rw, r, "userId")
	if !ok {
		return
	}
	following, followee, err := h.storage.ToggleFollow(r.Context(), actorId, userId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, FollowDTO{Following: following, User: toUserDTO(followee)})
}

func (h *HTTPHandler) GetFeed(rw http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(rw, r)
	if !ok {
		return
	}
	pg, err := h.storage.GetFeed(r.Context(), page, size)
	h.writePage(rw, r, pg, err)
}

func (h *HTTPHandler) GetHomeFeed(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	page, size, ok := pageParams(rw, r)
	if !ok {
		return
	}
	pg, err := h.storage.GetHomeFeed(r.Context(), actorId, page, size)
	h.writePage(rw, r, pg, err)
}

func (h *HTTPHandler) GetBookmarks(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	page, size, ok := pageParams(rw, r)
	if !ok {
		return
	}
	pg, err := h.storage.GetBookmarks(r.Context(), actorId, page, size)
	h.writePage(rw, r, pg, err)
}

func (h *HTTPHandler) GetPostsByUserId(rw http.ResponseWriter, r *http.Request) {
	h.userPage(rw, r, h.storage.GetPostsByUserId)
}

func (h *HTTPHandler) GetLikedPosts(rw http.ResponseWriter, r *http.Request) {
	h.userPage(rw, r, h.storage.GetLikedPosts)
}

func (h *HTTPHandler) userPage(rw http.ResponseWriter, r *http.Request, list func(context.Context, int64, int, int) (*feed.Page, error)) {
	userId, ok := pathId(rw, r, "userId")
	if !ok {
		return
	}
	page, size, ok := pageParams(rw, r)
	if !ok {
		return
	}
	pg, err := list(r.Context(), userId, page, size)
	h.writePage(rw, r, pg, err)
}

func (h *HTTPHandler) GetSubscribers(rw http.ResponseWriter, r *http.Request) {
	h.userIds(rw, r, h.storage.GetSubscribers)
}

func (h *HTTPHandler) GetSubscriptions(rw http.ResponseWriter, r *http.Request) {
	h.userIds(rw, r, h.storage.GetSubscriptions)
}

func (h *HTTPHandler) userIds(rw http.ResponseWriter, r *http.Request, list func(context.Context, int64) ([]int64, error)) {
	userId, ok := pathId(rw, r, "userId")
	if !ok {
		return
	}
	ids, err := list(r.Context(), userId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, IdsDTO{Users: ids})
}

func (h *HTTPHandler) Search(rw http.ResponseWriter, r *http.Request) {
	res, err := h.storage.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	actorId, _ := actor(r)
	writeJSON(rw, http.StatusOK, SearchDTO{
		Posts: h.renderPosts(r.Context(), res.Posts, actorId),
		Users: toUserDTOs(res.Users),
	})
}

func (h *HTTPHandler) GetTrending(rw http.ResponseWriter, r *http.Request) {
	trends, err := h.storage.GetTrending(r.Context())
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, TrendingDTO{Trends: trends})
}

func (h *HTTPHandler) GetNotifications(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	notes, unread, err := h.storage.GetNotifications(r.Context(), actorId)
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, NotificationsDTO{Notifications: notes, Unread: unread})
}

func (h *HTTPHandler) MarkNotificationRead(rw http.ResponseWriter, r *http.Request) {
	actorId, ok := requireActor(rw, r)
	if !ok {
		return
	}
	n, err := h.storage.MarkNotificationRead(r.Context(), actorId, mux.Vars(r)["notificationId"])
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, n)
}

func (h *HTTPHandler) decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(rw, http.StatusBadRequest, string(storage.CodeValidation), "malformed JSON body")
		return false
	}
	if err := h.validator.Validate(v); err != nil {
		h.writeError(rw, r, err)
		return false
	}
	return true
}

func (h *HTTPHandler) writePage(rw http.ResponseWriter, r *http.Request, pg *feed.Page, err error) {
	if err != nil {
		h.writeError(rw, r, err)
		return
	}
	actorId, _ := actor(r)
	writeJSON(rw, http.StatusOK, PageDTO{
		Posts:    h.renderPosts(r.Context(), pg.Posts, actorId),
		Page:     pg.Page,
		PageSize: pg.PageSize,
		HasNext:  pg.HasNext,
	})
}

func (h *HTTPHandler) renderPost(ctx context.Context, p *post.Post, actorId int64) PostDTO {
	return h.renderPosts(ctx, []*post.Post{p}, actorId)[0]
}

// renderPosts resolves each distinct author once. A missing author renders
// the post without one.
func (h *HTTPHandler) renderPosts(ctx context.Context, posts []*post.Post, actorId int64) []PostDTO {
	now := h.now()
	authors := make(map[int64]*user.User)
	out := make([]PostDTO, 0, len(posts))
	for _, p := range posts {
		author, seen := authors[p.AuthorId]
		if !seen {
			u, err := h.storage.GetUserById(ctx, p.AuthorId)
			if err != nil {
				h.logger.Warn("post author lookup failed", "post_id", p.Id, "author_id", p.AuthorId, "error", err)
			}
			author = u
			authors[p.AuthorId] = u
		}
		out = append(out, toPostDTO(p, author, actorId, now))
	}
	return out
}

// actor reads the acting user from the User-Id header.
func actor(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("User-Id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func requireActor(rw http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := actor(r)
	if !ok {
		writeErrorMessage(rw, http.StatusUnauthorized, codeUnauthenticated, "Invalid or empty user id")
	}
	return id, ok
}

func pathId(rw http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeErrorMessage(rw, http.StatusBadRequest, string(storage.CodeValidation), "invalid "+name)
		return 0, false
	}
	return id, true
}

// pageParams defaults page to 1. A missing size is passed as 0 so the store
// applies its default.
func pageParams(rw http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, size := 1, 0
	var err error
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			writeErrorMessage(rw, http.StatusBadRequest, string(storage.CodeValidation), "Invalid page")
			return 0, 0, false
		}
	}
	if v := q.Get("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			writeErrorMessage(rw, http.StatusBadRequest, string(storage.CodeValidation), "Invalid size")
			return 0, 0, false
		}
	}
	return page, size, true
}
