// Package worker runs the background tasks that keep cached home timelines in
// step with new posts and follow changes.
package worker

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/RichardKnop/machinery/v1"
	machineryconfig "github.com/RichardKnop/machinery/v1/config"
	"github.com/go-redis/redis/v8"

	"microblog/metrics"
	"microblog/storage"
)

//go:embed timeline.lua
var timelineScript string

const queue = "microblog_tasks"

// NewServer builds a machinery server that uses redis as broker and result
// backend.
func NewServer(redisURL string) (*machinery.Server, error) {
	cnf := &machineryconfig.Config{
		Broker:          "redis://" + redisURL,
		DefaultQueue:    queue,
		ResultBackend:   "redis://" + redisURL,
		ResultsExpireIn: 3600,
		Redis: &machineryconfig.RedisConfig{
			MaxIdle:                3,
			IdleTimeout:            240,
			ReadTimeout:            15,
			WriteTimeout:           15,
			ConnectTimeout:         15,
			NormalTasksPollPeriod:  1000,
			DelayedTasksPollPeriod: 500,
		},
	}
	server, err := machinery.NewServer(cnf)
	if err != nil {
		return nil, fmt.Errorf("create machinery server: %w", err)
	}
	return server, nil
}

// Timelines applies timeline tasks to the redis sorted sets read by
// storage.CachedStorage. Only timelines that are already cached are touched;
// missing ones are rebuilt on their next read.
type Timelines struct {
	Client *redis.Client
	Logger *slog.Logger
	Cap    int

	script *redis.Script
}

func NewTimelines(client *redis.Client, logger *slog.Logger) *Timelines {
	return &Timelines{
		Client: client,
		Logger: logger,
		Cap:    storage.TimelineCap,
		script: redis.NewScript(timelineScript),
	}
}

// Tasks maps task names to handlers for machinery.Server.RegisterTasks.
func (t *Timelines) Tasks() map[string]interface{} {
	return map[string]interface{}{
		storage.TaskFanout:      t.Fanout,
		storage.TaskSubscribe:   t.Subscribe,
		storage.TaskUnsubscribe: t.Unsubscribe,
	}
}

func (t *Timelines) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Fanout pushes postId onto every recipient's timeline.
func (t *Timelines) Fanout(postId int64, recipients []int64) error {
	ctx, cancel := t.ctx()
	defer cancel()

	var firstErr error
	for _, userId := range recipients {
		if err := t.add(ctx, userId, []int64{postId}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.IncFanout(storage.TaskFanout, firstErr)
	t.Logger.Debug("fanout done", "post_id", postId, "recipients", len(recipients))
	return firstErr
}

// Subscribe merges a newly followed account's posts into followerId's timeline.
func (t *Timelines) Subscribe(followerId int64, postIds []int64) error {
	ctx, cancel := t.ctx()
	defer cancel()

	err := t.add(ctx, followerId, postIds)
	metrics.IncFanout(storage.TaskSubscribe, err)
	return err
}

// Unsubscribe strips an unfollowed account's posts from followerId's
// timeline.
func (t *Timelines) Unsubscribe(followerId int64, postIds []int64) error {
	if len(postIds) == 0 {
		return nil
	}
	ctx, cancel := t.ctx()
	defer cancel()

	members := make([]interface{}, 0, len(postIds))
	for _, id := range postIds {
		members = append(members, strconv.FormatInt(id, 10))
	}
	err := t.Client.ZRem(ctx, storage.TimelineKey(followerId), members...).Err()
	metrics.IncFanout(storage.TaskUnsubscribe, err)
	if err != nil {
		return fmt.Errorf("unsubscribe timeline %d: %w", followerId, err)
	}
	return nil
}

func (t *Timelines) add(ctx context.Context, userId int64, postIds []int64) error {
	if len(postIds) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(postIds)+1)
	args = append(args, t.Cap)
	for _, id := range postIds {
		args = append(args, strconv.FormatInt(id, 10))
	}
	if err := t.script.Run(ctx, t.Client, []string{storage.TimelineKey(userId)}, args...).Err(); err != nil {
		return fmt.Errorf("update timeline %d: %w", userId, err)
	}
	return nil
}

// Worker consumes timeline tasks.
type Worker struct {
	server      *machinery.Server
	concurrency int
	logger      *slog.Logger
	errs        chan error
	worker      *machinery.Worker
}

// New registers the timeline handlers on server.
func New(server *machinery.Server, timelines *Timelines, concurrency int, logger *slog.Logger) (*Worker, error) {
	if err := server.RegisterTasks(timelines.Tasks()); err != nil {
		return nil, fmt.Errorf("register tasks: %w", err)
	}
	return &Worker{server: server, concurrency: concurrency, logger: logger, errs: make(chan error, 1)}, nil
}

// Launch blocks until the worker stops.
func (w *Worker) Launch() error {
	w.worker = w.server.NewWorker("microblog_worker", w.concurrency)
	w.logger.Info("worker started", "queue", queue, "concurrency", w.concurrency)
	return w.worker.Launch()
}

// LaunchAsync starts the worker in the background.
func (w *Worker) LaunchAsync() {
	w.worker = w.server.NewWorker("microblog_worker", w.concurrency)
	w.logger.Info("worker started", "queue", queue, "concurrency", w.concurrency)
	w.worker.LaunchAsync(w.errs)
	go func() {
		for err := range w.errs {
			if err != nil {
				w.logger.Error("worker stopped", "error", err)
			}
		}
	}()
}

// Shutdown stops the worker after in-flight tasks finish.
func (w *Worker) Shutdown() error {
	if w.worker != nil {
		w.worker.Quit()
	}
	return nil
}
