package providers

import (
	"errors"
	"log/slog"

	"github.com/samber/do/v2"

	"microblog/config"
	"microblog/worker"
)

// WorkerHandle wraps the timeline worker with shutdown capability.
type WorkerHandle struct {
	*worker.Worker
}

func (h *WorkerHandle) Shutdown() error {
	return h.Worker.Shutdown()
}

// ProvideWorker registers the timeline tasks and starts consuming them in the
// background.
func ProvideWorker(i do.Injector) (*WorkerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	rh := do.MustInvoke[*RedisHandle](i)
	ts := do.MustInvoke[*TaskServer](i)
	if rh.Client == nil || ts.Server == nil {
		return nil, errors.New("worker requires REDIS_URL")
	}

	w, err := worker.New(ts.Server, worker.NewTimelines(rh.Client, log), cfg.Worker.Concurrency, log)
	if err != nil {
		return nil, err
	}
	w.LaunchAsync()
	return &WorkerHandle{Worker: w}, nil
}
