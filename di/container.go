// Package di wires the service together with samber/do.
package di

import (
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"microblog/config"
	"microblog/di/providers"
)

func NewContainer() *do.RootScope {
	injector := do.New()

	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideRedis)
	do.Provide(injector, providers.ProvideTaskServer)
	do.Provide(injector, providers.ProvideStorage)

	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideWorker)

	return injector
}

// Bootstrap starts what the configured mode asks for. In "all" mode the
// worker is started only when redis is configured.
func Bootstrap(injector *do.RootScope) error {
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := do.MustInvoke[*slog.Logger](injector)

	runServer := cfg.App.Mode == config.ModeServer || cfg.App.Mode == config.ModeAll
	runWorker := cfg.App.Mode == config.ModeWorker || (cfg.App.Mode == config.ModeAll && cfg.Redis.URL != "")

	if runServer {
		if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}
	if runWorker {
		if _, err := do.Invoke[*providers.WorkerHandle](injector); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	log.Info("bootstrap complete", "server", runServer, "worker", runWorker)
	return nil
}
