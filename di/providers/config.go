package providers

import (
	"log/slog"
	"os"
	"time"

	"github.com/samber/do/v2"

	"microblog/config"
	"microblog/logger"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

// ProvideConfig loads configuration from the process arguments and
// environment.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(os.Args[1:])
}

func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	log.Info("starting microblog",
		"environment", cfg.App.Environment,
		"mode", cfg.App.Mode,
		"storage", cfg.Storage.Backend,
		"cache", cfg.Redis.URL != "",
	)
	return log, nil
}
