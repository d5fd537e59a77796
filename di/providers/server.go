package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/do/v2"

	"microblog/api"
	"microblog/config"
	"microblog/storage"
)

// HTTPServerHandle wraps http.Server with shutdown capability.
type HTTPServerHandle struct {
	*http.Server
}

func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer builds the API server and starts listening in the
// background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	s := do.MustInvoke[storage.Storage](i)

	doc, err := api.LoadSchema(context.Background())
	if err != nil {
		return nil, err
	}
	router, err := api.NewRouter(api.NewHTTPHandler(s, log), doc)
	if err != nil {
		return nil, err
	}
	srv := api.MakeServer(cfg.Server, router)

	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
		}
	}()
	return &HTTPServerHandle{Server: srv}, nil
}
