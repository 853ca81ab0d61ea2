package infrastructure

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Server is anything the App supervises: the billing scheduler, the
// rewards worker, the ops HTTP server.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
}

func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

// Run starts every server and blocks until the context is cancelled or
// one of them fails, then stops the rest.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()
	slog.Info("shutting down")

	for _, srv := range a.servers {
		if err := srv.Stop(context.Background()); err != nil {
			slog.Warn("server stop failed", "error", err)
		}
	}

	return g.Wait()
}
