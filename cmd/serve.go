package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/server"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/web"
)

// Serve runs the dashboard and JSON API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if cmd.IsSet("port") {
		r.config.Server.Port = cmd.Int("port")
	}
	if err := r.config.ValidateOAuth(); err != nil {
		r.logger.Warn("HubSpot OAuth disabled", "err", err)
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	dashboard, err := web.NewDashboard(r.config, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build dashboard: %w", err)
	}

	srv := server.New(server.Options{
		Config:      r.config,
		Credentials: r.resolver,
		Engine:      r.engine,
		Store:       r.store,
		Dashboard:   dashboard,
		HTTPClient:  r.httpClient,
		Logger:      r.logger,
	})

	if cmd.Bool("open") {
		url := fmt.Sprintf("http://%s/", r.config.Address())
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("could not open browser", "url", url, "err", err)
		}
	}

	return srv.ListenAndServe(ctx)
}
