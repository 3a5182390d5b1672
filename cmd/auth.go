package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/server"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/web"
)

// AuthHubSpot runs the OAuth authorization-code flow against a temporary local server and stores the token.
func (r *Runner) AuthHubSpot(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.ValidateOAuth(); err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	dashboard, err := web.NewDashboard(r.config, r.logger)
	if err != nil {
		return err
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

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	authURL := fmt.Sprintf("http://%s/api/auth/hubspot", r.config.Address())
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	} else if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "err", err)
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	}
	r.logger.Info("waiting for HubSpot authorization", "callback", r.config.HubSpot.RedirectURI)

	select {
	case res := <-srv.OAuth().Result():
		if err := res.Error(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		r.writePlain("%s\n", "✓ HubSpot authorized")
		r.writePlain("User ID: %s\n", res.UserID)
		r.writePlainln("Pass --user %s (or set HSMC_USER_ID) to migrate with this token.", res.UserID)
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("server stopped before authorization completed")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthSFMC verifies client credentials with a token exchange and stores them for the user.
func (r *Runner) AuthSFMC(ctx context.Context, cmd *cli.Command) error {
	req, err := r.request(cmd)
	if err != nil {
		return err
	}
	if !req.SFMCCredentials.Complete() {
		return fmt.Errorf("%w: --client-id, --client-secret and --subdomain are required", shared.ErrMissingArgument)
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	cred, err := r.resolver.ExchangeSFMC(ctx, *req.SFMCCredentials)
	if err != nil {
		return err
	}

	userID := req.UserID
	if userID == "" {
		userID = shared.GenerateID()
	}
	blob, err := json.Marshal(models.SFMCTokenBlob{
		SFMCCredentials: *req.SFMCCredentials,
		AccessToken:     cred.AccessToken,
		Expiry:          cred.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.store.Upsert(ctx, &models.StoredToken{
		UserID:    userID,
		Platform:  models.PlatformSFMC,
		Token:     blob,
		UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	r.writePlain("✓ Marketing Cloud credentials verified\n")
	r.writePlain("User ID: %s\n", userID)
	if cred.RestBaseURL != "" {
		r.writePlain("REST: %s\n", cred.RestBaseURL)
	}
	return nil
}

// AuthStatus reports which platforms have a stored token for the user.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	userID := cmd.String("user")

	r.writePlain("User: %s\n", userID)
	for _, platform := range []models.Platform{models.PlatformHubSpot, models.PlatformSFMC} {
		tok, err := r.store.Get(ctx, userID, platform)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			r.writePlain("%s: ✗ Not connected\n", platform)
		case err != nil:
			return err
		default:
			r.writePlain("%s: ✓ Connected (updated %s)\n", platform, tok.UpdatedAt.Local().Format(time.RFC822))
		}
	}
	return nil
}

// AuthLogout deletes stored tokens for the user.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	platforms := []models.Platform{models.PlatformHubSpot, models.PlatformSFMC}
	switch p := models.Platform(cmd.String("platform")); p {
	case "":
	case models.PlatformHubSpot, models.PlatformSFMC:
		platforms = []models.Platform{p}
	default:
		return fmt.Errorf("%w: platform %q (expected hubspot or sfmc)", shared.ErrInvalidArgument, p)
	}

	if err := r.connect(ctx); err != nil {
		return err
	}
	userID := cmd.String("user")
	for _, p := range platforms {
		if err := r.store.Delete(ctx, userID, p); err != nil {
			return fmt.Errorf("failed to delete %s token: %w", p, err)
		}
		r.logger.Info("token deleted", "user", userID, "platform", p)
	}
	return r.writePlain("✓ Logged out %s\n", userID)
}
