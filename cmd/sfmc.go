package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/ui"
)

// sfmcService resolves Marketing Cloud credentials for the flags on cmd and returns a client.
func (r *Runner) sfmcService(ctx context.Context, cmd *cli.Command) (*services.SFMCService, error) {
	req, err := r.request(cmd)
	if err != nil {
		return nil, err
	}
	if err := r.connect(ctx); err != nil {
		return nil, err
	}
	cred, err := r.resolver.ResolveSFMC(ctx, req)
	if err != nil {
		return nil, err
	}
	return services.NewSFMCService(cred, r.httpClient, nil, r.logger), nil
}

// SFMCFolders lists data folders.
func (r *Runner) SFMCFolders(ctx context.Context, cmd *cli.Command) error {
	return r.listFolders(ctx, cmd, services.FolderData)
}

// SFMCEmailFolders lists Content Builder folders.
func (r *Runner) SFMCEmailFolders(ctx context.Context, cmd *cli.Command) error {
	return r.listFolders(ctx, cmd, services.FolderAsset)
}

func (r *Runner) listFolders(ctx context.Context, cmd *cli.Command, kind services.FolderKind) error {
	svc, err := r.sfmcService(ctx, cmd)
	if err != nil {
		return err
	}

	folders, err := svc.ListFolders(ctx, kind, cmd.Int64("parent"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(folders, true)
	}
	return r.writePlain("%s\n", ui.RenderFolders(folders))
}

// SFMCTestContentBlock writes a throwaway content block.
func (r *Runner) SFMCTestContentBlock(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.sfmcService(ctx, cmd)
	if err != nil {
		return err
	}

	asset, err := svc.TestContentBlock(ctx, cmd.Int64("folder"))
	if err != nil {
		return err
	}

	r.writePlain("%s\n", ui.Success("✓ Content block created"))
	r.writePlain("ID: %d\n", asset.ID)
	r.writePlain("Key: %s\n", asset.Key)
	if asset.Via != "" {
		r.writePlain("Via: %s\n", asset.Via)
	}
	return nil
}
