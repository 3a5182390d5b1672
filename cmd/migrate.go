package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/formatter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/tasks"
	"github.com/desertthunder/hsmc/internal/ui"
)

var outputFormats = []string{"table", "json", "yaml", "csv", "markdown", "text"}

// request builds a [models.MigrationRequest] from the credential and migration flags that cmd defines.
func (r *Runner) request(cmd *cli.Command) (*models.MigrationRequest, error) {
	req := &models.MigrationRequest{
		UserID:       cmd.String("user"),
		HubSpotToken: cmd.String("hubspot-token"),
	}

	creds := models.SFMCCredentials{
		ClientID:     cmd.String("client-id"),
		ClientSecret: cmd.String("client-secret"),
		Subdomain:    cmd.String("subdomain"),
		AccountID:    cmd.String("account-id"),
	}
	if creds != (models.SFMCCredentials{}) {
		req.SFMCCredentials = &creds
	}

	if cmd.IsSet("limit") {
		req.Limit = cmd.Int("limit")
	}
	if cmd.IsSet("folder") {
		req.FolderID = cmd.Int64("folder")
	}
	if cmd.IsSet("include-lists") {
		req.IncludeLists = cmd.Bool("include-lists")
	}

	if cmd.IsSet("custom-template") {
		for _, spec := range cmd.StringSlice("custom-template") {
			tmpl, err := readCustomTemplate(spec)
			if err != nil {
				return nil, err
			}
			req.CustomTemplates = append(req.CustomTemplates, tmpl)
		}
	}

	return req, nil
}

// readCustomTemplate parses name=path and loads the HTML at path.
func readCustomTemplate(spec string) (models.CustomTemplate, error) {
	name, path, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(path) == "" {
		return models.CustomTemplate{}, fmt.Errorf("%w: custom template %q must be name=path", shared.ErrInvalidArgument, spec)
	}
	html, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return models.CustomTemplate{}, fmt.Errorf("%w: could not read custom template %q: %v", shared.ErrInvalidArgument, name, err)
	}
	return models.CustomTemplate{Name: strings.TrimSpace(name), HTML: string(html)}, nil
}

func parseAssetType(s string) (models.AssetType, error) {
	if s == "" {
		return "", fmt.Errorf("%w: asset type", shared.ErrMissingArgument)
	}
	t, ok := models.ParseAssetType(strings.ToLower(s))
	if !ok {
		valid := make([]string, len(models.MigratableTypes))
		for i, mt := range models.MigratableTypes {
			valid[i] = string(mt)
		}
		return "", fmt.Errorf("%w: unknown asset type %q (expected one of %s)", shared.ErrInvalidArgument, s, strings.Join(valid, ", "))
	}
	return t, nil
}

func validFormat(format string) bool {
	for _, f := range outputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Migrate runs one migration and writes its ledger in the requested format.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	assetType, err := parseAssetType(cmd.StringArg("type"))
	if err != nil {
		return err
	}
	format := strings.ToLower(cmd.String("format"))
	if !validFormat(format) {
		return fmt.Errorf("%w: format %q (expected one of %s)", shared.ErrInvalidArgument, format, strings.Join(outputFormats, ", "))
	}

	req, err := r.request(cmd)
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	result, err := r.runWithProgress(ctx, assetType, req)
	if err != nil {
		return err
	}
	return r.writeResult(result, format, cmd.String("output"))
}

// runWithProgress runs the engine and logs its progress updates as they arrive.
func (r *Runner) runWithProgress(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest) (*models.RunResult, error) {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	logger := shared.WithLogger(r.logger, "asset", assetType)

	go func() {
		defer close(done)
		for u := range progress {
			switch u.Phase {
			case tasks.Converting:
				logger.Debug(u.Message)
			case tasks.Failed:
				// the returned error is reported by the caller
			default:
				logger.Info(u.Message)
			}
		}
	}()

	result, err := r.engine.Run(ctx, assetType, req, progress)
	close(progress)
	<-done
	return result, err
}

func (r *Runner) writeResult(result *models.RunResult, format, output string) error {
	switch format {
	case "json":
		return r.writeJSON(result, true)
	case "yaml":
		return r.writeExport(formatter.ExportToYAML(result))
	case "csv":
		if output != "" {
			files, err := formatter.WriteCSVExport(result, output)
			if err != nil {
				return err
			}
			return r.writePlain("✓ Ledger written to %s (summary: %s)\n", files.LedgerFile, files.MetadataFile)
		}
		return r.writeExport(formatter.ExportToCSV(result))
	case "markdown":
		if output != "" {
			path, err := formatter.WriteMarkdownExport(result, output)
			if err != nil {
				return err
			}
			return r.writePlain("✓ Report written to %s\n", path)
		}
		return r.writeExport(formatter.ExportToMarkdown(result))
	case "text":
		if output != "" {
			path, err := formatter.WriteTextExport(result, output)
			if err != nil {
				return err
			}
			return r.writePlain("✓ Ledger written to %s\n", path)
		}
		return r.writeExport(formatter.ExportToText(result))
	default:
		return r.writePlain("%s\n", ui.RenderLedger(result))
	}
}

func (r *Runner) writeExport(data []byte, err error) error {
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// Preview lists the HubSpot items a migration would read.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	raw := strings.ToLower(cmd.StringArg("type"))
	assetType := models.AssetType(raw)
	if assetType != models.AssetLists {
		var err error
		if assetType, err = parseAssetType(raw); err != nil {
			return err
		}
	}

	req, err := r.request(cmd)
	if err != nil {
		return err
	}
	if err := r.connect(ctx); err != nil {
		return err
	}

	items, err := r.engine.Preview(ctx, assetType, req)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(items, true)
	}

	r.writePlainHeader(fmt.Sprintf("%d %s in HubSpot", len(items), assetType))
	for i, item := range items {
		r.writePlain("%3d. %s (%s)\n", i+1, item.Name, item.ID)
	}
	return nil
}
