// package tasks implements the per-asset-type migration orchestrators.
//
// The core abstraction is Engine, which resolves credentials, reads a source collection and writes each item
// to the destination. Runs emit progress updates via channels for non-blocking status reporting to CLI/HTTP layers.
package tasks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
)

// CredentialResolver produces per-request credentials for both platforms.
type CredentialResolver interface {
	ResolveHubSpot(ctx context.Context, req *models.MigrationRequest) (*models.Credential, error)
	ResolveSFMC(ctx context.Context, req *models.MigrationRequest) (*models.Credential, error)
}

// Source reads HubSpot collections.
type Source interface {
	FetchCollection(ctx context.Context, assetType models.AssetType, limit int) ([]models.SourceAsset, error)
	FetchDetail(ctx context.Context, asset models.SourceAsset) (map[string]any, error)
}

// Destination writes Marketing Cloud entities.
type Destination interface {
	GetOrCreateFolder(ctx context.Context, kind services.FolderKind, name string, parentID int64) (*models.Folder, error)
	CreateDataExtension(ctx context.Context, def services.DataExtensionDef) (*models.DestinationAsset, error)
	InsertRows(ctx context.Context, deKey string, fields []services.DEField, primaryKey string, rows []map[string]any) (services.InsertResult, error)
	CreateContentBlock(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error)
	CreateEmail(ctx context.Context, in services.EmailInput) (*models.DestinationAsset, error)
	CreateTemplate(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error)
	CreateCloudPage(ctx context.Context, name, html string, folderID int64) (*models.DestinationAsset, error)
	CreateJourney(ctx context.Context, in services.JourneyInput) (*models.DestinationAsset, error)
}

// Options tunes an [Engine].
type Options struct {
	HubSpotBaseURL         string
	HTTPClient             *http.Client
	RateLimit              float64 // destination requests per second; zero disables limiting
	ContentBlockSubfolders bool
	DefaultLimit           int
	ListWorkers            int
	Logger                 *log.Logger

	// NewSource and NewDestination replace the HTTP-backed implementations.
	NewSource      func(cred *models.Credential) Source
	NewDestination func(cred *models.Credential) Destination
}

// OptionsFromConfig derives engine options from cfg.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		HubSpotBaseURL:         cfg.HubSpot.BaseURL,
		RateLimit:              cfg.SFMC.RateLimit,
		ContentBlockSubfolders: cfg.SFMC.CreateContentBlockSubfolders,
		DefaultLimit:           cfg.Migration.DefaultLimit,
		ListWorkers:            cfg.Migration.ListWorkers,
	}
}

// Engine runs one orchestrator per request. It holds no state between runs.
type Engine struct {
	resolver CredentialResolver
	opts     Options
	logger   *log.Logger
	now      func() time.Time
}

// NewEngine creates a new Engine with the provided resolver.
func NewEngine(resolver CredentialResolver, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.ListWorkers <= 0 {
		opts.ListWorkers = 4
	}
	if opts.NewSource == nil {
		opts.NewSource = func(cred *models.Credential) Source {
			return services.NewHubSpotService(opts.HubSpotBaseURL, cred, opts.HTTPClient, opts.Logger)
		}
	}
	if opts.NewDestination == nil {
		opts.NewDestination = func(cred *models.Credential) Destination {
			var limiter *rate.Limiter
			if opts.RateLimit > 0 {
				limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
			}
			return services.NewSFMCService(cred, opts.HTTPClient, limiter, opts.Logger)
		}
	}

	return &Engine{
		resolver: resolver,
		opts:     opts,
		logger:   shared.WithLogger(opts.Logger, "component", "engine"),
		now:      time.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// run is the state of one orchestrator invocation.
type run struct {
	engine   *Engine
	req      *models.MigrationRequest
	src      Source
	dst      Destination
	result   *models.RunResult
	progress chan<- ProgressUpdate
	logger   *log.Logger

	blocksFolder *int64 // content block subfolder, resolved on first use
}

// record appends res to the ledger and reports it.
func (r *run) record(step, total int, res models.MigrationResult) {
	r.result.Record(res)
	sendProgress(r.progress, itemUpdate(step, total, res))
	if res.Status == models.StatusSuccess {
		r.logger.Info("item migrated", "item", res.SourceName, "id", res.DestinationID, "warnings", len(res.Warnings))
	} else {
		r.logger.Warn("item failed", "item", res.SourceName, "err", res.Error)
	}
}

// Run migrates one collection of assetType. Credential and source-read failures end the run with an error;
// item failures are recorded in the returned ledger.
func (e *Engine) Run(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest, progress chan<- ProgressUpdate) (*models.RunResult, error) {
	migrate, ok := orchestrators[assetType]
	if !ok {
		err := fmt.Errorf("%w: %s", shared.ErrUnsupported, assetType)
		sendProgress(progress, failedUpdate(err))
		return nil, err
	}

	logger := shared.WithLogger(e.logger, "run", shared.GenerateID(), "asset", assetType)
	fail := func(err error) (*models.RunResult, error) {
		logger.Error("run failed", "err", err)
		sendProgress(progress, failedUpdate(err))
		return nil, err
	}

	sendProgress(progress, resolvingUpdate(models.PlatformHubSpot))
	hubspot, err := e.resolver.ResolveHubSpot(ctx, req)
	if err != nil {
		return fail(err)
	}
	sendProgress(progress, resolvingUpdate(models.PlatformSFMC))
	sfmc, err := e.resolver.ResolveSFMC(ctx, req)
	if err != nil {
		return fail(err)
	}

	r := &run{
		engine:   e,
		req:      req,
		src:      e.opts.NewSource(hubspot),
		dst:      e.opts.NewDestination(sfmc),
		result:   &models.RunResult{AssetType: assetType, Migrated: []models.MigrationResult{}, StartedAt: e.now()},
		progress: progress,
		logger:   logger,
	}

	if err := migrate(ctx, r); err != nil {
		return fail(err)
	}

	sendProgress(progress, aggregatingUpdate(r.result.Attempted))
	r.result.CompletedAt = e.now()
	r.result.Success = true
	r.result.Message = summary(r.result)
	logger.Info("run complete", "attempted", r.result.Attempted, "migrated", r.result.MigratedCount, "failed", r.result.FailedCount)
	sendProgress(progress, doneUpdate(r.result))
	return r.result, nil
}

// Preview reads the source collection for assetType without touching the destination.
//
// Lists are previewable even though they are only migrated alongside contacts.
func (e *Engine) Preview(ctx context.Context, assetType models.AssetType, req *models.MigrationRequest) ([]models.SourceAsset, error) {
	if _, ok := orchestrators[assetType]; !ok && assetType != models.AssetLists {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupported, assetType)
	}
	hubspot, err := e.resolver.ResolveHubSpot(ctx, req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	return e.opts.NewSource(hubspot).FetchCollection(ctx, assetType, limit)
}

func summary(res *models.RunResult) string {
	msg := fmt.Sprintf("Migrated %d of %d %s", res.MigratedCount, res.Attempted, res.AssetType)
	if res.FailedCount > 0 {
		msg += fmt.Sprintf(" (%d failed)", res.FailedCount)
	}
	return msg
}

type orchestrator func(ctx context.Context, r *run) error

var orchestrators = map[models.AssetType]orchestrator{
	models.AssetContacts:  migrateContacts,
	models.AssetTemplates: migrateTemplates,
	models.AssetEmails:    migrateEmails,
	models.AssetForms:     migrateForms,
	models.AssetWorkflows: migrateWorkflows,
}

// fetch reads the run's collection, honoring the request limit.
func (r *run) fetch(ctx context.Context, assetType models.AssetType) ([]models.SourceAsset, error) {
	limit := r.req.Limit
	if limit <= 0 {
		limit = r.engine.opts.DefaultLimit
	}
	sendProgress(r.progress, readingUpdate(assetType))
	assets, err := r.src.FetchCollection(ctx, assetType, limit)
	if err != nil {
		return nil, err
	}
	sendProgress(r.progress, foundUpdate(assetType, len(assets)))
	return assets, nil
}

func failure(asset models.SourceAsset, err error, warnings []string) models.MigrationResult {
	return models.MigrationResult{
		SourceID:   asset.ID,
		SourceName: asset.Name,
		Status:     models.StatusError,
		Error:      err.Error(),
		Warnings:   warnings,
	}
}

func success(asset models.SourceAsset, dest *models.DestinationAsset, warnings []string) models.MigrationResult {
	if dest.Synthetic {
		warnings = append(warnings, fmt.Sprintf("destination id %d is synthetic; look the asset up by key %q", dest.ID, dest.Key))
	}
	return models.MigrationResult{
		SourceID:       asset.ID,
		SourceName:     asset.Name,
		DestinationID:  dest.ID,
		DestinationKey: dest.Key,
		Status:         models.StatusSuccess,
		Warnings:       warnings,
	}
}
