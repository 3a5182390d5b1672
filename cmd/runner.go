package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/repositories"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The token store, resolver and engine are built on first use by [Runner.connect] so commands that never
// touch them (setup, help) do not open the database.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db       *sql.DB
	store    repositories.TokenStore
	resolver *services.Resolver
	engine   *tasks.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Store      repositories.TokenStore // skips opening the database when set
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, migrateCommand, previewCommand, sfmcCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config (when present), overlays the environment and applies
// --verbose. Runs ahead of every command.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, fmt.Errorf("%w: %v", shared.ErrConfiguration, err)
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}
	r.config.ApplyEnv(os.LookupEnv)

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// connect builds the token store, credential resolver and migration engine.
func (r *Runner) connect(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	if r.store == nil {
		if !r.config.UseSupabase() {
			db, err := shared.OpenDatabase(ctx, r.config.Database)
			if err != nil {
				return fmt.Errorf("failed to open token store: %w", err)
			}
			r.db = db
		}
		r.store = repositories.NewTokenStore(r.config, r.db, r.httpClient)
	}

	r.resolver = services.NewResolver(services.ResolverOptions{
		HubSpot:    r.config.HubSpot,
		SFMCAuth:   r.config.SFMC.AuthURL,
		Store:      r.store,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})

	opts := tasks.OptionsFromConfig(r.config)
	opts.HTTPClient = r.httpClient
	opts.Logger = r.logger
	r.engine = tasks.NewEngine(r.resolver, opts)
	return nil
}

// Close releases the database handle opened by [Runner.connect].
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// SetLogger replaces the logger for the remaining commands. Services built after the call pick it up.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
