// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// credentialFlags select the user and optionally supply credentials inline instead of from the token store.
func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "User id whose stored tokens are used",
			Sources: cli.EnvVars("HSMC_USER_ID"),
		},
		&cli.StringFlag{
			Name:    "hubspot-token",
			Usage:   "HubSpot access token (overrides the stored token)",
			Sources: cli.EnvVars("HUBSPOT_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "client-id",
			Usage:   "Marketing Cloud client id",
			Sources: cli.EnvVars("SFMC_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:    "client-secret",
			Usage:   "Marketing Cloud client secret",
			Sources: cli.EnvVars("SFMC_CLIENT_SECRET"),
		},
		&cli.StringFlag{
			Name:    "subdomain",
			Usage:   "Marketing Cloud tenant subdomain",
			Sources: cli.EnvVars("SFMC_SUBDOMAIN"),
		},
		&cli.StringFlag{
			Name:    "account-id",
			Usage:   "Marketing Cloud business unit MID",
			Sources: cli.EnvVars("SFMC_ACCOUNT_ID"),
		},
	}
}

func withFlags(base []cli.Flag, extra ...cli.Flag) []cli.Flag {
	return append(base, extra...)
}

// setupCommand handles setup operations for configuration and the token store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the token store and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the example config.toml to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the dashboard and JSON API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the migration dashboard and HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override server.host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the dashboard in the default browser",
			},
		},
		Action: r.Serve,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage stored platform credentials",
		Commands: []*cli.Command{
			{
				Name:  "hubspot",
				Usage: "Authorize with HubSpot using OAuth2 and store the token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening it",
					},
				},
				Action: r.AuthHubSpot,
			},
			{
				Name:   "sfmc",
				Usage:  "Verify Marketing Cloud client credentials and store them",
				Flags:  credentialFlags(),
				Action: r.AuthSFMC,
			},
			{
				Name:  "status",
				Usage: "Show which platforms have stored tokens for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User id", Required: true},
				},
				Action: r.AuthStatus,
			},
			{
				Name:  "logout",
				Usage: "Delete stored tokens for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User id", Required: true},
					&cli.StringFlag{Name: "platform", Usage: "hubspot or sfmc (default: both)"},
				},
				Action: r.AuthLogout,
			},
		},
	}
}

// migrateCommand runs one migration and prints its ledger.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "Migrate one HubSpot collection (contacts, emails, forms, templates, workflows)",
		ArgsUsage: "<type>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "type"},
		},
		Flags: withFlags(credentialFlags(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of items to read (default: migration.default_limit)",
			},
			&cli.Int64Flag{
				Name:  "folder",
				Usage: "Destination folder id",
			},
			&cli.BoolFlag{
				Name:  "include-lists",
				Usage: "Also create a data folder per contact list (contacts only)",
			},
			&cli.StringSliceFlag{
				Name:  "custom-template",
				Usage: "Extra template to migrate as name=path/to/file.html (templates only, repeatable)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, yaml, csv, markdown or text",
				Value:   "table",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the ledger to this path instead of stdout (csv, markdown and text)",
			},
		),
		Action: r.Migrate,
	}
}

// previewCommand lists what a migration would read.
func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "List the HubSpot items a migration would read",
		ArgsUsage: "<type>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "type"},
		},
		Flags: withFlags(credentialFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of items"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		),
		Action: r.Preview,
	}
}

// sfmcCommand exposes the Marketing Cloud diagnostics.
func sfmcCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sfmc",
		Usage: "Marketing Cloud diagnostics",
		Commands: []*cli.Command{
			{
				Name:  "folders",
				Usage: "List data folders",
				Flags: withFlags(credentialFlags(),
					&cli.Int64Flag{Name: "parent", Usage: "Parent folder id (default: root)"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				),
				Action: r.SFMCFolders,
			},
			{
				Name:  "email-folders",
				Usage: "List Content Builder folders",
				Flags: withFlags(credentialFlags(),
					&cli.Int64Flag{Name: "parent", Usage: "Parent folder id (default: root)"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				),
				Action: r.SFMCEmailFolders,
			},
			{
				Name:  "test-content-block",
				Usage: "Write a throwaway content block to check write access",
				Flags: withFlags(credentialFlags(),
					&cli.Int64Flag{Name: "folder", Usage: "Destination folder id"},
				),
				Action: r.SFMCTestContentBlock,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive migrations.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for migrations",
		Flags: withFlags(credentialFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of items per run"},
			&cli.Int64Flag{Name: "folder", Usage: "Destination folder id"},
			&cli.BoolFlag{Name: "include-lists", Usage: "Create list folders when migrating contacts"},
			&cli.StringFlag{Name: "log-file", Usage: "Log destination while the TUI runs", Value: "./tmp/hsmc-tui.log"},
		),
		Action: r.TUI,
	}
}
