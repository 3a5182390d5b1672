package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
	tu "github.com/desertthunder/hsmc/internal/testing"
)

// testApp mirrors the root command built by main.
func testApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name: "hsmc",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "does-not-exist.toml"},
			&cli.BoolFlag{Name: "verbose"},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

// stubRunner points a runner at a stub serving both HubSpot and Marketing Cloud, with a SQLite token store
// in a temp dir.
func stubRunner(t *testing.T) (*Runner, *tu.StubServer, *bytes.Buffer) {
	t.Helper()
	stub := tu.NewStubServer(t)
	stub.JSON(http.MethodPost, "/v2/token", http.StatusOK, map[string]any{
		"access_token":      "mc-token",
		"expires_in":        1080,
		"rest_instance_url": stub.URL + "/",
		"soap_instance_url": stub.URL + "/",
	})

	cfg := shared.DefaultConfig()
	cfg.HubSpot.BaseURL = stub.URL
	cfg.SFMC.AuthURL = stub.URL
	cfg.SFMC.RateLimit = 0
	cfg.Supabase.URL = ""
	cfg.Database.Path = filepath.Join(t.TempDir(), "tokens.db")

	output := &bytes.Buffer{}
	r := NewRunner(RunnerOpts{Config: cfg, Logger: shared.NewLogger(io.Discard), Output: output})
	t.Cleanup(func() { r.Close() })
	return r, stub, output
}

var sfmcArgs = []string{"--client-id", "id", "--client-secret", "secret", "--subdomain", "tenant"}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.engine != nil {
				t.Error("expected engine to be built lazily")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "serve", "auth", "migrate", "preview", "sfmc", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("Before", func(t *testing.T) {
		t.Run("loads config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[server]\nport = 4100\n"), 0644); err != nil {
				t.Fatal(err)
			}
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(io.Discard)})

			app := testApp(runner)
			app.Commands = append(app.Commands, &cli.Command{Name: "noop", Action: func(context.Context, *cli.Command) error { return nil }})
			if err := app.Run(context.Background(), []string{"hsmc", "--config", path, "noop"}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if runner.config.Server.Port != 4100 {
				t.Errorf("expected port from file, got %d", runner.config.Server.Port)
			}
			if runner.config.Database.Path == "" {
				t.Error("expected defaults to survive a partial file")
			}
		})

		t.Run("malformed config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[server\n"), 0644); err != nil {
				t.Fatal(err)
			}
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(io.Discard)})

			err := testApp(runner).Run(context.Background(), []string{"hsmc", "--config", path, "preview", "emails"})
			if !errors.Is(err, shared.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	})
}

func TestParseAssetType(t *testing.T) {
	tests := []struct {
		in      string
		want    models.AssetType
		wantErr error
	}{
		{"contacts", models.AssetContacts, nil},
		{"Templates", models.AssetTemplates, nil},
		{"", "", shared.ErrMissingArgument},
		{"deals", "", shared.ErrInvalidArgument},
		{"lists", "", shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAssetType(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %q, %v", got, err)
			}
		})
	}
}

func TestReadCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promo.html")
	if err := os.WriteFile(path, []byte("<p>promo</p>"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("name and path", func(t *testing.T) {
		tmpl, err := readCustomTemplate("Promo = " + path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tmpl.Name != "Promo" || tmpl.HTML != "<p>promo</p>" {
			t.Errorf("unexpected template %+v", tmpl)
		}
	})

	t.Run("missing separator", func(t *testing.T) {
		if _, err := readCustomTemplate(path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		if _, err := readCustomTemplate("Promo=" + path + ".missing"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestMigrateCommand(t *testing.T) {
	stubTemplates := func(stub *tu.StubServer) {
		stub.JSON(http.MethodGet, "/content/api/v2/templates", http.StatusOK, map[string]any{"objects": []any{
			map[string]any{"id": 1, "name": "Welcome"},
			map[string]any{"id": 2, "name": "Promo"},
		}})
		stub.JSON(http.MethodGet, "/content/api/v2/templates/1", http.StatusOK, map[string]any{"id": 1, "source": "<p>hello</p>"})
		stub.JSON(http.MethodGet, "/content/api/v2/templates/2", http.StatusOK, map[string]any{"id": 2, "source": "<p>promo</p>"})
		stub.JSON(http.MethodPost, "/asset/v1/content/assets", http.StatusCreated, map[string]any{"id": 501})
	}

	t.Run("json output", func(t *testing.T) {
		r, stub, output := stubRunner(t)
		stubTemplates(stub)

		args := append([]string{"hsmc", "migrate", "templates", "--hubspot-token", "hs", "--format", "json"}, sfmcArgs...)
		if err := testApp(r).Run(context.Background(), args); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var result models.RunResult
		if err := json.Unmarshal(output.Bytes(), &result); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, output.String())
		}
		if !result.Success || result.Attempted != 2 || result.MigratedCount != 2 {
			t.Errorf("unexpected result %+v", result)
		}
		for _, call := range stub.Calls(http.MethodGet, "/content") {
			if call.Header.Get("Authorization") != "Bearer hs" {
				t.Errorf("expected HubSpot bearer, got %q", call.Header.Get("Authorization"))
			}
		}
	})

	t.Run("csv export to file", func(t *testing.T) {
		r, stub, output := stubRunner(t)
		stubTemplates(stub)
		base := filepath.Join(t.TempDir(), "templates")

		args := append([]string{"hsmc", "migrate", "templates", "--hubspot-token", "hs", "-f", "csv", "-o", base}, sfmcArgs...)
		if err := testApp(r).Run(context.Background(), args); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tu.AssertFileExists(t, base+"_ledger.csv")
		tu.AssertFileExists(t, base+"_summary.json")
		if content := tu.MustReadFile(t, base+"_ledger.csv"); !strings.Contains(content, "Welcome") {
			t.Errorf("ledger missing item: %s", content)
		}
		if !strings.Contains(output.String(), base+"_ledger.csv") {
			t.Errorf("expected path in output, got %s", output.String())
		}
	})

	t.Run("stored credentials", func(t *testing.T) {
		r, stub, output := stubRunner(t)
		stubTemplates(stub)
		app := testApp(r)

		authArgs := append([]string{"hsmc", "auth", "sfmc", "--user", "u1"}, sfmcArgs...)
		if err := app.Run(context.Background(), authArgs); err != nil {
			t.Fatalf("auth sfmc failed: %v", err)
		}
		if !strings.Contains(output.String(), "User ID: u1") {
			t.Errorf("unexpected auth output: %s", output.String())
		}

		output.Reset()
		if err := testApp(r).Run(context.Background(), []string{"hsmc", "migrate", "templates", "--user", "u1", "--hubspot-token", "hs", "-f", "text"}); err != nil {
			t.Fatalf("migrate with stored credentials failed: %v", err)
		}
		if !strings.Contains(output.String(), "✓ Welcome") {
			t.Errorf("unexpected text ledger: %s", output.String())
		}
		if n := stub.Count(http.MethodPost, "/v2/token"); n != 2 {
			t.Errorf("expected a fresh token exchange per command, got %d", n)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		r, stub, _ := stubRunner(t)

		err := testApp(r).Run(context.Background(), []string{"hsmc", "migrate", "templates", "-f", "xml"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if n := stub.Count(http.MethodGet, "/"); n != 0 {
			t.Errorf("expected no upstream calls, got %d", n)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		r, _, _ := stubRunner(t)

		err := testApp(r).Run(context.Background(), []string{"hsmc", "migrate", "emails"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestPreviewCommand(t *testing.T) {
	r, stub, output := stubRunner(t)
	stub.JSON(http.MethodGet, "/content/api/v2/templates", http.StatusOK, map[string]any{"objects": []any{
		map[string]any{"id": 7, "name": "Newsletter"},
	}})

	if err := testApp(r).Run(context.Background(), []string{"hsmc", "preview", "templates", "--hubspot-token", "hs"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output.String(), "1 templates in HubSpot") || !strings.Contains(output.String(), "Newsletter (7)") {
		t.Errorf("unexpected preview output: %s", output.String())
	}
	if n := stub.Count(http.MethodPost, "/v2/token"); n != 0 {
		t.Errorf("preview should not exchange Marketing Cloud tokens, got %d", n)
	}
}

func TestAuthCommands(t *testing.T) {
	t.Run("sfmc requires complete credentials", func(t *testing.T) {
		r, _, _ := stubRunner(t)
		err := testApp(r).Run(context.Background(), []string{"hsmc", "auth", "sfmc", "--client-id", "id"})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("status and logout", func(t *testing.T) {
		r, _, output := stubRunner(t)

		authArgs := append([]string{"hsmc", "auth", "sfmc", "--user", "u2"}, sfmcArgs...)
		if err := testApp(r).Run(context.Background(), authArgs); err != nil {
			t.Fatalf("auth sfmc failed: %v", err)
		}

		output.Reset()
		if err := testApp(r).Run(context.Background(), []string{"hsmc", "auth", "status", "--user", "u2"}); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "sfmc: ✓ Connected") || !strings.Contains(output.String(), "hubspot: ✗ Not connected") {
			t.Errorf("unexpected status: %s", output.String())
		}

		if err := testApp(r).Run(context.Background(), []string{"hsmc", "auth", "logout", "--user", "u2", "--platform", "sfmc"}); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		output.Reset()
		if err := testApp(r).Run(context.Background(), []string{"hsmc", "auth", "status", "--user", "u2"}); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "sfmc: ✗ Not connected") {
			t.Errorf("expected sfmc token removed: %s", output.String())
		}
	})

	t.Run("logout rejects unknown platform", func(t *testing.T) {
		r, _, _ := stubRunner(t)
		err := testApp(r).Run(context.Background(), []string{"hsmc", "auth", "logout", "--user", "u", "--platform", "salesforce"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSFMCCommands(t *testing.T) {
	t.Run("test-content-block", func(t *testing.T) {
		r, stub, output := stubRunner(t)
		stub.JSON(http.MethodPost, "/asset/v1/content/assets", http.StatusCreated, map[string]any{"id": 777, "customerKey": "ck"})

		args := append([]string{"hsmc", "sfmc", "test-content-block", "--folder", "12"}, sfmcArgs...)
		if err := testApp(r).Run(context.Background(), args); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "ID: 777") {
			t.Errorf("unexpected output: %s", output.String())
		}

		calls := stub.Calls(http.MethodPost, "/asset/v1/content/assets")
		if len(calls) != 1 {
			t.Fatalf("expected one asset write, got %d", len(calls))
		}
		if got := calls[0].Header.Get("Authorization"); got != "Bearer mc-token" {
			t.Errorf("expected Marketing Cloud bearer, got %q", got)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		r, _, _ := stubRunner(t)
		rejecting := tu.NewStubServer(t)
		rejecting.JSON(http.MethodPost, "/v2/token", http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		r.config.SFMC.AuthURL = rejecting.URL

		args := append([]string{"hsmc", "sfmc", "folders"}, sfmcArgs...)
		if err := testApp(r).Run(context.Background(), args); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		r, _, output := stubRunner(t)

		if err := testApp(r).Run(context.Background(), []string{"hsmc", "--config", path, "setup", "config"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), path) {
			t.Errorf("expected path in output, got %s", output.String())
		}

		err := testApp(r).Run(context.Background(), []string{"hsmc", "--config", path, "setup", "config"})
		if !errors.Is(err, shared.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration on second write, got %v", err)
		}
	})

	t.Run("database creates the token store", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		dbPath := filepath.Join(dir, "tokens.db")
		content := "[database]\npath = \"" + filepath.ToSlash(dbPath) + "\"\n[supabase]\nurl = \"\"\nanon_key = \"\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		r, _, output := stubRunner(t)

		if err := testApp(r).Run(context.Background(), []string{"hsmc", "--config", path, "setup", "database"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
		if !strings.Contains(output.String(), "Token store ready") {
			t.Errorf("unexpected output: %s", output.String())
		}

		if err := testApp(r).Run(context.Background(), []string{"hsmc", "--config", path, "setup", "rollback"}); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
	})
}
