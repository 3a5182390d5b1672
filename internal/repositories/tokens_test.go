package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
	tu "github.com/desertthunder/hsmc/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteTokenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get Missing", func(t *testing.T) {
		repo := NewSQLiteTokenStore(setupTestDB(t))

		_, err := repo.Get(ctx, "nobody", models.PlatformHubSpot)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Upsert Replaces", func(t *testing.T) {
		repo := NewSQLiteTokenStore(setupTestDB(t))

		first := &models.StoredToken{UserID: "u1", Platform: models.PlatformHubSpot, Token: json.RawMessage(`{"access_token":"a"}`)}
		if err := repo.Upsert(ctx, first); err != nil {
			t.Fatalf("failed to upsert token: %v", err)
		}
		if first.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be stamped")
		}

		second := &models.StoredToken{UserID: "u1", Platform: models.PlatformHubSpot, Token: json.RawMessage(`{"access_token":"b"}`)}
		if err := repo.Upsert(ctx, second); err != nil {
			t.Fatalf("failed to upsert token: %v", err)
		}

		got, err := repo.Get(ctx, "u1", models.PlatformHubSpot)
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}

		var blob models.HubSpotTokenBlob
		if err := json.Unmarshal(got.Token, &blob); err != nil {
			t.Fatalf("stored blob is not JSON: %v", err)
		}
		if blob.AccessToken != "b" {
			t.Errorf("expected last write to win, got %s", blob.AccessToken)
		}

		var count int
		if err := repo.db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("expected one row per (user, platform), got %d", count)
		}
	})

	t.Run("Platforms Are Independent", func(t *testing.T) {
		repo := NewSQLiteTokenStore(setupTestDB(t))

		for _, p := range []models.Platform{models.PlatformHubSpot, models.PlatformSFMC} {
			if err := repo.Upsert(ctx, &models.StoredToken{UserID: "u1", Platform: p, Token: json.RawMessage(`{}`)}); err != nil {
				t.Fatalf("failed to upsert %s: %v", p, err)
			}
		}

		if err := repo.Delete(ctx, "u1", models.PlatformHubSpot); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get(ctx, "u1", models.PlatformHubSpot); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected hubspot token to be gone, got %v", err)
		}
		if _, err := repo.Get(ctx, "u1", models.PlatformSFMC); err != nil {
			t.Errorf("expected sfmc token to survive, got %v", err)
		}
	})

	t.Run("Missing Key", func(t *testing.T) {
		repo := NewSQLiteTokenStore(setupTestDB(t))
		err := repo.Upsert(ctx, &models.StoredToken{Platform: models.PlatformSFMC})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Closed Database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSQLiteTokenStore(db)
		db.Close()

		if _, err := repo.Get(ctx, "u1", models.PlatformSFMC); err == nil || errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected query error, got %v", err)
		}
	})
}

func TestSupabaseTokenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert Uses Merge Duplicates", func(t *testing.T) {
		stub := tu.NewStubServer(t)
		stub.Handle(http.MethodPost, "/rest/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})

		store := NewSupabaseTokenStore(shared.SupabaseConfig{URL: stub.URL, AnonKey: "anon"}, nil)
		err := store.Upsert(ctx, &models.StoredToken{UserID: "u1", Platform: models.PlatformSFMC, Token: json.RawMessage(`{"clientId":"c"}`)})
		if err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		calls := stub.Calls(http.MethodPost, "/rest/v1/tokens")
		if len(calls) != 1 {
			t.Fatalf("expected one call, got %d", len(calls))
		}
		c := calls[0]
		if !strings.Contains(c.Header.Get("Prefer"), "resolution=merge-duplicates") {
			t.Errorf("expected merge-duplicates, got %q", c.Header.Get("Prefer"))
		}
		if c.Header.Get("apikey") != "anon" || c.Header.Get("Authorization") != "Bearer anon" {
			t.Error("expected anon key headers")
		}
		if c.Query != "on_conflict=user_id,platform" {
			t.Errorf("unexpected query %q", c.Query)
		}

		var rows []map[string]any
		c.JSON(t, &rows)
		if len(rows) != 1 || rows[0]["user_id"] != "u1" || rows[0]["platform"] != "sfmc" {
			t.Errorf("unexpected rows %v", rows)
		}
	})

	t.Run("Get", func(t *testing.T) {
		stub := tu.NewStubServer(t)
		stub.Handle(http.MethodGet, "/rest/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("user_id") != "eq.u1" {
				tu.WriteJSON(w, http.StatusOK, []any{})
				return
			}
			tu.WriteJSON(w, http.StatusOK, []any{map[string]any{
				"user_id":    "u1",
				"platform":   "hubspot",
				"token":      `{"access_token":"text-column"}`,
				"updated_at": "2025-01-01T00:00:00Z",
			}})
		})

		store := NewSupabaseTokenStore(shared.SupabaseConfig{URL: stub.URL, AnonKey: "anon", Table: "tokens"}, nil)

		got, err := store.Get(ctx, "u1", models.PlatformHubSpot)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		var blob models.HubSpotTokenBlob
		if err := json.Unmarshal(got.Token, &blob); err != nil || blob.AccessToken != "text-column" {
			t.Errorf("expected decoded blob, got %s (%v)", got.Token, err)
		}

		if _, err := store.Get(ctx, "u2", models.PlatformHubSpot); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Upstream Error", func(t *testing.T) {
		stub := tu.NewStubServer(t)
		stub.JSON(http.MethodGet, "/rest/v1/tokens", http.StatusUnauthorized, map[string]any{"message": "JWT expired"})

		store := NewSupabaseTokenStore(shared.SupabaseConfig{URL: stub.URL, AnonKey: "anon"}, nil)
		_, err := store.Get(ctx, "u1", models.PlatformHubSpot)
		if shared.StatusCode(err) != http.StatusUnauthorized {
			t.Errorf("expected 401 APIError, got %v", err)
		}
	})
}

func TestNewTokenStore(t *testing.T) {
	cfg := shared.DefaultConfig()
	if _, ok := NewTokenStore(cfg, nil, nil).(*SQLiteTokenStore); !ok {
		t.Error("expected sqlite store by default")
	}

	cfg.Supabase.URL, cfg.Supabase.AnonKey = "https://x.supabase.co", "anon"
	if _, ok := NewTokenStore(cfg, nil, nil).(*SupabaseTokenStore); !ok {
		t.Error("expected supabase store when configured")
	}
}
