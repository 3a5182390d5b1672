package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
	tu "github.com/desertthunder/hsmc/internal/testing"
)

type memTokens map[string]*models.StoredToken

func (m memTokens) Get(_ context.Context, userID string, platform models.Platform) (*models.StoredToken, error) {
	if tok, ok := m[userID+"/"+string(platform)]; ok {
		return tok, nil
	}
	return nil, shared.ErrNotFound
}

func storedBlob(t *testing.T, userID string, platform models.Platform, v any) *models.StoredToken {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return &models.StoredToken{UserID: userID, Platform: platform, Token: data}
}

func sfmcAuthStub(t *testing.T, status int) *tu.StubServer {
	t.Helper()
	stub := tu.NewStubServer(t)
	if status == http.StatusOK {
		stub.JSON(http.MethodPost, "/v2/token", status, map[string]any{
			"access_token":      "sfmc-token",
			"token_type":        "Bearer",
			"expires_in":        1080,
			"rest_instance_url": "https://tenant.rest.marketingcloudapis.com/",
			"soap_instance_url": "https://tenant.soap.marketingcloudapis.com/",
		})
	} else {
		stub.JSON(http.MethodPost, "/v2/token", status, map[string]any{"error": "invalid_client"})
	}
	return stub
}

func TestResolveHubSpot(t *testing.T) {
	store := memTokens{
		"u1/hubspot": storedBlob(t, "u1", models.PlatformHubSpot, models.HubSpotTokenBlob{AccessToken: "stored-token"}),
	}
	r := NewResolver(ResolverOptions{Store: store})

	t.Run("Request Token Wins", func(t *testing.T) {
		cred, err := r.ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "u1", HubSpotToken: "req-token"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cred.AccessToken != "req-token" {
			t.Errorf("expected request token, got %s", cred.AccessToken)
		}
	})

	t.Run("Stored Token", func(t *testing.T) {
		cred, err := r.ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "u1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cred.AccessToken != "stored-token" {
			t.Errorf("expected stored token, got %s", cred.AccessToken)
		}
	})

	t.Run("Expired Stored Token Is Logged", func(t *testing.T) {
		var buf bytes.Buffer
		expiry := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		store := memTokens{
			"u2/hubspot": storedBlob(t, "u2", models.PlatformHubSpot, models.HubSpotTokenBlob{AccessToken: "old-token", Expiry: expiry}),
			"u3/hubspot": storedBlob(t, "u3", models.PlatformHubSpot, models.HubSpotTokenBlob{AccessToken: "live-token", Expiry: expiry.Add(24 * time.Hour)}),
		}
		r := NewResolver(ResolverOptions{Store: store, Logger: shared.NewLogger(&buf)})
		r.now = func() time.Time { return expiry.Add(time.Hour) }

		cred, err := r.ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "u3"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cred.Expired(r.now()) || strings.Contains(buf.String(), "past its expiry") {
			t.Errorf("unexpired token was reported as expired: %s", buf.String())
		}

		cred, err = r.ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "u2"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cred.AccessToken != "old-token" || !cred.ExpiresAt.Equal(expiry) {
			t.Errorf("expected the stored token with its expiry, got %+v", cred)
		}
		if !strings.Contains(buf.String(), "past its expiry") || !strings.Contains(buf.String(), "u2") {
			t.Errorf("expected an expiry warning, got %q", buf.String())
		}
	})

	t.Run("Neither", func(t *testing.T) {
		_, err := r.ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "nobody"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("No Store", func(t *testing.T) {
		_, err := NewResolver(ResolverOptions{}).ResolveHubSpot(context.Background(), &models.MigrationRequest{UserID: "u1"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestResolveSFMC(t *testing.T) {
	reqCreds := &models.SFMCCredentials{ClientID: "id", ClientSecret: "secret", Subdomain: "tenant", AccountID: "mid"}

	t.Run("Exchanges On Every Call", func(t *testing.T) {
		stub := sfmcAuthStub(t, http.StatusOK)
		r := NewResolver(ResolverOptions{SFMCAuth: stub.URL})
		req := &models.MigrationRequest{SFMCCredentials: reqCreds}

		for range 2 {
			cred, err := r.ResolveSFMC(context.Background(), req)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cred.AccessToken != "sfmc-token" {
				t.Errorf("expected sfmc-token, got %s", cred.AccessToken)
			}
			if cred.RestBaseURL != "https://tenant.rest.marketingcloudapis.com/" {
				t.Errorf("unexpected rest base %s", cred.RestBaseURL)
			}
		}

		calls := stub.Calls(http.MethodPost, "/v2/token")
		if len(calls) != 2 {
			t.Fatalf("expected a fresh exchange per call, got %d", len(calls))
		}

		var body map[string]string
		calls[0].JSON(t, &body)
		if body["grant_type"] != "client_credentials" || body["client_id"] != "id" || body["account_id"] != "mid" {
			t.Errorf("unexpected token request %v", body)
		}
	})

	t.Run("Stored Credentials", func(t *testing.T) {
		stub := sfmcAuthStub(t, http.StatusOK)
		store := memTokens{
			"u1/sfmc": storedBlob(t, "u1", models.PlatformSFMC, models.SFMCTokenBlob{SFMCCredentials: *reqCreds}),
		}
		r := NewResolver(ResolverOptions{SFMCAuth: stub.URL, Store: store})

		creds, fromRequest, err := r.SFMCCredentialsFor(context.Background(), &models.MigrationRequest{UserID: "u1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if fromRequest || creds.ClientID != "id" {
			t.Errorf("expected stored credentials, got %+v (fromRequest=%v)", creds, fromRequest)
		}
	})

	t.Run("Incomplete Request Falls Back To Missing", func(t *testing.T) {
		r := NewResolver(ResolverOptions{})
		_, err := r.ResolveSFMC(context.Background(), &models.MigrationRequest{
			SFMCCredentials: &models.SFMCCredentials{ClientID: "id"},
		})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Rejected Exchange", func(t *testing.T) {
		stub := sfmcAuthStub(t, http.StatusUnauthorized)
		r := NewResolver(ResolverOptions{SFMCAuth: stub.URL})

		_, err := r.ResolveSFMC(context.Background(), &models.MigrationRequest{SFMCCredentials: reqCreds})

		var authErr *shared.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized || authErr.Body == "" {
			t.Errorf("expected upstream status and body, got %+v", authErr)
		}
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Error("expected error to match ErrAuthFailed")
		}
	})
}

func TestExchangeHubSpotCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		stub := tu.NewStubServer(t)
		stub.JSON(http.MethodPost, "/oauth/v1/token", http.StatusOK, map[string]any{
			"access_token":  "hs-access",
			"refresh_token": "hs-refresh",
			"token_type":    "bearer",
			"expires_in":    1800,
		})

		r := NewResolver(ResolverOptions{HubSpot: shared.HubSpotConfig{ClientID: "cid", ClientSecret: "cs", RedirectURI: "http://localhost/cb"}})
		r.SetTokenURL(stub.URL + "/oauth/v1/token")

		tok, err := r.ExchangeHubSpotCode(context.Background(), "the-code")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok.AccessToken != "hs-access" || tok.RefreshToken != "hs-refresh" {
			t.Errorf("unexpected token %+v", tok)
		}
		if stub.Count(http.MethodPost, "/oauth/v1/token") != 1 {
			t.Error("expected one token request")
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		stub := tu.NewStubServer(t)
		stub.JSON(http.MethodPost, "/oauth/v1/token", http.StatusBadRequest, map[string]any{"status": "BAD_AUTH_CODE"})

		r := NewResolver(ResolverOptions{HubSpot: shared.HubSpotConfig{ClientID: "cid", ClientSecret: "cs"}})
		r.SetTokenURL(stub.URL + "/oauth/v1/token")

		_, err := r.ExchangeHubSpotCode(context.Background(), "bad")
		var authErr *shared.AuthError
		if !errors.As(err, &authErr) || authErr.StatusCode != http.StatusBadRequest {
			t.Errorf("expected AuthError with 400, got %v", err)
		}
	})

	t.Run("Missing Code", func(t *testing.T) {
		_, err := NewResolver(ResolverOptions{}).ExchangeHubSpotCode(context.Background(), "")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestAuthBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tenant", "https://tenant.auth.marketingcloudapis.com"},
		{" tenant.auth.marketingcloudapis.com ", "https://tenant.auth.marketingcloudapis.com"},
		{"https://tenant.auth.marketingcloudapis.com/", "https://tenant.auth.marketingcloudapis.com"},
		{"https://tenant.auth.marketingcloudapis.com/v2/token", "https://tenant.auth.marketingcloudapis.com"},
	}
	for _, tt := range tests {
		if got := AuthBaseURL(tt.in); got != tt.want {
			t.Errorf("AuthBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
