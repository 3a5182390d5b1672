package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

const (
	hubspotAuthURL  = "https://app.hubspot.com/oauth/authorize"
	hubspotTokenURL = "https://api.hubapi.com/oauth/v1/token"
)

// TokenGetter is the read side of the token store.
type TokenGetter interface {
	Get(ctx context.Context, userID string, platform models.Platform) (*models.StoredToken, error)
}

// Resolver turns a request plus stored tokens into usable credentials for both platforms.
//
// Nothing is cached: every call to [Resolver.ResolveSFMC] performs a fresh token exchange.
type Resolver struct {
	hubspot    *oauth2.Config
	store      TokenGetter
	authURL    string
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// ResolverOptions configures a [Resolver]. Zero values fall back to production endpoints.
type ResolverOptions struct {
	HubSpot    shared.HubSpotConfig
	SFMCAuth   string // overrides https://{subdomain}.auth.marketingcloudapis.com
	Store      TokenGetter
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewResolver builds a resolver from opts.
func NewResolver(opts ResolverOptions) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Resolver{
		hubspot: &oauth2.Config{
			ClientID:     opts.HubSpot.ClientID,
			ClientSecret: opts.HubSpot.ClientSecret,
			RedirectURL:  opts.HubSpot.RedirectURI,
			Scopes:       opts.HubSpot.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   hubspotAuthURL,
				TokenURL:  hubspotTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:      opts.Store,
		authURL:    strings.TrimRight(opts.SFMCAuth, "/"),
		httpClient: client,
		logger:     shared.WithLogger(logger, "component", "credentials"),
		now:        time.Now,
	}
}

// SetTokenURL points the HubSpot code exchange at another token endpoint.
func (r *Resolver) SetTokenURL(u string) {
	r.hubspot.Endpoint.TokenURL = u
}

// AuthCodeURL returns the HubSpot authorization URL for state.
func (r *Resolver) AuthCodeURL(state string) string {
	return r.hubspot.AuthCodeURL(state)
}

// ExchangeHubSpotCode trades an authorization code for a HubSpot token.
func (r *Resolver) ExchangeHubSpotCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := r.hubspot.Exchange(ctx, code)
	if err != nil {
		authErr := &shared.AuthError{Platform: string(models.PlatformHubSpot), Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			authErr.StatusCode = re.Response.StatusCode
			authErr.Body = string(re.Body)
		}
		return nil, authErr
	}
	return tok, nil
}

// ResolveHubSpot picks the request's bearer token when present, otherwise the stored one.
// An expired stored token is still returned and logged.
func (r *Resolver) ResolveHubSpot(ctx context.Context, req *models.MigrationRequest) (*models.Credential, error) {
	if req.HubSpotToken != "" {
		return &models.Credential{Platform: models.PlatformHubSpot, AccessToken: req.HubSpotToken}, nil
	}

	stored, err := r.stored(ctx, req.UserID, models.PlatformHubSpot)
	if err != nil {
		return nil, err
	}

	var blob models.HubSpotTokenBlob
	if err := json.Unmarshal(stored.Token, &blob); err != nil || blob.AccessToken == "" {
		return nil, fmt.Errorf("%w: stored hubspot token for %s is unreadable", shared.ErrMissingCredentials, req.UserID)
	}
	cred := &models.Credential{
		Platform:    models.PlatformHubSpot,
		ClientID:    r.hubspot.ClientID,
		AccessToken: blob.AccessToken,
		ExpiresAt:   blob.Expiry,
	}
	if cred.Expired(r.now()) {
		r.logger.Warn("stored hubspot token is past its expiry; reconnect if requests are rejected", "user", req.UserID, "expiresAt", cred.ExpiresAt)
	}
	return cred, nil
}

// SFMCCredentialsFor returns the request's client credentials when complete, otherwise the stored ones.
func (r *Resolver) SFMCCredentialsFor(ctx context.Context, req *models.MigrationRequest) (models.SFMCCredentials, bool, error) {
	if req.SFMCCredentials.Complete() {
		return *req.SFMCCredentials, true, nil
	}

	stored, err := r.stored(ctx, req.UserID, models.PlatformSFMC)
	if err != nil {
		return models.SFMCCredentials{}, false, err
	}

	var blob models.SFMCTokenBlob
	if err := json.Unmarshal(stored.Token, &blob); err != nil || !blob.Complete() {
		return models.SFMCCredentials{}, false, fmt.Errorf("%w: stored sfmc credentials for %s are incomplete", shared.ErrMissingCredentials, req.UserID)
	}
	return blob.SFMCCredentials, false, nil
}

// ResolveSFMC resolves client credentials and exchanges them for a fresh access token.
func (r *Resolver) ResolveSFMC(ctx context.Context, req *models.MigrationRequest) (*models.Credential, error) {
	creds, _, err := r.SFMCCredentialsFor(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.ExchangeSFMC(ctx, creds)
}

func (r *Resolver) stored(ctx context.Context, userID string, platform models.Platform) (*models.StoredToken, error) {
	if r.store == nil || userID == "" {
		return nil, fmt.Errorf("%w: no %s token supplied", shared.ErrMissingCredentials, platform)
	}
	tok, err := r.store.Get(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s token stored for %s", shared.ErrMissingCredentials, platform, userID)
		}
		return nil, err
	}
	return tok, nil
}

// sfmcTokenResponse is the body of a successful client-credentials exchange.
type sfmcTokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	Scope           string `json:"scope"`
	RestInstanceURL string `json:"rest_instance_url"`
	SoapInstanceURL string `json:"soap_instance_url"`
}

// AuthBaseURL derives the tenant authentication base from a subdomain, which users sometimes paste as a full URL.
func AuthBaseURL(subdomain string) string {
	sub := strings.TrimSpace(subdomain)
	if strings.HasPrefix(sub, "http://") || strings.HasPrefix(sub, "https://") {
		sub = strings.TrimRight(sub, "/")
		return strings.TrimSuffix(sub, "/v2/token")
	}
	sub = strings.TrimSuffix(sub, ".auth.marketingcloudapis.com")
	return fmt.Sprintf("https://%s.auth.marketingcloudapis.com", sub)
}

// ExchangeSFMC performs the client-credentials grant.
func (r *Resolver) ExchangeSFMC(ctx context.Context, creds models.SFMCCredentials) (*models.Credential, error) {
	base := r.authURL
	if base == "" {
		base = AuthBaseURL(creds.Subdomain)
	}

	payload := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	}
	if creds.AccountID != "" {
		payload["account_id"] = creds.AccountID
	}

	api := NewAPIService(string(models.PlatformSFMC), base, r.httpClient)
	resp, err := api.PostJSON(ctx, "/v2/token", payload)
	if err != nil {
		return nil, &shared.AuthError{Platform: string(models.PlatformSFMC), Err: err}
	}

	var tok sfmcTokenResponse
	if !resp.OK() || resp.Decode(&tok) != nil || tok.AccessToken == "" {
		r.logger.Warn("sfmc token exchange rejected", "status", resp.StatusCode, "subdomain", creds.Subdomain)
		return nil, &shared.AuthError{
			Platform:   string(models.PlatformSFMC),
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	issued := (&oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      r.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}).WithExtra(map[string]any{
		"rest_instance_url": tok.RestInstanceURL,
		"soap_instance_url": tok.SoapInstanceURL,
	})

	r.logger.Debug("sfmc token issued", "subdomain", creds.Subdomain, "expires_in", tok.ExpiresIn)

	return &models.Credential{
		Platform:     models.PlatformSFMC,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Subdomain:    creds.Subdomain,
		AccountID:    creds.AccountID,
		AccessToken:  issued.AccessToken,
		ExpiresAt:    issued.Expiry,
		RestBaseURL:  instanceURL(issued, "rest_instance_url", base, "rest"),
		SoapBaseURL:  instanceURL(issued, "soap_instance_url", base, "soap"),
	}, nil
}

// instanceURL reads an instance URL from the token extras, deriving it from the auth base when absent.
func instanceURL(tok *oauth2.Token, key, authBase, kind string) string {
	if v, ok := tok.Extra(key).(string); ok && v != "" {
		return v
	}
	return strings.Replace(authBase, ".auth.", "."+kind+".", 1) + "/"
}
