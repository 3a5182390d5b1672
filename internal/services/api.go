// Base HTTP client shared by the HubSpot and Marketing Cloud services
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/hsmc/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// APIService performs raw HTTP requests against one vendor base URL.
type APIService struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPIService creates a client for baseURL. name labels errors (e.g. "hubspot").
func NewAPIService(name, baseURL string, client *http.Client) *APIService {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// WithLimiter makes every request wait on l first.
func (a *APIService) WithLimiter(l *rate.Limiter) *APIService {
	a.limiter = l
	return a
}

// BaseURL returns the URL prefix requests are sent to.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// BearerClient wraps base so every request carries token as a bearer credential.
func BearerClient(base *http.Client, token string) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	Method     string
	Path       string
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Object returns the decoded body when it is a JSON object.
func (r *APIResponse) Object() map[string]any {
	m, _ := r.JSONData.(map[string]any)
	return m
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Do sends a request with an optional raw body and extra headers and returns the raw response.
//
// Non-2xx answers are not errors here; see [APIService.Expect].
func (a *APIService) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, data, map[string]string{"Content-Type": "application/json"})
}

// PostJSON marshals v and posts it.
func (a *APIService) PostJSON(ctx context.Context, path string, v any) (*APIResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return a.Post(ctx, path, data)
}

// Expect turns a non-2xx response into a [shared.APIError].
func (a *APIService) Expect(resp *APIResponse, err error) (*APIResponse, error) {
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &shared.APIError{
			Service:    a.name,
			Method:     resp.Method,
			Path:       resp.Path,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}
	return resp, nil
}
