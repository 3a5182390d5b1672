package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
)

// SupabaseTokenStore implements [TokenStore] against a PostgREST table.
type SupabaseTokenStore struct {
	api   *services.APIService
	key   string
	table string
	now   func() time.Time
}

// NewSupabaseTokenStore creates a store for cfg. An empty table name means "tokens".
func NewSupabaseTokenStore(cfg shared.SupabaseConfig, client *http.Client) *SupabaseTokenStore {
	table := cfg.Table
	if table == "" {
		table = "tokens"
	}
	return &SupabaseTokenStore{
		api:   services.NewAPIService("supabase", cfg.URL+"/rest/v1", client),
		key:   cfg.AnonKey,
		table: table,
		now:   time.Now,
	}
}

func (s *SupabaseTokenStore) headers(extra map[string]string) map[string]string {
	h := map[string]string{
		"apikey":        s.key,
		"Authorization": "Bearer " + s.key,
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (s *SupabaseTokenStore) filter(userID string, platform models.Platform) url.Values {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("platform", "eq."+string(platform))
	return q
}

type supabaseRow struct {
	UserID    string          `json:"user_id"`
	Platform  string          `json:"platform"`
	Token     json.RawMessage `json:"token"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Get retrieves the token stored for (userID, platform)
func (s *SupabaseTokenStore) Get(ctx context.Context, userID string, platform models.Platform) (*models.StoredToken, error) {
	q := s.filter(userID, platform)
	q.Set("select", "user_id,platform,token,updated_at")
	q.Set("limit", "1")

	resp, err := s.api.Expect(s.api.Do(ctx, http.MethodGet, "/"+s.table+"?"+q.Encode(), nil, s.headers(nil)))
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	var rows []supabaseRow
	if err := resp.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s token for %s", shared.ErrNotFound, platform, userID)
	}

	row := rows[0]
	blob := row.Token
	// text columns come back as a JSON string holding the blob
	var inner string
	if json.Unmarshal(blob, &inner) == nil {
		blob = json.RawMessage(inner)
	}
	return &models.StoredToken{
		UserID:    row.UserID,
		Platform:  models.Platform(row.Platform),
		Token:     blob,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Upsert inserts the token or merges it into the row already stored for its (user, platform)
func (s *SupabaseTokenStore) Upsert(ctx context.Context, token *models.StoredToken) error {
	if token.UserID == "" || token.Platform == "" {
		return fmt.Errorf("%w: user id and platform", shared.ErrMissingArgument)
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = s.now().UTC()
	}

	body, err := json.Marshal([]supabaseRow{{
		UserID:    token.UserID,
		Platform:  string(token.Platform),
		Token:     token.Token,
		UpdatedAt: token.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	_, err = s.api.Expect(s.api.Do(ctx, http.MethodPost, "/"+s.table+"?on_conflict=user_id,platform", body, s.headers(map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "resolution=merge-duplicates,return=minimal",
	})))
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// Delete removes the token for (userID, platform)
func (s *SupabaseTokenStore) Delete(ctx context.Context, userID string, platform models.Platform) error {
	path := "/" + s.table + "?" + s.filter(userID, platform).Encode()
	if _, err := s.api.Expect(s.api.Do(ctx, http.MethodDelete, path, nil, s.headers(nil))); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
