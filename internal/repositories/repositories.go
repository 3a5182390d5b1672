// package repositories provides the token store: per-user platform tokens keyed by (user_id, platform).
package repositories

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// TokenStore persists one token blob per (user, platform). Get returns [shared.ErrNotFound] on a miss
// and Upsert replaces any existing row.
type TokenStore interface {
	Get(ctx context.Context, userID string, platform models.Platform) (*models.StoredToken, error)
	Upsert(ctx context.Context, token *models.StoredToken) error
	Delete(ctx context.Context, userID string, platform models.Platform) error
}

// NewTokenStore selects the hosted store when cfg configures Supabase, otherwise the SQLite store on db.
func NewTokenStore(cfg *shared.Config, db *sql.DB, client *http.Client) TokenStore {
	if cfg.UseSupabase() {
		return NewSupabaseTokenStore(cfg.Supabase, client)
	}
	return NewSQLiteTokenStore(db)
}
