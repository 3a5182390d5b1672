package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// SQLiteTokenStore implements [TokenStore] on the local tokens table.
type SQLiteTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteTokenStore creates a new [SQLiteTokenStore] with the given database connection
func NewSQLiteTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db, now: time.Now}
}

// Get retrieves the token stored for (userID, platform)
func (r *SQLiteTokenStore) Get(ctx context.Context, userID string, platform models.Platform) (*models.StoredToken, error) {
	query := `SELECT user_id, platform, token, updated_at FROM tokens WHERE user_id = ? AND platform = ?`

	var (
		tok     models.StoredToken
		platStr string
		blob    string
	)
	err := r.db.QueryRowContext(ctx, query, userID, string(platform)).Scan(&tok.UserID, &platStr, &blob, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s token for %s", shared.ErrNotFound, platform, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	tok.Platform = models.Platform(platStr)
	tok.Token = []byte(blob)
	return &tok, nil
}

// Upsert inserts the token or replaces the one already stored for its (user, platform)
func (r *SQLiteTokenStore) Upsert(ctx context.Context, token *models.StoredToken) error {
	if token.UserID == "" || token.Platform == "" {
		return fmt.Errorf("%w: user id and platform", shared.ErrMissingArgument)
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = r.now().UTC()
	}

	query := `
		INSERT INTO tokens (user_id, platform, token, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, platform) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, token.UserID, string(token.Platform), string(token.Token), token.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// Delete removes the token for (userID, platform). Deleting a missing row is not an error.
func (r *SQLiteTokenStore) Delete(ctx context.Context, userID string, platform models.Platform) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE user_id = ? AND platform = ?`, userID, string(platform)); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
