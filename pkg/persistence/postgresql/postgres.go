// Package postgresql provides the PostgreSQL token store and batch journal.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/dukex/courier/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// TokenStore implements persistence.TokenStore for PostgreSQL.
type TokenStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ persistence.TokenStore = (*TokenStore)(nil)

// NewTokenStore connects to databaseURL and runs pending migrations.
func NewTokenStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*TokenStore, error) {
	database, err := open(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	return &TokenStore{db: database, logger: logger}, nil
}

func open(ctx context.Context, logger *slog.Logger, databaseURL string) (*sql.DB, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Save upserts the tokens of scope. An empty refresh token keeps the stored one.
func (s *TokenStore) Save(ctx context.Context, scope string, tokens models.RefreshAccessTokenResult) error {
	if scope == "" {
		return persistence.NewTokenError("Save", scope, persistence.ErrInvalidScope)
	}

	query := `
		INSERT INTO oauth_tokens (scope, access_token, refresh_token, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW())
		ON CONFLICT (scope) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, scope, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save tokens", "scope", scope, "error", err)

		return persistence.NewTokenError("Save", scope, err)
	}

	return nil
}

func (s *TokenStore) Get(ctx context.Context, scope string) (*persistence.StoredTokens, error) {
	query := `SELECT scope, access_token, COALESCE(refresh_token, ''), updated_at FROM oauth_tokens WHERE scope = $1`

	var stored persistence.StoredTokens

	err := s.db.QueryRowContext(ctx, query, scope).Scan(
		&stored.Scope,
		&stored.AccessToken,
		&stored.RefreshToken,
		&stored.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewTokenError("Get", scope, persistence.ErrTokensNotFound)
	}

	if err != nil {
		return nil, persistence.NewTokenError("Get", scope, err)
	}

	return &stored, nil
}

func (s *TokenStore) Delete(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE scope = $1`, scope)
	if err != nil {
		return persistence.NewTokenError("Delete", scope, err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *TokenStore) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *TokenStore) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
