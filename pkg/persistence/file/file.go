// Package file provides a file-based token store, one JSON document per scope.
package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
)

// TokenStore implements persistence.TokenStore using the file system.
type TokenStore struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

var _ persistence.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a token store rooted at root. A "file://" prefix is accepted.
func NewTokenStore(root string) *TokenStore {
	return &TokenStore{
		root: filepath.Join(strings.Replace(root, "file://", "", 1), "tokens"),
		now:  time.Now,
	}
}

func (s *TokenStore) Save(_ context.Context, scope string, tokens models.RefreshAccessTokenResult) error {
	if scope == "" {
		return persistence.NewTokenError("Save", scope, persistence.ErrInvalidScope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := persistence.StoredTokens{
		Scope:        scope,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UpdatedAt:    s.now().UTC(),
	}

	if stored.RefreshToken == "" {
		previous, err := s.read(scope)
		if err == nil {
			stored.RefreshToken = previous.RefreshToken
		} else if !persistence.IsTokensNotFound(err) {
			return persistence.NewTokenError("Save", scope, err)
		}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return persistence.NewTokenError("Save", scope, err)
	}

	err = os.MkdirAll(s.root, 0o700)
	if err != nil {
		return persistence.NewTokenError("Save", scope, fmt.Errorf("failed to create directory: %w", err))
	}

	// Written to a temporary file first so readers never see a partial document.
	tmp, err := os.CreateTemp(s.root, ".tokens-*")
	if err != nil {
		return persistence.NewTokenError("Save", scope, err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewTokenError("Save", scope, err)
	}

	err = os.Rename(tmp.Name(), s.path(scope))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewTokenError("Save", scope, err)
	}

	return nil
}

func (s *TokenStore) Get(_ context.Context, scope string) (*persistence.StoredTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.read(scope)
	if err != nil {
		return nil, persistence.NewTokenError("Get", scope, err)
	}

	return stored, nil
}

func (s *TokenStore) Delete(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(scope))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewTokenError("Delete", scope, err)
	}

	return nil
}

// HealthCheck verifies that the root directory can be created.
func (s *TokenStore) HealthCheck(_ context.Context) error {
	return os.MkdirAll(s.root, 0o700)
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (s *TokenStore) Close(_ context.Context) error {
	return nil
}

func (s *TokenStore) read(scope string) (*persistence.StoredTokens, error) {
	data, err := os.ReadFile(s.path(scope))
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrTokensNotFound
	}

	if err != nil {
		return nil, err
	}

	var stored persistence.StoredTokens

	err = json.Unmarshal(data, &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}

	return &stored, nil
}

func (s *TokenStore) path(scope string) string {
	return filepath.Join(s.root, base64.RawURLEncoding.EncodeToString([]byte(scope))+".json")
}
