package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vantora/listings-worker/internal/models"
)

// ErrNoRefreshToken is returned when a refresh is required but the
// account has no stored refresh token. The account is unusable until the
// user reconnects; callers must surface this, never retry indefinitely.
var ErrNoRefreshToken = errors.New("no refresh token available")

// tokenExpirySkew refreshes tokens slightly early so a token handed to a
// long page loop does not expire mid-phase.
const tokenExpirySkew = 5 * time.Minute

// AccountStore is the account persistence the token manager needs.
type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (*models.IntegrationAccount, error)
	UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error
}

// TokenRefresher exchanges a refresh token at the provider.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
}

// TokenManager returns currently-valid access tokens for integration
// accounts, refreshing and persisting them when expired. Concurrent
// refreshes for the same account are tolerated as last write wins; the
// refresh grant is idempotent at the provider.
type TokenManager struct {
	accounts AccountStore
	provider TokenRefresher
	now      func() time.Time
}

func NewTokenManager(accounts AccountStore, provider TokenRefresher) *TokenManager {
	return &TokenManager{
		accounts: accounts,
		provider: provider,
		now:      time.Now,
	}
}

// GetValidAccessToken returns the stored access token if it is still
// valid, otherwise refreshes it against the provider first.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if account.AccessToken != nil && !m.isExpired(account.AccessTokenExpiresAt) {
		return *account.AccessToken, nil
	}

	return m.refresh(ctx, account)
}

// Refresh forces a token refresh regardless of stored expiry. Used after
// the provider answers 401 despite a seemingly valid token.
func (m *TokenManager) Refresh(ctx context.Context, accountID string) (string, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	return m.refresh(ctx, account)
}

func (m *TokenManager) refresh(ctx context.Context, account *models.IntegrationAccount) (string, error) {
	if account.RefreshToken == nil || *account.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	result, err := m.provider.RefreshAccessToken(ctx, *account.RefreshToken)
	if err != nil {
		// Stored tokens stay untouched on failure
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	err = m.accounts.UpdateTokens(ctx, account.ID, result.AccessToken, result.RefreshToken, result.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to update tokens in database: %w", err)
	}

	log.Printf("Token refreshed for account %s, expires at %s", account.ID, result.ExpiresAt)

	return result.AccessToken, nil
}

// isExpired checks if the access token is expired or about to expire
func (m *TokenManager) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true // Assume expired if no expiry time
	}
	return m.now().Add(tokenExpirySkew).After(*expiresAt)
}
