package tracker

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth authenticates as a GitHub App installation: it mints a short-lived
// RS256-signed app JWT and exchanges it for an installation access token,
// which is cached until shortly before expiry.
type AppAuth struct {
	appID          string
	installationID string
	privateKey     *rsa.PrivateKey
	baseURL        string
	httpClient     *http.Client

	mu          sync.Mutex
	cachedToken string
	expiresAt   time.Time
}

// NewAppAuth creates an installation token source from a PEM private key
// file, as provided to GitHub App workflows.
func NewAppAuth(appID, installationID, privateKeyPath string) (*AppAuth, error) {
	pemBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read app private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}

	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		baseURL:        defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Token returns a valid installation access token, refreshing it when the
// cached one is within a minute of expiring.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cachedToken != "" && time.Until(a.expiresAt) > time.Minute {
		return a.cachedToken, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", err
	}

	tokenURL := fmt.Sprintf("%s/app/installations/%s/access_tokens", a.baseURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("installation token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("installation token request returned %d", resp.StatusCode)
	}

	var tokenResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", fmt.Errorf("failed to decode installation token response: %w", err)
	}

	a.cachedToken = tokenResponse.Token
	a.expiresAt = tokenResponse.ExpiresAt
	return a.cachedToken, nil
}

// signAppJWT mints the app-level JWT. GitHub requires iat slightly in the
// past to tolerate clock drift, and caps the lifetime at ten minutes.
func (a *AppAuth) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}
	return signed, nil
}
