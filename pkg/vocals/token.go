package vocals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	TokenExpiry     = 10 * time.Minute
	APIKeyMinLength = 32
	apiKeyPrefix    = "vdev_"
)

// TokenSource supplies the bearer token sent on the WebSocket handshake.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ValidateAPIKeyFormat checks the shape of a developer API key.
func ValidateAPIKeyFormat(apiKey string) error {
	if len(apiKey) >= APIKeyMinLength && strings.HasPrefix(apiKey, apiKeyPrefix) {
		return nil
	}
	return NewVocalsError("Invalid API key format", ErrCodeAuthFailed)
}

// JWTSigner mints short-lived HS256 tokens signed with the API key.
type JWTSigner struct {
	apiKey string
	expiry time.Duration
	now    func() time.Time
}

// NewJWTSigner validates apiKey and returns a signer for it.
func NewJWTSigner(apiKey string) (*JWTSigner, error) {
	if err := ValidateAPIKeyFormat(apiKey); err != nil {
		return nil, err
	}
	return &JWTSigner{apiKey: apiKey, expiry: TokenExpiry, now: time.Now}, nil
}

// Token implements TokenSource.
func (s *JWTSigner) Token(_ context.Context) (string, error) {
	expiresAt := s.now().Add(s.expiry)
	claims := jwt.MapClaims{
		"apiKey": s.apiKey[:8] + "...",
		"exp":    expiresAt.Unix(),
		"iat":    s.now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.apiKey))
	if err != nil {
		return "", WrapError(fmt.Errorf("sign token: %w", err), ErrCodeAuthFailed)
	}
	return signed, nil
}

// ParseToken verifies a token minted by a JWTSigner with the same key.
func ParseToken(token, apiKey string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(apiKey), nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeAuthFailed)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, NewVocalsError("Invalid token", ErrCodeAuthFailed)
	}
	return claims, nil
}

// TokenManager fetches tokens from an HTTP endpoint and caches them until
// shortly before expiry.
type TokenManager struct {
	endpoint      string
	headers       map[string]string
	refreshBuffer time.Duration
	client        *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenManager(endpoint string, headers map[string]string, refreshBuffer time.Duration) *TokenManager {
	return &TokenManager{
		endpoint:      endpoint,
		headers:       headers,
		refreshBuffer: refreshBuffer,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Token implements TokenSource.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.refreshBuffer)) {
		return tm.token, nil
	}
	return tm.refresh(ctx)
}

func (tm *TokenManager) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.endpoint, bytes.NewBufferString("{}"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range tm.headers {
		req.Header.Set(k, v)
	}

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewVocalsError(fmt.Sprintf("failed to refresh token: %s", resp.Status), ErrCodeAuthFailed)
	}

	var body struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Token == "" {
		return "", NewVocalsError("no token received", ErrCodeAuthFailed)
	}

	tm.token = body.Token
	tm.expiresAt = time.UnixMilli(body.ExpiresAt)
	return tm.token, nil
}

// Clear drops the cached token.
func (tm *TokenManager) Clear() {
	tm.mu.Lock()
	tm.token = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()
}

// TokenSourceFromConfig picks the token source implied by cfg: the token
// endpoint if set, otherwise a JWT signed with VOCALS_DEV_API_KEY. It returns
// nil when token auth is disabled.
func TokenSourceFromConfig(cfg *EngineConfig) (TokenSource, error) {
	if !cfg.UseTokenAuth {
		return nil, nil
	}
	if cfg.TokenEndpoint != nil {
		return NewTokenManager(*cfg.TokenEndpoint, cfg.Headers, cfg.TokenRefreshBuffer), nil
	}
	apiKey := os.Getenv("VOCALS_DEV_API_KEY")
	if apiKey == "" {
		return nil, NewConfigError("VOCALS_DEV_API_KEY not set")
	}
	return NewJWTSigner(apiKey)
}
