package service

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	appleKeysURL  = "https://appleid.apple.com/auth/keys"
	appleIssuer   = "https://appleid.apple.com"
	appleKeysTTL  = 24 * time.Hour
	sessionExpiry = 7 * 24 * time.Hour
)

var (
	// ErrDevModeDisabled means dev sessions are not available.
	ErrDevModeDisabled = errors.New("dev mode disabled")

	// ErrInvalidToken means a credential failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// AuthService exchanges Apple identity tokens (or, in dev mode, bare user
// ids) for our own HS256 session JWTs and validates them on requests.
type AuthService struct {
	jwtSecret     string
	devMode       bool
	appleBundleID string
	keysURL       string
	client        *http.Client

	mu         sync.Mutex
	appleKeys  map[string]*rsa.PublicKey
	keysExpiry time.Time
}

// NewAuthService creates a new AuthService instance
func NewAuthService(jwtSecret, appleBundleID string, devMode bool) *AuthService {
	return &AuthService{
		jwtSecret:     jwtSecret,
		devMode:       devMode,
		appleBundleID: appleBundleID,
		keysURL:       appleKeysURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateDevSession mints a session token for an arbitrary user id. Only
// available when dev mode is enabled.
func (s *AuthService) CreateDevSession(userID string) (string, error) {
	if !s.devMode {
		return "", ErrDevModeDisabled
	}
	return s.mintToken(userID)
}

// CreateAppleSession verifies an Apple identity token and mints a session
// token for the stable Apple user id in its sub claim. Returns the session
// token and the user id.
func (s *AuthService) CreateAppleSession(ctx context.Context, identityToken string) (string, string, error) {
	token, err := jwt.Parse(identityToken, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("identity token missing kid header")
		}
		return s.applePublicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(s.appleBundleID),
		jwt.WithIssuer(appleIssuer),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", "", ErrInvalidToken
	}

	sessionToken, err := s.mintToken(userID)
	if err != nil {
		return "", "", err
	}
	return sessionToken, userID, nil
}

// ValidateToken checks a session token and returns the user id it names.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthService) mintToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(sessionExpiry).Unix(),
	})
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// applePublicKey returns Apple's signing key for kid, refreshing the cached
// key set when it is stale or missing the kid.
func (s *AuthService) applePublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().After(s.keysExpiry) || s.appleKeys[kid] == nil {
		if err := s.refreshAppleKeys(ctx); err != nil {
			return nil, err
		}
	}

	key := s.appleKeys[kid]
	if key == nil {
		return nil, fmt.Errorf("no Apple public key for kid %s", kid)
	}
	return key, nil
}

func (s *AuthService) refreshAppleKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.keysURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch Apple public keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Apple keys endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode Apple keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		pub, err := jwkToRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("Apple keys endpoint returned no usable keys")
	}

	s.appleKeys = keys
	s.keysExpiry = time.Now().Add(appleKeysTTL)
	return nil
}

func jwkToRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	exponent := 0
	for _, b := range eBytes {
		exponent = exponent<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: exponent,
	}, nil
}
