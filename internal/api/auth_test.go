package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calorily/backend/internal/api"
	"github.com/calorily/backend/internal/service"
)

// stubAuthService scripts session issuance for handler tests.
type stubAuthService struct {
	devMode  bool
	appleErr error
}

func (s *stubAuthService) CreateDevSession(userID string) (string, error) {
	if !s.devMode {
		return "", service.ErrDevModeDisabled
	}
	return "session-" + userID, nil
}

func (s *stubAuthService) CreateAppleSession(ctx context.Context, identityToken string) (string, string, error) {
	if s.appleErr != nil {
		return "", "", s.appleErr
	}
	return "session-apple-user", "apple-user", nil
}

func (s *stubAuthService) ValidateToken(token string) (string, error) {
	return "", service.ErrInvalidToken
}

func newAuthRouter(auth service.IAuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := api.NewAuthHandler(auth)
	r := gin.New()
	r.POST("/auth/dev", handler.CreateDevSession)
	r.POST("/auth/apple", handler.CreateAppleSession)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateDevSessionEndpoint(t *testing.T) {
	r := newAuthRouter(&stubAuthService{devMode: true})

	w := postJSON(t, r, "/auth/dev", gin.H{"user_id": "dev-user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "session-dev-user-1", body["jwt"])
	assert.Equal(t, "dev-user-1", body["user_id"])

	w = postJSON(t, r, "/auth/dev", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDevSessionEndpointDisabled(t *testing.T) {
	r := newAuthRouter(&stubAuthService{devMode: false})

	w := postJSON(t, r, "/auth/dev", gin.H{"user_id": "dev-user-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateAppleSessionEndpoint(t *testing.T) {
	r := newAuthRouter(&stubAuthService{})

	w := postJSON(t, r, "/auth/apple", gin.H{"identity_token": "apple-identity-token"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "session-apple-user", body["jwt"])
	assert.Equal(t, "apple-user", body["user_id"])

	w = postJSON(t, r, "/auth/apple", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAppleSessionEndpointInvalid(t *testing.T) {
	r := newAuthRouter(&stubAuthService{appleErr: service.ErrInvalidToken})

	w := postJSON(t, r, "/auth/apple", gin.H{"identity_token": "garbage"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
