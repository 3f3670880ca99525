package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calorily/backend/internal/service"
)

// AuthHandler serves the session endpoints
type AuthHandler struct {
	auth service.IAuthService
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(auth service.IAuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// CreateAppleSession exchanges an Apple identity token for a session JWT.
func (h *AuthHandler) CreateAppleSession(c *gin.Context) {
	var req AppleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	token, userID, err := h.auth.CreateAppleSession(c.Request.Context(), req.IdentityToken)
	if err != nil {
		log.Printf("[AuthHandler] Apple token validation failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
		return
	}

	log.Printf("[AuthHandler] Apple Sign In successful for user: %s", userID)
	c.JSON(http.StatusOK, gin.H{"jwt": token, "user_id": userID})
}

// CreateDevSession mints a session JWT for an arbitrary user id. Dev only.
func (h *AuthHandler) CreateDevSession(c *gin.Context) {
	var req DevSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	token, err := h.auth.CreateDevSession(req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrDevModeDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "dev mode disabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error happened"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jwt": token, "user_id": req.UserID})
}
