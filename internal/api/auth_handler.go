package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tradeinsight/internal/auth"
	"tradeinsight/internal/database"
	"tradeinsight/internal/logger"
)

// AuthHandler handles registration, login, and session management.
// Refresh tokens are opaque random values stored server-side, so a
// stolen token can be revoked by deleting its session row.
type AuthHandler struct {
	jwtManager      *auth.JWTManager
	db              *database.DB
	refreshDuration time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtManager *auth.JWTManager, db *database.DB, refreshDuration time.Duration) *AuthHandler {
	if refreshDuration <= 0 {
		refreshDuration = 7 * 24 * time.Hour
	}
	return &AuthHandler{
		jwtManager:      jwtManager,
		db:              db,
		refreshDuration: refreshDuration,
	}
}

// Register creates a new user account
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} Response
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	exists, err := h.db.CheckUserExists(ctx, req.Username, req.Email)
	if err != nil {
		logger.Error("failed to check user existence", "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to register user"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, Response{Success: false, Error: "Username or email already taken"})
		return
	}

	user, err := h.db.CreateUser(ctx, req.Username, req.Email, req.Password, "user")
	if err != nil {
		logger.Error("failed to create user", "username", req.Username, "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to register user"})
		return
	}

	logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username)

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "User registered successfully",
		Data: gin.H{
			"user_id":  user.ID.String(),
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// Login authenticates a user and issues a token pair
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Response
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	user, err := h.db.GetUserByUsername(ctx, req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Invalid username or password"})
		return
	}
	if err := database.ValidatePassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Invalid username or password"})
		return
	}

	authResp, err := h.issueTokens(c, user)
	if err != nil {
		logger.Error("failed to issue tokens", "user_id", user.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to log in"})
		return
	}

	if err := h.db.UpdateUserLastLogin(ctx, user.ID); err != nil {
		logger.Warn("failed to update last login", "user_id", user.ID.String(), "error", err.Error())
	}

	logger.Info("user logged in", "user_id", user.ID.String(), "username", user.Username)

	c.JSON(http.StatusOK, Response{Success: true, Data: authResp})
}

// RefreshToken exchanges a refresh token for a new token pair. The old
// session is deleted so each refresh token is single-use.
// @Summary Refresh access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} Response
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	session, err := h.db.GetUserSessionByToken(ctx, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Invalid or expired refresh token"})
		return
	}

	user, err := h.db.GetUserByID(ctx, session.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "User not found"})
		return
	}

	if err := h.db.DeleteUserSession(ctx, session.ID); err != nil {
		logger.Warn("failed to delete rotated session", "session_id", session.ID.String(), "error", err.Error())
	}

	authResp, err := h.issueTokens(c, user)
	if err != nil {
		logger.Error("failed to issue tokens", "user_id", user.ID.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "Failed to refresh token"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: authResp})
}

// Logout revokes the presented refresh token
// @Summary Log out
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} Response
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	ctx := c.Request.Context()

	session, err := h.db.GetUserSessionByToken(ctx, req.RefreshToken)
	if err == nil {
		if err := h.db.DeleteUserSession(ctx, session.ID); err != nil {
			logger.Warn("failed to delete session", "session_id", session.ID.String(), "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Message: "Logged out"})
}

// GetProfile returns the authenticated user's profile
// @Summary Get current user profile
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.db.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "User not found"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"user_id":    user.ID.String(),
			"username":   user.Username,
			"email":      user.Email,
			"role":       user.Role,
			"last_login": user.LastLogin,
			"created_at": user.CreatedAt,
		},
	})
}

func (h *AuthHandler) issueTokens(c *gin.Context, user *database.User) (*AuthResponse, error) {
	accessToken, expiresAt, err := h.jwtManager.GenerateToken(user.ID.String(), user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	refreshExpiry := time.Now().UTC().Add(h.refreshDuration)
	if _, err := h.db.CreateUserSession(ctx, user.ID, refreshToken, refreshExpiry); err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       user.ID.String(),
		Username:     user.Username,
		Role:         user.Role,
	}, nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// currentUserID extracts the authenticated user ID set by the auth
// middleware. Writes the error response itself when missing.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "Unauthorized"})
		return uuid.Nil, false
	}
	return userID, true
}
