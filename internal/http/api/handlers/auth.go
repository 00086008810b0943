package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/models"
	"github.com/ideaspark/ideaspark/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler manages signup, signin, and signout endpoints.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// signUpRequest defines the request body for account creation.
type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// userPayload is the public user shape returned by auth endpoints.
func userPayload(user models.User) gin.H {
	return gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"fullName": user.FullName,
	}
}

// SignUp registers a new account and returns a bearer token.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var body signUpRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || strings.TrimSpace(body.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var existing models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&existing).Error
	if errFind == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
		return
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		log.WithError(errFind).Error("signup: lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		log.WithError(errHash).Error("signup: hash password failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	user := models.User{
		Email:    email,
		Password: hash,
		FullName: strings.TrimSpace(body.FullName),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		// The unique index can still trip under concurrent signups.
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
		return
	}

	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, user.ID, user.Email)
	if errToken != nil {
		log.WithError(errToken).Error("signup: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user), "token": token})
}

// signInRequest defines the request body for signing in.
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn verifies credentials and returns a bearer token.
// Unknown email and wrong password produce the same response.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var body signInRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || strings.TrimSpace(body.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
			return
		}
		log.WithError(errFind).Error("signin: lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
		return
	}

	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, user.ID, user.Email)
	if errToken != nil {
		log.WithError(errToken).Error("signin: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user), "token": token})
}

// SignOut acknowledges signout. Tokens are stateless; the client discards its copy.
func (h *AuthHandler) SignOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

// GoogleStub is a placeholder for the unimplemented OAuth flow.
func (h *AuthHandler) GoogleStub(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "Google sign-in is not available"})
}
