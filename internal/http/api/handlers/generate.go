package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/gemini"
	"github.com/ideaspark/ideaspark/internal/quota"
	"github.com/ideaspark/ideaspark/internal/ratelimit"
	"github.com/ideaspark/ideaspark/internal/security"
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
	log "github.com/sirupsen/logrus"
)

// GenerateHandler serves gated content generation requests.
type GenerateHandler struct {
	jwtCfg    config.JWTConfig
	tracker   *quota.Tracker
	generator gemini.Generator
	limiter   *ratelimit.Manager
	settings  *internalsettings.Store
	nowFn     func() time.Time
}

// NewGenerateHandler constructs a GenerateHandler.
func NewGenerateHandler(
	jwtCfg config.JWTConfig,
	tracker *quota.Tracker,
	generator gemini.Generator,
	limiter *ratelimit.Manager,
	settings *internalsettings.Store,
) *GenerateHandler {
	return &GenerateHandler{
		jwtCfg:    jwtCfg,
		tracker:   tracker,
		generator: generator,
		limiter:   limiter,
		settings:  settings,
		nowFn:     time.Now,
	}
}

// generateRequest defines the request body for content generation.
type generateRequest struct {
	MainKeyword      string `json:"mainKeyword"`
	TrendingKeywords string `json:"trendingKeywords"`
}

// Generate runs the gated generation flow: validate input, resolve
// identity, check the anonymous daily quota, call the provider, and
// only then record quota usage.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Main keyword is required"})
		return
	}
	mainKeyword := strings.TrimSpace(body.MainKeyword)
	if mainKeyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Main keyword is required"})
		return
	}

	clientIP := c.ClientIP()

	if h.limiter != nil {
		result, errAllow := h.limiter.Allow(c.Request.Context(), ratelimit.KeyForIP(clientIP), h.limiter.Limit())
		if errAllow == nil && !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}
	}

	// A bad token is downgraded to anonymous here instead of rejected,
	// so a stale session can still use the free tier.
	isAuthenticated := h.callerAuthenticated(c)

	today := quota.DateUTC(h.nowFn())
	if !isAuthenticated {
		limit := internalsettings.DefaultDailyFreeLimit
		if h.settings != nil {
			limit = h.settings.Int(internalsettings.DailyFreeLimitKey, internalsettings.DefaultDailyFreeLimit)
		}
		if errAllow := h.tracker.Allow(c.Request.Context(), clientIP, today, limit); errAllow != nil {
			if errors.Is(errAllow, quota.ErrLimitExceeded) {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":        "Daily limit reached. Please sign up or log in to generate more content ideas.",
					"requiresAuth": true,
				})
				return
			}
			log.WithError(errAllow).Error("generate: quota check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	prompt := gemini.BuildPrompt(mainKeyword, strings.TrimSpace(body.TrendingKeywords))
	content, errGenerate := h.generator.Generate(c.Request.Context(), prompt)
	if errGenerate != nil {
		if errors.Is(errGenerate, gemini.ErrNotConfigured) {
			log.Error("generate: gemini api key not configured")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Gemini API key not configured"})
			return
		}
		log.WithError(errGenerate).Error("generate: provider call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate content"})
		return
	}

	if !isAuthenticated {
		if errRecord := h.tracker.Record(c.Request.Context(), clientIP, today); errRecord != nil {
			// The caller already has their content; log and continue.
			log.WithError(errRecord).Warn("generate: record usage failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
		"ideas":   gemini.ParseIdeas(content),
	})
}

// callerAuthenticated reports whether a valid bearer token accompanies
// the request. Absent and invalid tokens both count as anonymous.
func (h *GenerateHandler) callerAuthenticated(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	_, errParse := security.ParseUserToken(h.jwtCfg.Secret, token)
	return errParse == nil
}
