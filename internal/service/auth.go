package service

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const (
	SessionCookie     = "auth_token"
	defaultSessionTTL = 12 * time.Hour
	totpIssuer        = "Steward Dashboard"
)

// AuthService guards the dashboard API with a TOTP login and in-memory
// sessions. Sessions do not survive a restart.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string
	ttl        time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAuthService(logger *zap.Logger, totpSecret, sessionTTL string) *AuthService {
	ttl, err := time.ParseDuration(sessionTTL)
	if err != nil || ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
		ttl:        ttl,
		now:        time.Now,
		sessions:   make(map[string]time.Time),
	}
}

// GenerateSecret creates a new TOTP secret and its otpauth:// URL.
func GenerateSecret(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

func (a *AuthService) ValidateToken(token string) bool {
	if a.totpSecret == "" {
		a.logger.Warn("TOTP login attempted without a configured secret")
		return false
	}
	valid := totp.Validate(strings.TrimSpace(token), a.totpSecret)
	if valid {
		a.logger.Info("TOTP token validation successful")
	} else {
		a.logger.Warn("TOTP token validation failed")
	}
	return valid
}

// CreateSession issues a random session token valid for the configured TTL.
func (a *AuthService) CreateSession() (string, time.Time) {
	token := uuid.NewString()
	expires := a.now().Add(a.ttl)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	a.sessions[token] = expires
	return token, expires
}

func (a *AuthService) RevokeSession(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

func (a *AuthService) isValidSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	expires, ok := a.sessions[token]
	if !ok {
		return false
	}
	if !a.now().Before(expires) {
		delete(a.sessions, token)
		return false
	}
	return true
}

func (a *AuthService) pruneLocked() {
	now := a.now()
	for token, expires := range a.sessions {
		if !now.Before(expires) {
			delete(a.sessions, token)
		}
	}
}

// SessionTTL is how long an issued session stays valid.
func (a *AuthService) SessionTTL() time.Duration {
	return a.ttl
}

func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/v1/auth/login" {
			c.Next()
			return
		}

		token, err := c.Cookie(SessionCookie)
		if err != nil || !a.isValidSession(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
			})
			return
		}

		c.Next()
	}
}
