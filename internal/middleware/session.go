package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the session claims.
const ContextSessionKey = "currentSession"

// LaunchKeyHeader carries the shared key of the launch gateway.
const LaunchKeyHeader = "X-Launch-Key"

// TokenValidator verifies bearer session tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.SessionClaims, error)
}

// Session protects routes by requiring a valid session token.
func Session(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, claims)
		c.Next()
	}
}

// RequireInstructor rejects sessions that did not launch as an instructor.
func RequireInstructor() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextSessionKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.SessionClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.IsInstructor() {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "instructor role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// LaunchKey guards session issuance. An empty key disables the route.
// A key in bcrypt form ("$2a$...") is compared as a hash.
func LaunchKey(key string) gin.HandlerFunc {
	hashed := isBcryptHash(key)
	return func(c *gin.Context) {
		given := c.GetHeader(LaunchKeyHeader)
		if key == "" || given == "" || !launchKeyMatches(key, given, hashed) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid launch key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func launchKeyMatches(key, given string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(key), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(key)) == 1
}

func isBcryptHash(key string) bool {
	if len(key) != 60 {
		return false
	}
	_, err := bcrypt.Cost([]byte(key))
	return err == nil
}
