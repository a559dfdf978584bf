package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"agrimarket/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	ctxUserID    = "user_id"
	ctxUserRole  = "user_role"
	ctxSessionID = "session_id"

	headerSessionID = "X-Session-ID"
)

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// authMiddleware validates the bearer token issued by the auth service and
// places the caller's identity on the request context. Token issuance itself
// lives outside this service.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token subject"})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, claims.Role)
		c.Next()
	}
}

// requireRole guards a route group to the given roles
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxUserRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
	}
}

// sessionMiddleware resolves the cart session. Clients carry the session ID
// in X-Session-ID; a request without one gets a fresh ID minted and echoed
// back so the client can keep the cart across requests.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(headerSessionID)
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		c.Header(headerSessionID, sessionID)
		c.Set(ctxSessionID, sessionID)
		c.Next()
	}
}

// rateLimitMiddleware applies a global token-bucket limit
func rateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func identity(c *gin.Context) (int64, string) {
	return c.GetInt64(ctxUserID), c.GetString(ctxUserRole)
}
