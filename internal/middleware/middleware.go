package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/portfolio-ledger/internal/domain"
)

const identityKey = "identity"

// Identity lifts the authentication result the external identity provider
// put on the request into a domain.Identity. The engine itself decides
// whether the identity passes its preconditions.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, domain.Identity{
			UserID:   c.GetHeader("X-User-ID"),
			Verified: c.GetHeader("X-User-Verified") == "true",
		})
		c.Next()
	}
}

// IdentityFrom returns the identity attached by the Identity middleware.
func IdentityFrom(c *gin.Context) domain.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}
	}
	return v.(domain.Identity)
}

type RateLimiter struct {
	clients map[string]time.Time
	mu      sync.Mutex
	limit   time.Duration
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]time.Time),
		limit:   limit,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
			c.Abort()
			return
		}
		r.mu.Lock()
		last, exists := r.clients[userID]
		if exists && time.Since(last) < r.limit {
			r.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		r.clients[userID] = time.Now()
		r.mu.Unlock()
		c.Next()
	}
}
