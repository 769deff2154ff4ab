// Idempotency-Key support for unsafe methods. The middleware only validates
// and stashes the key; the service that owns the operation looks up, stores
// and replays results under (principal, scope, key) inside its own
// transaction.

package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed marks responses served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

const ctxKeyIdemKey = "idem.key"

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means defaultIdemKeyPattern.
	Pattern *regexp.Regexp
}

// IdempotencyValidator rejects malformed Idempotency-Key headers with 400
// and stashes valid ones for GetIdempotencyKey. Requests without the header
// pass through untouched.
func IdempotencyValidator(opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(HeaderRequestID),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)
		c.Next()
	}
}
