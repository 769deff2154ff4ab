package auth

import (
	"net/http"
	"strings"

	"github.com/tbourn/go-club-backend/internal/ratelimit"
)

// DefaultAPIKeyHeader carries external clients' raw keys.
const DefaultAPIKeyHeader = "X-API-Key"

// Result is the outcome of classifying a request. Quota is set for API-key
// identities when a limiter is configured.
type Result struct {
	Identity Identity
	Quota    *ratelimit.Decision
}

// Classifier selects exactly one trust mode per request:
//
//  1. an API key header always wins and is verified, then rate limited
//  2. otherwise a same-origin request is admitted anonymously
//  3. otherwise the request is rejected as unauthenticated
//
// Bearer tokens are not consulted here; handlers that need a concrete user
// verify one separately.
type Classifier struct {
	Verifier     *Verifier
	Limiter      *ratelimit.Limiter
	Origins      OriginPolicy
	APIKeyHeader string
}

// Classify resolves the request's identity. Errors are a *CredentialError,
// a *ratelimit.ExceededError (returned with the key's identity and quota),
// or a store failure.
func (c *Classifier) Classify(r *http.Request) (Result, error) {
	header := c.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	if raw, present := apiKeyFrom(r, header); present {
		key, err := c.Verifier.VerifyAPIKey(r.Context(), raw)
		if err != nil {
			return Result{}, err
		}
		res := Result{Identity: key}
		if c.Limiter == nil {
			return res, nil
		}
		d, err := c.Limiter.Allow(r.Context(), key.Subject(), key.RateLimit)
		res.Quota = &d
		return res, err
	}

	origins := c.Origins
	if origins == nil {
		origins = HostEcho{}
	}
	if origins.SameOrigin(r) {
		return Result{Identity: SameOriginIdentity{}}, nil
	}
	return Result{}, credErr(ReasonAuthRequired)
}

// apiKeyFrom reports whether the header is present at all; an empty value
// still selects API-key mode and fails verification.
func apiKeyFrom(r *http.Request, header string) (string, bool) {
	vals, ok := r.Header[http.CanonicalHeaderKey(header)]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return strings.TrimSpace(vals[0]), true
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
