// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets response hardening headers. Besides the usual API baseline
// it accounts for the gateway: responses depend on Origin and on the
// credential headers, so those are listed in Vary, and responses to callers
// presenting a credential are never stored by shared caches.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store on every response
	EnablePolicy bool          // Permissions-Policy and friends

	// CredentialHeaders mark a request as carrying a credential. Their
	// names are added to Vary along with Origin.
	CredentialHeaders []string

	// ExposeHeaders are listed in Access-Control-Expose-Headers so browser
	// clients can read them (quota and replay headers).
	ExposeHeaders []string
}

// SecurityHeaders adds the baseline headers (nosniff, DENY framing,
// no-referrer), optional feature policies and HSTS, and the cache rules:
//
//   - NoStore: Cache-Control: no-store for everything
//   - otherwise, when a credential header is present:
//     Cache-Control: private, no-cache (revalidate with ETag, never shared)
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"
	vary := append([]string{"Origin"}, opt.CredentialHeaders...)

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch {
		case opt.NoStore:
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		case hasCredential(c.Request, opt.CredentialHeaders):
			h.Set("Cache-Control", "private, no-cache")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		for _, name := range vary {
			appendToken(h, "Vary", name)
		}
		if h.Get(HeaderRequestID) != "" {
			appendToken(h, "Access-Control-Expose-Headers", HeaderRequestID)
		}
		for _, name := range opt.ExposeHeaders {
			appendToken(h, "Access-Control-Expose-Headers", name)
		}

		c.Next()
	}
}

func hasCredential(r *http.Request, names []string) bool {
	for _, n := range names {
		if r.Header.Get(n) != "" {
			return true
		}
	}
	// The live endpoint takes its token as a query parameter.
	return r.URL.Query().Has("token")
}

// isHTTPS reports whether the request used TLS directly or via a proxy that
// set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// appendToken adds name to a comma-separated header without duplicating it.
func appendToken(h http.Header, key, name string) {
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, name)
		return
	}
	for _, tok := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), name) {
			return
		}
	}
	h.Set(key, cur+", "+name)
}
