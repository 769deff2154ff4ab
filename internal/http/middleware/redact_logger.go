package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redactedValue = "[REDACTED]"

// Applied in this order: the phone pattern is the loosest and would eat the
// digit runs of an id.
var piiPatterns = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

// Headers that are always masked; RedactOptions.MaskHeaders extends the set.
var credentialHeaders = []string{"authorization", "cookie", "set-cookie"}

// RedactOptions tunes RedactingLogger.
//
// MaskHeaders and MaskQueryParams name values replaced wholesale with
// "[REDACTED]" (header names match case-insensitively). QuietPaths are
// logged at debug while they succeed, so health checks and scrapes stay out
// of the info stream.
type RedactOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
	QuietPaths      []string
}

type scrubber struct {
	headers map[string]struct{}
	query   *regexp.Regexp
}

func newScrubber(opts RedactOptions) scrubber {
	s := scrubber{headers: make(map[string]struct{}, len(credentialHeaders)+len(opts.MaskHeaders))}
	for _, list := range [][]string{credentialHeaders, opts.MaskHeaders} {
		for _, h := range list {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				s.headers[h] = struct{}{}
			}
		}
	}
	if names := quotedNames(opts.MaskQueryParams); len(names) > 0 {
		s.query = regexp.MustCompile(`(^|&)(` + strings.Join(names, "|") + `)=[^&]*`)
	}
	return s
}

func scrubPII(v string) string {
	for _, p := range piiPatterns {
		v = p.re.ReplaceAllString(v, p.mask)
	}
	return v
}

func (s scrubber) rawQuery(q string) string {
	if q == "" {
		return q
	}
	if s.query != nil {
		q = s.query.ReplaceAllString(q, "${1}${2}="+redactedValue)
	}
	return truncate(scrubPII(q), maxQueryLogLength)
}

func (s scrubber) header(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, masked := s.headers[strings.ToLower(k)]; masked {
			out[k] = redactedValue
			continue
		}
		out[k] = scrubPII(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger emits one "http_request" line per request. Bodies are
// never logged; query strings and headers pass through the scrubber first.
//
// It also installs the request-scoped logger returned by LoggerFrom. The
// line carries principal and trust mode as the auth gateway left them, and
// its level follows the outcome: warn for 4xx, error for 5xx or recorded
// gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	s := newScrubber(opts)
	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := s.rawQuery(c.Request.URL.RawQuery)
		headers := s.header(c.Request.Header)

		rid := c.GetString(requestIDKey)
		if rid == "" {
			rid = c.GetHeader(HeaderRequestID)
		}
		scoped := log.With().Str("request_id", rid).Logger()
		c.Set(ctxKeyLogger, &scoped)

		c.Next()

		status := c.Writer.Status()
		// RequestID may have minted a fresh id after we read the header.
		if out := c.Writer.Header().Get(HeaderRequestID); out != "" {
			rid = out
		}

		_, isQuiet := quiet[path]
		accessEvent(c, status, isQuiet).
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Str("principal", PrincipalFrom(c)).
			Str("trust", trustLabel(c)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func accessEvent(c *gin.Context, status int, quiet bool) *zerolog.Event {
	switch {
	case len(c.Errors) > 0:
		return log.Error().Str("errors", c.Errors.String())
	case status >= 500:
		return log.Error()
	case status >= 400:
		return log.Warn()
	case quiet:
		return log.Debug()
	}
	return log.Info()
}

func quotedNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, regexp.QuoteMeta(n))
		}
	}
	return out
}
