package auth

import (
	"net/http"
	"strings"
)

// OriginPolicy decides whether a request comes from the first-party client.
type OriginPolicy interface {
	SameOrigin(r *http.Request) bool
}

// HostEcho treats a request as same-origin when it has no Origin header or
// its Origin equals scheme://Host. Host is caller-controlled, so this is only
// appropriate when a trusted proxy sets it; prefer AllowList otherwise.
//
// The scheme comes from the connection's TLS state. X-Forwarded-Proto is
// read only with TrustForwardedProto, for deployments behind a proxy that
// overwrites it.
type HostEcho struct {
	TrustForwardedProto bool
}

// SameOrigin implements OriginPolicy.
func (h HostEcho) SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	scheme := "http"
	if r.TLS != nil || (h.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")) {
		scheme = "https"
	}
	return strings.EqualFold(strings.TrimRight(origin, "/"), scheme+"://"+r.Host)
}

// AllowList treats a request as same-origin when it has no Origin header or
// its Origin is one of a fixed set of server-configured origins.
type AllowList struct {
	origins map[string]struct{}
}

// NewAllowList builds an AllowList from scheme://host[:port] entries.
func NewAllowList(origins []string) *AllowList {
	a := &AllowList{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = normalizeOrigin(o)
		if o != "" {
			a.origins[o] = struct{}{}
		}
	}
	return a
}

// SameOrigin implements OriginPolicy.
func (a *AllowList) SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := a.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}
