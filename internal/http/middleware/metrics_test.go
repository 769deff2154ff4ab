package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-club-backend/internal/auth"
)

func TestMetrics_LabelsRouteStatusAndTrust(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/notifications/:id", func(c *gin.Context) {
		setIdentity(c, auth.SameOriginIdentity{})
		c.Status(http.StatusNoContent)
	})
	r.GET("/keyed", func(c *gin.Context) {
		setIdentity(c, &auth.APIKeyIdentity{KeyID: "k1"})
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	basePublic := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/public", "200", "none"))
	baseSame := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/notifications/:id", "204", "same_origin"))
	baseKey := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/keyed", "201", "api_key"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404", "none"))

	for _, path := range []string{"/public", "/notifications/41", "/notifications/42", "/keyed", "/missing", "/random-scan"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"public", testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/public", "200", "none")), basePublic + 1},
		{"templated route", testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/notifications/:id", "204", "same_origin")), baseSame + 2},
		{"api key", testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/keyed", "201", "api_key")), baseKey + 1},
		{"unmatched collapsed", testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404", "none")), baseMiss + 2},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Fatalf("%s: counter = %v; want %v", ch.name, ch.got, ch.want)
		}
	}

	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
