package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-club-backend/internal/auth"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("success", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "admin", Password: testPassword}, nil)
		expectStatus(t, w, http.StatusOK)
		resp := decode[LoginResponse](t, w)
		if resp.Token == "" || resp.User == nil || resp.User.Username != "admin" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if !resp.ExpiresAt.After(time.Now()) {
			t.Fatalf("expiresAt in the past: %v", resp.ExpiresAt)
		}
		if _, err := env.issuer.Parse(resp.Token); err != nil {
			t.Fatalf("issued token does not parse: %v", err)
		}
	})

	cases := []struct {
		name string
		body any
		want int
		code string
	}{
		{"wrong password", LoginRequest{Username: "admin", Password: "nope"}, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"unknown user", LoginRequest{Username: "ghost", Password: testPassword}, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"missing password", map[string]string{"username": "admin"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad json", "{", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/auth/login", tc.body, nil)
			expectStatus(t, w, tc.want)
			if got := decode[ErrorResponse](t, w); got.Code != tc.code || got.RequestID == "" {
				t.Fatalf("unexpected error body: %+v", got)
			}
		})
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/auth/me", nil, bearer(env.token(t, env.admin)))
	expectStatus(t, w, http.StatusOK)
	me := decode[MeResponse](t, w)
	if me.ID != env.admin.ID || me.Username != "admin" {
		t.Fatalf("unexpected me: %+v", me)
	}
	if len(me.Permissions) != 1 || me.Permissions[0] != auth.PermSystemAdmin {
		t.Fatalf("permissions = %v", me.Permissions)
	}

	// Same-origin is not enough for a user-scoped endpoint.
	w = env.do(http.MethodGet, "/api/auth/me", nil, nil)
	expectStatus(t, w, http.StatusUnauthorized)
}
