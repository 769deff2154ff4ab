package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// Claims is the signed payload of a session token. The permission snapshot
// identifies the session at issuance only; authorization always re-reads the
// user's current role.
type Claims struct {
	UserID      uint     `json:"userId"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	RoleID      uint     `json:"roleId"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string

	// now is overridable in tests.
	now func() time.Time
}

// NewIssuer returns an Issuer. A non-positive ttl defaults to 24h.
func NewIssuer(secret string, ttl time.Duration, issuer string) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue signs a token for u and returns it with its expiry.
func (i *Issuer) Issue(u *domain.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		RoleID:      u.RoleID,
		Permissions: u.Permissions(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies signature, algorithm, issuer and expiry. Every failure is
// reported as a *CredentialError.
func (i *Issuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, credErr(ReasonAuthRequired)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, credErr(ReasonInvalidToken)
	}
	if claims.UserID == 0 {
		return nil, credErr(ReasonInvalidToken)
	}
	return claims, nil
}

// errNoIssuer guards a Verifier built without a token issuer.
var errNoIssuer = errors.New("auth: no token issuer configured")
