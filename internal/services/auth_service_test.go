package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

type stubIssuer struct {
	got *domain.User
	err error
}

func (s *stubIssuer) Issue(u *domain.User) (string, time.Time, error) {
	s.got = u
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "tok-" + u.Username, time.Unix(1700000000, 0), nil
}

func TestLogin(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	admin, err := SeedAdmin(ctx, db, "root", "s3cret-pass", "root@example.com")
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	iss := &stubIssuer{}
	svc := NewAuthService(db, iss)

	res, err := svc.Login(ctx, " root ", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-root" || res.User.ID != admin.ID || iss.got.Role.Name != "admin" {
		t.Fatalf("unexpected login result: %+v (role %+v)", res, iss.got.Role)
	}

	for name, creds := range map[string][2]string{
		"wrong password": {"root", "nope"},
		"unknown user":   {"ghost", "s3cret-pass"},
		"blank":          {"", ""},
	} {
		if _, err := svc.Login(ctx, creds[0], creds[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}

	if err := repo.SetUserActive(ctx, db, admin.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "root", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user should be rejected, got %v", err)
	}
}

func TestLogin_IssuerErrorPropagates(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	if _, err := SeedAdmin(ctx, db, "root", "pw", ""); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("sign failed")
	svc := NewAuthService(db, &stubIssuer{err: boom})
	if _, err := svc.Login(ctx, "root", "pw"); !errors.Is(err, boom) {
		t.Fatalf("expected issuer error, got %v", err)
	}
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	a, err := SeedAdmin(ctx, db, "root", "pw", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := SeedAdmin(ctx, db, "root", "different", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Fatalf("second seed created a new user")
	}
	var roles int64
	db.Model(&domain.Role{}).Count(&roles)
	if roles != 1 {
		t.Fatalf("expected one role, got %d", roles)
	}
	u, _ := repo.FindUserByID(ctx, db, a.ID)
	if len(u.Permissions()) != 1 || u.Permissions()[0] != "system:admin" {
		t.Fatalf("admin permissions: %v", u.Permissions())
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	if err != nil || h == "" || h == "pw" {
		t.Fatalf("HashPassword: %q err=%v", h, err)
	}
}
