package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu      sync.Mutex
	users   map[uint]*domain.User
	keys    map[string]*domain.APIKey
	userErr error
	touched map[string]time.Time
	touchFn func() error
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[uint]*domain.User{},
		keys:    map[string]*domain.APIKey{},
		touched: map[string]time.Time{},
	}
}

func (f *fakeStore) FindUserByID(_ context.Context, id uint) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) FindAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	k, ok := f.keys[hash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *k
	return &cp, nil
}

func (f *fakeStore) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	if f.touchFn != nil {
		if err := f.touchFn(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = at
	return nil
}

func (f *fakeStore) addKey(raw string, k domain.APIKey) {
	k.KeyHash = HashAPIKey(raw)
	f.keys[k.KeyHash] = &k
}

func newTestVerifier(store Store) *Verifier {
	return NewVerifier(store, NewIssuer("0123456789abcdef", time.Hour, "club"))
}

func TestVerifyBearer_RereadsPermissions(t *testing.T) {
	store := newFakeStore()
	u := testUser()
	store.users[u.ID] = u
	v := newTestVerifier(store)

	tok, _, err := v.tokens.Issue(u)
	if err != nil {
		t.Fatal(err)
	}

	// Role changes after issuance; the fresh grants win over the snapshot.
	store.users[u.ID].Role.Permissions = []string{PermSystemAdmin}

	id, err := v.VerifyBearer(context.Background(), tok)
	if err != nil {
		t.Fatalf("VerifyBearer: %v", err)
	}
	if id.UserID != 7 || len(id.Permissions) != 1 || id.Permissions[0] != PermSystemAdmin || !id.Active {
		t.Fatalf("identity not rehydrated: %+v", id)
	}
}

func TestVerifyBearer_Failures(t *testing.T) {
	store := newFakeStore()
	u := testUser()
	v := newTestVerifier(store)
	tok, _, _ := v.tokens.Issue(u)

	// Missing user.
	_, err := v.VerifyBearer(context.Background(), tok)
	var ce *CredentialError
	if !errors.As(err, &ce) || ce.Reason != ReasonInactiveUser {
		t.Fatalf("missing user: %v", err)
	}

	// Inactive user.
	inactive := *u
	inactive.IsActive = false
	store.users[u.ID] = &inactive
	_, err = v.VerifyBearer(context.Background(), tok)
	if !errors.As(err, &ce) || ce.Reason != ReasonInactiveUser {
		t.Fatalf("inactive user: %v", err)
	}

	// Store failure is not a credential failure.
	store.userErr = errors.New("db down")
	_, err = v.VerifyBearer(context.Background(), tok)
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("store failure should propagate as a server error, got %v", err)
	}

	// Bad token never reaches the store.
	store.userErr = nil
	before := store.calls
	if _, err := v.VerifyBearer(context.Background(), "junk"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("bad token: %v", err)
	}
	if store.calls != before {
		t.Fatalf("store consulted for an invalid token")
	}
}

func TestVerifyAPIKey(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	store.addKey("ck_good", domain.APIKey{ID: "good", Name: "partner", Permissions: []string{"notifications:send"}, RateLimit: 10, IsActive: true, ExpiresAt: &future})
	store.addKey("ck_off", domain.APIKey{ID: "off", IsActive: false})
	store.addKey("ck_old", domain.APIKey{ID: "old", IsActive: true, ExpiresAt: &past})
	store.addKey("ck_edge", domain.APIKey{ID: "edge", IsActive: true, ExpiresAt: &now})

	v := newTestVerifier(store)
	v.now = func() time.Time { return now }

	id, err := v.VerifyAPIKey(context.Background(), "ck_good")
	if err != nil {
		t.Fatalf("VerifyAPIKey: %v", err)
	}
	if id.KeyID != "good" || id.RateLimit != 10 || id.LastUsed == nil || !id.LastUsed.Equal(now) {
		t.Fatalf("identity: %+v", id)
	}
	v.Flush()
	if at, ok := store.touched["good"]; !ok || !at.Equal(now) {
		t.Fatalf("lastUsed not recorded: %v", store.touched)
	}

	cases := map[string]string{
		"":        ReasonInvalidAPIKey,
		"ck_nope": ReasonInvalidAPIKey,
		"ck_off":  ReasonInvalidAPIKey,
		"ck_old":  ReasonAPIKeyExpired,
		"ck_edge": ReasonAPIKeyExpired,
	}
	for raw, reason := range cases {
		_, err := v.VerifyAPIKey(context.Background(), raw)
		var ce *CredentialError
		if !errors.As(err, &ce) || ce.Reason != reason {
			t.Fatalf("key %q: got %v want reason %q", raw, err, reason)
		}
	}
	v.Flush()
	if len(store.touched) != 1 {
		t.Fatalf("only successful verifications may touch: %v", store.touched)
	}
}

func TestVerifyAPIKey_TouchFailureDoesNotFail(t *testing.T) {
	store := newFakeStore()
	store.addKey("ck_x", domain.APIKey{ID: "x", IsActive: true})
	store.touchFn = func() error { return errors.New("write failed") }
	v := newTestVerifier(store)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := v.VerifyAPIKey(ctx, "ck_x")
	cancel()
	if err != nil || id.KeyID != "x" {
		t.Fatalf("verification must succeed despite touch failure: %v", err)
	}
	v.Flush()
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("abc")
	if len(h) != 64 || h != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %q", h)
	}
}

func TestVerifyBearer_NoIssuer(t *testing.T) {
	v := NewVerifier(newFakeStore(), nil)
	if _, err := v.VerifyBearer(context.Background(), "x"); !errors.Is(err, errNoIssuer) {
		t.Fatalf("expected errNoIssuer, got %v", err)
	}
}
