package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// directory adapts the repo audience queries for tests.
type directory struct{ db *gorm.DB }

func (d directory) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	return repo.FindActiveUserIDs(ctx, d.db)
}

func (d directory) UserIDsByRoles(ctx context.Context, ids []uint) ([]uint, error) {
	return repo.FindUserIDsByRoleIDs(ctx, d.db, ids)
}

func (d directory) UserIDsByDivisions(ctx context.Context, ids []uint) ([]uint, error) {
	return repo.FindUserIDsByDivisionIDs(ctx, d.db, ids)
}

// fakePublisher records publishes and reports a fixed set of users as
// connected.
type fakePublisher struct {
	mu        sync.Mutex
	connected map[uint]bool
	calls     int
	lastUsers []uint
	onPublish func(n *domain.Notification)
}

// PublishNotification honours ctx like a socket write would: nothing is
// pushed once ctx has ended.
func (p *fakePublisher) PublishNotification(ctx context.Context, userIDs []uint, n *domain.Notification) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastUsers = append([]uint(nil), userIDs...)
	if p.onPublish != nil {
		p.onPublish(n)
	}
	if ctx.Err() != nil {
		return 0
	}
	pushed := 0
	for _, id := range userIDs {
		if p.connected[id] {
			pushed++
		}
	}
	return pushed
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, audience.Target) ([]uint, error) {
	return nil, f.err
}

func seedUsers(t *testing.T, db *gorm.DB, n int) (roleID uint, ids []uint) {
	t.Helper()
	ctx := context.Background()
	r, err := repo.CreateRole(ctx, db, "member-"+uuid.NewString()[:8], nil)
	if err != nil {
		t.Fatalf("role: %v", err)
	}
	for i := 0; i < n; i++ {
		u := &domain.User{Username: fmt.Sprintf("u%03d-%s", i, uuid.NewString()[:6]), PasswordHash: "x", RoleID: r.ID, IsActive: true}
		if err := repo.CreateUser(ctx, db, u); err != nil {
			t.Fatalf("user: %v", err)
		}
		ids = append(ids, u.ID)
	}
	return r.ID, ids
}
