package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// newRepoDB opens a unique in-memory database and migrates the given models.
func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newSchemaDB opens a database with the full schema applied.
func newSchemaDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t)
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedRole(t *testing.T, db *gorm.DB, name string, perms ...string) *domain.Role {
	t.Helper()
	r, err := CreateRole(context.Background(), db, name, perms)
	if err != nil {
		t.Fatalf("seed role %s: %v", name, err)
	}
	return r
}

func seedUser(t *testing.T, db *gorm.DB, username string, roleID uint, active bool) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, PasswordHash: "x", RoleID: roleID, IsActive: true}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	// gorm skips zero values on create when a default is declared, so the
	// inactive flag is applied as a separate update.
	if !active {
		if err := SetUserActive(context.Background(), db, u.ID, false); err != nil {
			t.Fatalf("deactivate %s: %v", username, err)
		}
		u.IsActive = false
	}
	return u
}
