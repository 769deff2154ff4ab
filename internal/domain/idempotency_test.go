package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_UniqueIndex_AndInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_principal_scope_key") {
		t.Fatalf("expected composite index ux_principal_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:          "id-1",
		PrincipalID: "user:1",
		Scope:       "notifications",
		Key:         "k1",
		ResourceID:  "42",
		Status:      201,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.PrincipalID != "user:1" || got.Scope != "notifications" || got.ResourceID != "42" || got.Status != 201 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be auto-populated")
	}

	dup := &Idempotency{
		ID:          "id-2",
		PrincipalID: "user:1",
		Scope:       "notifications",
		Key:         "k1",
		ResourceID:  "43",
		Status:      201,
		ExpiresAt:   now.Add(2 * time.Hour),
	}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (principal_id, scope, key)")
	}

	other := &Idempotency{
		ID:          "id-3",
		PrincipalID: "apikey:abc",
		Scope:       "notifications",
		Key:         "k1",
		ResourceID:  "44",
		Status:      201,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("same key under a different principal should be accepted: %v", err)
	}
}
