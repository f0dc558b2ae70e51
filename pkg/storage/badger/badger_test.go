package badger

import (
	"context"
	"testing"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// TestBadgerStorageSuite runs the full storage test suite against BadgerStorage.
func TestBadgerStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			db := setupTestDB(t)
			return db
		},
	}

	suite.RunAllTests(t)
}

func setupTestDB(t *testing.T) *BadgerStorage {
	t.Helper()

	config := &Config{
		Path:              t.TempDir(),
		SyncWrites:        false,   // Faster for tests
		ValueLogFileSize:  1 << 20, // 1MB
		NumVersionsToKeep: 1,
	}

	db, err := NewBadgerStorage(config)
	if err != nil {
		t.Fatalf("Failed to create BadgerStorage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStorage_UserSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	config := &Config{Path: dir, ValueLogFileSize: 1 << 20, NumVersionsToKeep: 1}

	db, err := NewBadgerStorage(config)
	if err != nil {
		t.Fatalf("Failed to create BadgerStorage: %v", err)
	}

	ctx := context.Background()
	u := fact.NewUser("u-1")
	u.LeitnerBox["f-1"] = 5
	u.LeitnerDue["f-1"] = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if err := db.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = NewBadgerStorage(config)
	if err != nil {
		t.Fatalf("Failed to reopen BadgerStorage: %v", err)
	}
	defer db.Close()

	retrieved, err := db.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser after reopen failed: %v", err)
	}
	if retrieved.LeitnerBox["f-1"] != 5 {
		t.Errorf("expected leitner box 5 after reopen, got %d", retrieved.LeitnerBox["f-1"])
	}
}

func TestBadgerStorage_DecisionDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	d := &fact.Decision{ID: "d-1", UserID: "u-1", Order: []string{"f-1"}}
	if err := db.SaveDecision(ctx, d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	err := db.SaveDecision(ctx, d)
	if err == nil {
		t.Fatal("expected error on duplicate decision")
	}
	if _, ok := err.(*storage.DuplicateKeyError); !ok {
		t.Errorf("expected DuplicateKeyError, got %T", err)
	}
}
