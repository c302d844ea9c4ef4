package repository

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/calyptra/guildbot/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.LevelRecord{},
		&models.DeletedMessage{},
		&models.MemberLeave{},
		&models.AccountLink{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestRecord creates a level record in the database.
func createTestRecord(t *testing.T, repo *LevelRepository, userID, guildID string, xp, level int) *models.LevelRecord {
	t.Helper()

	record := &models.LevelRecord{
		UserID:        userID,
		GuildID:       guildID,
		Username:      "user-" + userID,
		XP:            xp,
		Level:         level,
		MessageCount:  1,
		LastMessageAt: time.Now(),
		JoinedAt:      time.Now(),
	}

	if err := repo.Create(record); err != nil {
		t.Fatalf("Failed to create test record: %v", err)
	}

	return record
}

func TestLevelRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	record, err := repo.Get("42", "100")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if record != nil {
		t.Errorf("Expected nil record for missing row, got %+v", record)
	}
}

func TestLevelRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	created := createTestRecord(t, repo, "42", "100", 15, 1)

	if created.ID == 0 {
		t.Error("Expected record ID to be set after creation")
	}

	retrieved, err := repo.Get("42", "100")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if retrieved == nil {
		t.Fatal("Expected record, got nil")
	}

	if retrieved.XP != 15 || retrieved.Level != 1 {
		t.Errorf("Expected xp=15 level=1, got xp=%d level=%d", retrieved.XP, retrieved.Level)
	}
}

func TestLevelRepository_UniquePerUserGuild(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	createTestRecord(t, repo, "42", "100", 15, 1)

	dup := &models.LevelRecord{UserID: "42", GuildID: "100", Username: "dup"}
	if err := repo.Create(dup); err == nil {
		t.Error("Expected error creating duplicate (user, guild) record")
	}

	// Same user in a different guild is a separate record.
	other := &models.LevelRecord{UserID: "42", GuildID: "200", Username: "other"}
	if err := repo.Create(other); err != nil {
		t.Errorf("Create() in another guild failed: %v", err)
	}
}

func TestLevelRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	record := createTestRecord(t, repo, "42", "100", 85, 1)

	record.XP = 100
	record.Level = 1
	record.MessageCount = 2
	if err := repo.Update(record); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	retrieved, err := repo.Get("42", "100")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if retrieved.XP != 100 {
		t.Errorf("Expected xp=100, got %d", retrieved.XP)
	}

	if retrieved.MessageCount != 2 {
		t.Errorf("Expected message_count=2, got %d", retrieved.MessageCount)
	}
}

func TestLevelRepository_UpsertReplacesLedgerFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	createTestRecord(t, repo, "42", "100", 500, 5)

	joined := time.Now()
	err := repo.Upsert(&models.LevelRecord{
		UserID:   "42",
		GuildID:  "100",
		Username: "rejoined",
		XP:       0,
		Level:    1,
		JoinedAt: joined,
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	retrieved, _ := repo.Get("42", "100")
	if retrieved.XP != 0 || retrieved.Level != 1 {
		t.Errorf("Expected zeroed ledger, got xp=%d level=%d", retrieved.XP, retrieved.Level)
	}

	if retrieved.Username != "rejoined" {
		t.Errorf("Expected username 'rejoined', got %q", retrieved.Username)
	}

	// Upsert on a missing row creates it.
	if err := repo.Upsert(&models.LevelRecord{UserID: "77", GuildID: "100", Level: 1}); err != nil {
		t.Fatalf("Upsert() create path failed: %v", err)
	}
}

func TestLevelRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	createTestRecord(t, repo, "42", "100", 15, 1)

	if err := repo.Delete("42", "100"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	record, err := repo.Get("42", "100")
	if err != nil {
		t.Fatalf("Get() after delete failed: %v", err)
	}

	if record != nil {
		t.Error("Expected record to be deleted")
	}

	// Deleting a missing record reports not found.
	err = repo.Delete("42", "100")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestLevelRepository_Top(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	createTestRecord(t, repo, "1", "100", 1500, 15)
	createTestRecord(t, repo, "2", "100", 300, 3)
	createTestRecord(t, repo, "3", "100", 4500, 45)
	createTestRecord(t, repo, "4", "999", 9000, 90) // other guild

	top, err := repo.Top("100", 2)
	if err != nil {
		t.Fatalf("Top() failed: %v", err)
	}

	if len(top) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(top))
	}

	if top[0].UserID != "3" || top[1].UserID != "1" {
		t.Errorf("Expected order [3 1], got [%s %s]", top[0].UserID, top[1].UserID)
	}
}

func TestLevelRepository_GuildStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLevelRepository(db)

	count, err := repo.CountByGuild("100")
	if err != nil {
		t.Fatalf("CountByGuild() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 records, got %d", count)
	}

	avg, err := repo.AverageLevel("100")
	if err != nil {
		t.Fatalf("AverageLevel() on empty guild failed: %v", err)
	}
	if avg != 0 {
		t.Errorf("Expected average 0 for empty guild, got %f", avg)
	}

	createTestRecord(t, repo, "1", "100", 1000, 10)
	createTestRecord(t, repo, "2", "100", 2000, 20)

	count, _ = repo.CountByGuild("100")
	if count != 2 {
		t.Errorf("Expected 2 records, got %d", count)
	}

	avg, _ = repo.AverageLevel("100")
	if avg != 15 {
		t.Errorf("Expected average level 15, got %f", avg)
	}
}
