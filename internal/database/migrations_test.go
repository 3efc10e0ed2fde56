package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsProfilesAndFrequencies(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(append(store.Models(), &migrationRecord{})...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	legacy := store.Profile{ID: "user-1", Username: "nova"}
	configured := store.Profile{ID: "user-2", Username: "orion", VesselName: "Kestrel", CurrentStatus: "Listening"}
	for _, profile := range []*store.Profile{&legacy, &configured} {
		if err := database.Create(profile).Error; err != nil {
			testContext.Fatalf("failed to insert profile: %v", err)
		}
	}
	signal := store.Signal{Content: "hi", Frequency: "Dream", Author: "nova"}
	if err := database.Omit("Comments", "Likes").Create(&signal).Error; err != nil {
		testContext.Fatalf("failed to insert signal: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored store.Profile
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload profile: %v", err)
	}
	if stored.VesselName != unnamedVessel || stored.CurrentStatus != driftingStatus {
		testContext.Fatalf("expected defaults backfilled, got %+v", stored)
	}
	var untouched store.Profile
	if err := database.Where("id = ?", configured.ID).Take(&untouched).Error; err != nil {
		testContext.Fatalf("failed to reload profile: %v", err)
	}
	if untouched.VesselName != "Kestrel" || untouched.CurrentStatus != "Listening" {
		testContext.Fatalf("expected configured profile untouched, got %+v", untouched)
	}

	var reloaded store.Signal
	if err := database.Take(&reloaded, signal.ID).Error; err != nil {
		testContext.Fatalf("failed to reload signal: %v", err)
	}
	if reloaded.Frequency != "dream" {
		testContext.Fatalf("expected lowercase frequency, got %q", reloaded.Frequency)
	}

	var records []migrationRecord
	if err := database.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to list migration records: %v", err)
	}
	if len(records) != len(migrations) {
		testContext.Fatalf("expected %d migration records, got %d", len(migrations), len(records))
	}
	for _, record := range records {
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected rerun to be a no-op: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open("mysql", "dsn", nil); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(DriverSQLite, " ", nil); err == nil {
		testContext.Fatalf("expected missing dsn error")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "open.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	defer sqlDB.Close()

	for _, model := range store.Models() {
		if !database.Migrator().HasTable(model) {
			testContext.Fatalf("expected table for %T", model)
		}
	}
}
