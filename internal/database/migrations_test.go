package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/roster/internal/backend"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsSeedsDefaultActivitiesOnce(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&backend.Activity{}, &backend.Participant{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var activityCount int64
	if err := database.Model(&backend.Activity{}).Count(&activityCount).Error; err != nil {
		testContext.Fatalf("failed to count activities: %v", err)
	}
	if activityCount != int64(len(backend.DefaultActivities())) {
		testContext.Fatalf("expected %d seeded activities, got %d", len(backend.DefaultActivities()), activityCount)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationSeedDefaultActivities).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := database.Where("name = ?", "Gym Class").Delete(&backend.Activity{}).Error; err != nil {
		testContext.Fatalf("failed to delete activity: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}
	if err := database.Model(&backend.Activity{}).Count(&activityCount).Error; err != nil {
		testContext.Fatalf("failed to count activities: %v", err)
	}
	if activityCount != int64(len(backend.DefaultActivities())-1) {
		testContext.Fatalf("expected seed migration to run once, got %d activities", activityCount)
	}
}

func TestOpenSQLiteInitializesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "roster.db")

	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql handle: %v", err)
	}
	defer sqlDB.Close()

	var participantCount int64
	if err := database.Model(&backend.Participant{}).Count(&participantCount).Error; err != nil {
		testContext.Fatalf("failed to count participants: %v", err)
	}
	if participantCount != 6 {
		testContext.Fatalf("expected 6 seeded participants, got %d", participantCount)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
