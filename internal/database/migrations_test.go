package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsSeedsAndBackfills(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&users.User{}, &settings.SysConfig{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	now := time.Now().UTC()
	legacy := users.User{Username: "legacy", PasswordHash: "x", Created: now, Updated: now}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	custom := settings.SysConfig{Key: settings.KeyWebsiteTitle, Value: "Mine"}
	if err := database.Create(&custom).Error; err != nil {
		testContext.Fatalf("failed to insert setting: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.DisplayName != "legacy" {
		testContext.Fatalf("expected display name backfill, got %q", stored.DisplayName)
	}

	var seeded int64
	if err := database.Model(&settings.SysConfig{}).Count(&seeded).Error; err != nil {
		testContext.Fatalf("failed to count settings: %v", err)
	}
	if seeded != int64(len(settings.Defaults())) {
		testContext.Fatalf("expected %d settings, got %d", len(settings.Defaults()), seeded)
	}
	var title settings.SysConfig
	if err := database.Where("`key` = ?", settings.KeyWebsiteTitle).Take(&title).Error; err != nil {
		testContext.Fatalf("failed to reload title: %v", err)
	}
	if title.Value != "Mine" {
		testContext.Fatalf("seeding must keep existing values, got %q", title.Value)
	}

	for _, name := range []string{migrationSeedSysConfigs, migrationBackfillDisplayNames} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations must be a no-op: %v", err)
	}
}

func TestOpenValidatesOptions(testContext *testing.T) {
	testCases := []struct {
		name    string
		options Options
	}{
		{name: "sqlite-without-path", options: Options{Driver: DriverSQLite}},
		{name: "mysql-without-dsn", options: Options{Driver: DriverMySQL}},
		{name: "unknown-driver", options: Options{Driver: "oracle", Path: "x"}},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			if _, err := Open(testCase.options, nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestOpenMigratesSQLite(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "mblog.db")
	database, err := Open(Options{Driver: DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"users", "dev_tokens", "sys_configs", "memos", "tags", "comments", "resources", "user_memo_relations", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
}
