package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedSysConfigs       = "2024-03-01_seed_sys_configs"
	migrationBackfillDisplayNames = "2024-03-01_backfill_display_names"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedSysConfigs, apply: settings.Seed},
		{name: migrationBackfillDisplayNames, apply: backfillDisplayNames},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillDisplayNames gives accounts without a display name their username, so mentions
// and comment authors always resolve to a name.
func backfillDisplayNames(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("display_name IS NULL OR display_name = ''").
		Update("display_name", gorm.Expr("username")).Error
}
