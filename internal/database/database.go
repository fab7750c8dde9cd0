package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/memos"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options selects the backing store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured database and migrates the schema.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case DriverSQLite, "":
		if options.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		dialector = sqlite.Open(options.Path)
	case DriverMySQL:
		if options.DSN == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		dialector = mysql.Open(options.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if options.Driver != DriverMySQL {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", dialector.Name()))
	return db, nil
}

// Migrate creates every table and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := []interface{}{&users.User{}, &users.DevToken{}, &settings.SysConfig{}, &migrationRecord{}}
	models = append(models, memos.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
