package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opGet        = "settings.get"
	opSave       = "settings.save"
	opAll        = "settings.all"
	opFront      = "settings.front"
	opEnsureHook = "settings.ensure_webhook_token"

	defaultCacheTTL = 30 * time.Second
)

var errMissingDatabase = errors.New("database handle is required")

// StoreConfig describes the dependencies of the settings store.
type StoreConfig struct {
	Database *gorm.DB
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Store reads and writes runtime settings.
type Store struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStore constructs a settings store. Cache is optional.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, cache: cfg.Cache, cacheTTL: ttl, logger: logger}, nil
}

// Seed inserts missing default rows and leaves existing rows untouched.
func Seed(db *gorm.DB) error {
	defaults := Defaults()
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error
}

// Get returns the stored value, the default when the value is empty, or "" for unknown keys.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return value, nil
		}
	}

	var row SysConfig
	err := s.db.WithContext(ctx).Where("`key` = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("key", key))
		return "", apperr.System(err)
	}

	value := row.Effective()
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
			s.logger.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return value, nil
}

// Bool reports whether the setting reads as "true".
func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return strings.ToLower(strings.TrimSpace(value)) == "true", nil
}

// Save overwrites the value of every known key. Unknown keys are ignored.
func (s *Store) Save(ctx context.Context, items []Item) error {
	if items == nil {
		return apperr.Param("items must not be null")
	}
	keys := make([]string, 0, len(items))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := tx.Model(&SysConfig{}).
				Where("`key` = ?", item.Key).
				Update("value", item.Value).Error; err != nil {
				s.logError(opSave, "update_failed", err, zap.String("key", item.Key))
				return apperr.System(err)
			}
			keys = append(keys, item.Key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, keys...)
	return nil
}

// All returns every setting with its effective value.
func (s *Store) All(ctx context.Context) ([]Item, error) {
	var rows []SysConfig
	if err := s.db.WithContext(ctx).Order("`key` ASC").Find(&rows).Error; err != nil {
		s.logError(opAll, "query_failed", err)
		return nil, apperr.System(err)
	}
	return toItems(rows), nil
}

// Front returns the subset of settings the public front end needs.
func (s *Store) Front(ctx context.Context) ([]Item, error) {
	var rows []SysConfig
	if err := s.db.WithContext(ctx).Where("`key` IN ?", frontKeys).Order("`key` ASC").Find(&rows).Error; err != nil {
		s.logError(opFront, "query_failed", err)
		return nil, apperr.System(err)
	}
	return toItems(rows), nil
}

// EnsureWebhookToken fills an empty webhook token with a generated one.
func (s *Store) EnsureWebhookToken(ctx context.Context, generate func() (string, error)) error {
	current, err := s.Get(ctx, KeyWebhookToken)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	token, err := generate()
	if err != nil {
		s.logError(opEnsureHook, "generate_failed", err)
		return apperr.System(err)
	}
	if err := s.db.WithContext(ctx).Model(&SysConfig{}).
		Where("`key` = ?", KeyWebhookToken).
		Update("value", token).Error; err != nil {
		s.logError(opEnsureHook, "update_failed", err)
		return apperr.System(err)
	}
	s.invalidate(ctx, KeyWebhookToken)
	return nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("settings cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func toItems(rows []SysConfig) []Item {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{Key: row.Key, Value: row.Effective()})
	}
	return items
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(fmt.Errorf("%s: %w", operation, err)))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("settings store error", attrs...)
}
