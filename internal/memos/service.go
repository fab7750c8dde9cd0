package memos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingSettings = errors.New("settings reader is required")
)

// SettingsReader is the subset of the settings store used by memo operations.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
	Bool(ctx context.Context, key string) (bool, error)
}

// CreationNotifier is told about every committed public memo. Implementations must not block.
type CreationNotifier interface {
	MemoCreated(memoID int64)
}

// ServiceConfig describes the dependencies of the memo service.
type ServiceConfig struct {
	Database *gorm.DB
	Settings SettingsReader
	Notifier CreationNotifier
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns memos, tags, comments, resources and likes, and keeps their derived
// counters consistent.
type Service struct {
	db       *gorm.DB
	settings SettingsReader
	notifier CreationNotifier
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService validates dependencies and constructs a Service. Notifier is optional.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Settings == nil {
		return nil, errMissingSettings
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		settings: cfg.Settings,
		notifier: cfg.Notifier,
		clock:    clock,
		logger:   logger,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// findMemo returns nil when the memo does not exist.
func (s *Service) findMemo(db *gorm.DB, operation string, memoID int64) (*Memo, error) {
	var memo Memo
	err := db.Where("id = ?", memoID).Take(&memo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(operation, "memo_select_failed", err, zap.Int64("memo_id", memoID))
		return nil, apperr.System(err)
	}
	return &memo, nil
}

func (s *Service) findUser(db *gorm.DB, operation string, userID int64) (*users.User, error) {
	var user users.User
	err := db.Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(operation, "user_select_failed", err, zap.Int64("user_id", userID))
		return nil, apperr.System(err)
	}
	return &user, nil
}

// adminID returns the id of the admin account, used when anonymous viewers ask for
// owner-scoped data.
func (s *Service) adminID(ctx context.Context, operation string) (int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("role = ?", auth.RoleAdmin).
		Order("id ASC").
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		s.logError(operation, "admin_select_failed", err)
		return 0, apperr.System(err)
	}
	if len(ids) == 0 {
		return 0, apperr.Fail("admin does not exist")
	}
	return ids[0], nil
}

func canManage(principal auth.Principal, ownerID int64) bool {
	return principal.IsAdmin() || principal.UserID == ownerID
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(fmt.Errorf("%s: %w", operation, err)))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("memos service error", attrs...)
}
