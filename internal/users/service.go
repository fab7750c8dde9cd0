package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	opRegister = "users.register"
	opLogin    = "users.login"
	opUpdate   = "users.update"
	opGet      = "users.get"
	opCurrent  = "users.current"
	opList     = "users.list"
	opNames    = "users.names"
	opRole     = "users.role"
	opToken    = "users.token"
)

var (
	errMissingDatabase = errors.New("users: database connection required")
	errMissingIssuer   = errors.New("users: token issuer required")
	errMissingSettings = errors.New("users: settings reader required")
)

// SettingsReader is the subset of the settings store used here.
type SettingsReader interface {
	Bool(ctx context.Context, key string) (bool, error)
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database     *gorm.DB
	Settings     SettingsReader
	Issuer       *auth.TokenIssuer
	Clock        func() time.Time
	PasswordCost int
	Logger       *zap.Logger
}

// Service manages accounts and API tokens. It also answers the resolver's directory lookups.
type Service struct {
	db           *gorm.DB
	settings     SettingsReader
	issuer       *auth.TokenIssuer
	now          func() time.Time
	passwordCost int
	logger       *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Issuer == nil {
		return nil, errMissingIssuer
	}
	if cfg.Settings == nil {
		return nil, errMissingSettings
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:           cfg.Database,
		settings:     cfg.Settings,
		issuer:       cfg.Issuer,
		now:          clock,
		passwordCost: cost,
		logger:       logger,
	}, nil
}

// Register creates an account. The first account becomes the admin and bypasses the registration gate.
func (s *Service) Register(ctx context.Context, request RegisterRequest) error {
	username := strings.TrimSpace(request.Username)
	if username == "" {
		return apperr.Param("username cannot be null")
	}
	if strings.TrimSpace(request.Password) == "" {
		return apperr.Param("password cannot be null")
	}
	displayName := strings.TrimSpace(request.DisplayName)
	if displayName == "" {
		displayName = username
	}

	hash, err := s.hashPassword(opRegister, request.Password)
	if err != nil {
		return err
	}

	open, err := s.settings.Bool(ctx, settings.KeyOpenRegister)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existingUsers int64
		if err := tx.Model(&User{}).Count(&existingUsers).Error; err != nil {
			s.logError(opRegister, "count_failed", err)
			return apperr.System(err)
		}

		role := ""
		if existingUsers == 0 {
			role = auth.RoleAdmin
		} else if !open {
			return apperr.Fail("registration is closed")
		}

		var duplicates int64
		if err := tx.Model(&User{}).
			Where("username = ? OR display_name = ?", username, displayName).
			Count(&duplicates).Error; err != nil {
			s.logError(opRegister, "duplicate_check_failed", err)
			return apperr.System(err)
		}
		if duplicates > 0 {
			return apperr.Fail("username or display name already exists")
		}

		now := s.now().UTC()
		user := User{
			Username:     username,
			PasswordHash: hash,
			Email:        strings.TrimSpace(request.Email),
			DisplayName:  displayName,
			Bio:          request.Bio,
			Role:         role,
			Created:      now,
			Updated:      now,
		}
		if err := tx.Create(&user).Error; err != nil {
			s.logError(opRegister, "insert_failed", err, zap.String("username", username))
			return apperr.System(err)
		}
		s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("admin", role == auth.RoleAdmin))
		return nil
	})
}

// Login verifies the password and issues a web credential.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return LoginResult{}, apperr.Param("username cannot be null")
	}
	if strings.TrimSpace(password) == "" {
		return LoginResult{}, apperr.Param("password cannot be null")
	}

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LoginResult{}, apperr.Fail("user does not exist")
	}
	if err != nil {
		s.logError(opLogin, "query_failed", err)
		return LoginResult{}, apperr.System(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return LoginResult{}, apperr.Fail("incorrect password")
		}
		s.logError(opLogin, "compare_failed", err, zap.Int64("user_id", user.ID))
		return LoginResult{}, apperr.System(err)
	}

	token, err := s.issuer.Issue(user.ID, auth.DeviceWeb)
	if err != nil {
		s.logError(opLogin, "issue_failed", err, zap.Int64("user_id", user.ID))
		return LoginResult{}, apperr.System(err)
	}

	return LoginResult{
		Token:                token,
		Username:             user.Username,
		Role:                 user.Role,
		UserID:               user.ID,
		DefaultVisibility:    user.DefaultVisibility,
		DefaultEnableComment: user.DefaultEnableComment,
	}, nil
}

// Update applies the caller's profile changes.
func (s *Service) Update(ctx context.Context, principal auth.Principal, request UpdateRequest) error {
	updates := map[string]interface{}{"updated": s.now().UTC()}
	if request.DisplayName != nil {
		name := strings.TrimSpace(*request.DisplayName)
		if name == "" {
			return apperr.Param("display name cannot be blank")
		}
		var taken int64
		if err := s.db.WithContext(ctx).Model(&User{}).
			Where("display_name = ? AND id <> ?", name, principal.UserID).
			Count(&taken).Error; err != nil {
			s.logError(opUpdate, "duplicate_check_failed", err)
			return apperr.System(err)
		}
		if taken > 0 {
			return apperr.Fail("username or display name already exists")
		}
		updates["display_name"] = name
	}
	if request.Email != nil {
		updates["email"] = strings.TrimSpace(*request.Email)
	}
	if request.Bio != nil {
		updates["bio"] = *request.Bio
	}
	if request.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*request.AvatarURL)
	}
	if request.DefaultVisibility != nil {
		updates["default_visibility"] = strings.TrimSpace(*request.DefaultVisibility)
	}
	if request.DefaultEnableComment != nil {
		updates["default_enable_comment"] = strings.TrimSpace(*request.DefaultEnableComment)
	}
	if request.Password != nil && strings.TrimSpace(*request.Password) != "" {
		hash, err := s.hashPassword(opUpdate, *request.Password)
		if err != nil {
			return err
		}
		updates["password_hash"] = hash
	}

	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", principal.UserID).
		Updates(updates).Error; err != nil {
		s.logError(opUpdate, "update_failed", err, zap.Int64("user_id", principal.UserID))
		return apperr.System(err)
	}
	return nil
}

// Get returns the profile for id, or nil when no such user exists.
func (s *Service) Get(ctx context.Context, id int64) (*Profile, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Int64("user_id", id))
		return nil, apperr.System(err)
	}
	profile := toProfile(user)
	return &profile, nil
}

// Current returns the caller's profile, or the admin's when the caller is anonymous.
func (s *Service) Current(ctx context.Context, principal *auth.Principal) (*Profile, error) {
	if principal != nil {
		return s.Get(ctx, principal.UserID)
	}
	admin, err := s.Admin(ctx)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, nil
	}
	profile := toProfile(*admin)
	return &profile, nil
}

// Admin returns the admin account, or nil before anyone has registered.
func (s *Service) Admin(ctx context.Context) (*User, error) {
	var admin User
	err := s.db.WithContext(ctx).Where("role = ?", auth.RoleAdmin).Order("id ASC").Take(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opCurrent, "admin_query_failed", err)
		return nil, apperr.System(err)
	}
	return &admin, nil
}

// List returns every account. Admin only.
func (s *Service) List(ctx context.Context, principal auth.Principal) ([]Profile, error) {
	if !principal.IsAdmin() {
		return nil, apperr.NeedLogin()
	}
	var rows []User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, apperr.System(err)
	}
	profiles := make([]Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, toProfile(row))
	}
	return profiles, nil
}

// Names returns every non-empty display name.
func (s *Service) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("display_name <> ''").
		Order("id ASC").
		Pluck("display_name", &names).Error; err != nil {
		s.logError(opNames, "query_failed", err)
		return nil, apperr.System(err)
	}
	return names, nil
}

// Role implements auth.Directory.
func (s *Service) Role(ctx context.Context, userID int64) (string, error) {
	var roles []string
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Limit(1).
		Pluck("role", &roles).Error; err != nil {
		s.logError(opRole, "query_failed", err, zap.Int64("user_id", userID))
		return "", err
	}
	if len(roles) == 0 {
		return "", nil
	}
	return roles[0], nil
}

// APITokenIssued implements auth.Directory.
func (s *Service) APITokenIssued(ctx context.Context, userID int64, token string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&DevToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Count(&count).Error; err != nil {
		s.logError(opToken, "liveness_query_failed", err, zap.Int64("user_id", userID))
		return false, err
	}
	return count > 0, nil
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
	s.logger.Error("users service error", attrs...)
}

// maxPasswordBytes is the longest input bcrypt accepts.
const (
	maxPasswordBytes       = 72
	messagePasswordTooLong = "password must be at most 72 bytes"
)

func (s *Service) hashPassword(operation, password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", apperr.Param(messagePasswordTooLong)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperr.Param(messagePasswordTooLong)
	}
	if err != nil {
		s.logError(operation, "hash_failed", err)
		return "", apperr.System(err)
	}
	return string(hash), nil
}
