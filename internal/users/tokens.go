package users

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Token returns the caller's API token, or nil when none is enabled.
func (s *Service) Token(ctx context.Context, userID int64) (*TokenView, error) {
	token, err := s.findToken(s.db.WithContext(ctx), userID)
	if err != nil || token == nil {
		return nil, err
	}
	return &TokenView{ID: token.ID, Name: token.Name, Token: token.Token}, nil
}

// EnableToken mints an API token when the caller has none.
func (s *Service) EnableToken(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findToken(tx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		minted, err := s.mintAPIToken(userID)
		if err != nil {
			return err
		}
		if err := tx.Create(&DevToken{Name: DefaultTokenName, Token: minted, UserID: userID}).Error; err != nil {
			s.logError(opToken, "insert_failed", err, zap.Int64("user_id", userID))
			return apperr.System(err)
		}
		return nil
	})
}

// ResetToken replaces the caller's API token. The previous credential stops resolving.
func (s *Service) ResetToken(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findToken(tx, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Fail("token does not exist")
		}
		minted, err := s.mintAPIToken(userID)
		if err != nil {
			return err
		}
		if err := tx.Model(&DevToken{}).Where("id = ?", existing.ID).Update("token", minted).Error; err != nil {
			s.logError(opToken, "update_failed", err, zap.Int64("user_id", userID))
			return apperr.System(err)
		}
		return nil
	})
}

// DisableToken deletes the caller's API token.
func (s *Service) DisableToken(ctx context.Context, userID int64) error {
	if err := s.db.WithContext(ctx).
		Where("name = ? AND user_id = ?", DefaultTokenName, userID).
		Delete(&DevToken{}).Error; err != nil {
		s.logError(opToken, "delete_failed", err, zap.Int64("user_id", userID))
		return apperr.System(err)
	}
	return nil
}

func (s *Service) findToken(db *gorm.DB, userID int64) (*DevToken, error) {
	var token DevToken
	err := db.Where("name = ? AND user_id = ?", DefaultTokenName, userID).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opToken, "query_failed", err, zap.Int64("user_id", userID))
		return nil, apperr.System(err)
	}
	return &token, nil
}

func (s *Service) mintAPIToken(userID int64) (string, error) {
	minted, err := s.issuer.Issue(userID, auth.DeviceAPI)
	if err != nil {
		s.logError(opToken, "issue_failed", err, zap.Int64("user_id", userID))
		return "", apperr.System(err)
	}
	return minted, nil
}
