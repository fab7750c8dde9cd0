package memos

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opRelation = "memos.relation"

// Relation operations.
const (
	OperateAdd    = "ADD"
	OperateRemove = "REMOVE"
)

// RelationRequest adds or removes the caller's like on a memo.
type RelationRequest struct {
	MemoID      int64  `json:"memoId"`
	Type        string `json:"type"`
	OperateType string `json:"operateType"`
}

// Relation applies a like or unlike, keeping like_count in step with the relation rows.
func (s *Service) Relation(ctx context.Context, principal auth.Principal, request RelationRequest) error {
	favType := strings.ToUpper(strings.TrimSpace(request.Type))
	if favType == "" {
		favType = FavTypeLike
	}
	if favType != FavTypeLike {
		return apperr.Param("unsupported relation type")
	}
	operation := strings.ToUpper(strings.TrimSpace(request.OperateType))
	if operation != OperateAdd && operation != OperateRemove {
		return apperr.Param("unsupported operate type")
	}

	open, err := s.settings.Bool(ctx, settings.KeyOpenLike)
	if err != nil {
		return err
	}
	if !open {
		return apperr.Fail("likes are disabled")
	}

	if operation == OperateAdd {
		return s.like(ctx, principal.UserID, request.MemoID, favType)
	}
	return s.unlike(ctx, principal.UserID, request.MemoID, favType)
}

func (s *Service) like(ctx context.Context, userID, memoID int64, favType string) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memo, err := s.findMemo(tx, opRelation, memoID)
		if err != nil {
			return err
		}
		if memo == nil {
			return apperr.Fail("memo does not exist")
		}

		var existing int64
		if err := tx.Model(&UserMemoRelation{}).
			Where("memo_id = ? AND user_id = ? AND fav_type = ?", memoID, userID, favType).
			Count(&existing).Error; err != nil {
			s.logError(opRelation, "relation_count_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		if existing > 0 {
			return apperr.Fail("already exists")
		}

		relation := UserMemoRelation{MemoID: memoID, UserID: userID, FavType: favType, Created: now, Updated: now}
		if err := tx.Create(&relation).Error; err != nil {
			s.logError(opRelation, "relation_insert_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		if err := tx.Model(&Memo{}).
			Where("id = ?", memoID).
			Update("like_count", gorm.Expr("like_count + ?", 1)).Error; err != nil {
			s.logError(opRelation, "like_increment_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		return nil
	})
}

func (s *Service) unlike(ctx context.Context, userID, memoID int64, favType string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("memo_id = ? AND user_id = ? AND fav_type = ?", memoID, userID, favType).
			Delete(&UserMemoRelation{})
		if result.Error != nil {
			s.logError(opRelation, "relation_delete_failed", result.Error, zap.Int64("memo_id", memoID))
			return apperr.System(result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&Memo{}).
			Where("id = ? AND like_count >= 1", memoID).
			Update("like_count", gorm.Expr("like_count - ?", 1)).Error; err != nil {
			s.logError(opRelation, "like_decrement_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		return nil
	})
}
