package memos

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreate      = "memos.create"
	opUpdate      = "memos.update"
	opDelete      = "memos.delete"
	opSetPriority = "memos.set_priority"
)

// SaveRequest carries memo content for create and update.
type SaveRequest struct {
	ID            int64    `json:"id"`
	Content       string   `json:"content"`
	PublicIDs     []string `json:"publicIds"`
	Visibility    string   `json:"visibility"`
	EnableComment *bool    `json:"enableComment"`
	Source        string   `json:"source"`
}

func (r SaveRequest) validate() error {
	if strings.TrimSpace(r.Content) == "" && len(r.PublicIDs) == 0 {
		return apperr.Fail("content and resources are both empty")
	}
	switch strings.TrimSpace(r.Visibility) {
	case "", VisibilityPublic, VisibilityProtect, VisibilityPrivate:
		return nil
	default:
		return apperr.Param("invalid visibility")
	}
}

func boolFlag(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Create stores a memo, counts its tags and claims its uploads in one transaction. Public
// memos are handed to the notifier after commit.
func (s *Service) Create(ctx context.Context, principal auth.Principal, request SaveRequest) (int64, error) {
	if err := request.validate(); err != nil {
		return 0, err
	}

	tags := ParseTags(request.Content)
	visibility := strings.TrimSpace(request.Visibility)
	if visibility == "" {
		visibility = VisibilityPublic
	}
	enableComment := request.EnableComment != nil && *request.EnableComment
	now := s.now()

	memo := Memo{
		UserID:        principal.UserID,
		Content:       StripTags(request.Content, tags),
		Tags:          tags.Encode(),
		Visibility:    visibility,
		Status:        StatusNormal,
		EnableComment: boolFlag(enableComment),
		Source:        strings.TrimSpace(request.Source),
		Created:       now,
		Updated:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&memo).Error; err != nil {
			s.logError(opCreate, "memo_insert_failed", err, zap.Int64("user_id", principal.UserID))
			return apperr.System(err)
		}
		if err := s.syncTagsOnSave(tx, opCreate, principal.UserID, tags, now); err != nil {
			return err
		}
		return s.attachResources(tx, opCreate, memo.ID, request.PublicIDs, now)
	})
	if err != nil {
		return 0, err
	}

	if s.notifier != nil && memo.Visibility == VisibilityPublic {
		s.notifier.MemoCreated(memo.ID)
	}
	return memo.ID, nil
}

// Update replaces content, tags and attachments of an existing memo. Tag counts are
// adjusted on the owner's tags.
func (s *Service) Update(ctx context.Context, principal auth.Principal, request SaveRequest) error {
	if request.ID <= 0 {
		return apperr.Param("memo id is required")
	}
	if err := request.validate(); err != nil {
		return err
	}

	existing, err := s.findMemo(s.db.WithContext(ctx), opUpdate, request.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.Fail("memo does not exist")
	}
	if !canManage(principal, existing.UserID) {
		return apperr.Fail("cannot modify another user's memo")
	}

	newTags := ParseTags(request.Content)
	oldTags := existing.TagSet()
	now := s.now()

	updates := map[string]interface{}{
		"content": StripTags(request.Content, newTags),
		"tags":    newTags.Encode(),
		"updated": now,
	}
	if visibility := strings.TrimSpace(request.Visibility); visibility != "" {
		updates["visibility"] = visibility
	}
	if request.EnableComment != nil {
		updates["enable_comment"] = boolFlag(*request.EnableComment)
	}
	if source := strings.TrimSpace(request.Source); source != "" {
		updates["source"] = source
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Memo{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			s.logError(opUpdate, "memo_update_failed", err, zap.Int64("memo_id", existing.ID))
			return apperr.System(err)
		}
		if err := s.syncTagsOnUpdate(tx, opUpdate, existing.UserID, newTags, oldTags, now); err != nil {
			return err
		}
		if err := s.detachResources(tx, opUpdate, existing.ID, now); err != nil {
			return err
		}
		return s.attachResources(tx, opUpdate, existing.ID, request.PublicIDs, now)
	})
}

// Delete removes a memo with its resources, comments and likes and releases its tags.
// Deleting a missing memo succeeds.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, memoID int64) error {
	existing, err := s.findMemo(s.db.WithContext(ctx), opDelete, memoID)
	if err != nil || existing == nil {
		return err
	}
	if !canManage(principal, existing.UserID) {
		return apperr.Fail("cannot delete another user's memo")
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.releaseTags(tx, opDelete, existing.UserID, existing.TagSet(), now); err != nil {
			return err
		}
		if err := tx.Where("memo_id = ?", memoID).Delete(&Resource{}).Error; err != nil {
			s.logError(opDelete, "resource_delete_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		if err := tx.Where("id = ?", memoID).Delete(&Memo{}).Error; err != nil {
			s.logError(opDelete, "memo_delete_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		if err := tx.Where("memo_id = ?", memoID).Delete(&Comment{}).Error; err != nil {
			s.logError(opDelete, "comment_delete_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		if err := tx.Where("memo_id = ?", memoID).Delete(&UserMemoRelation{}).Error; err != nil {
			s.logError(opDelete, "relation_delete_failed", err, zap.Int64("memo_id", memoID))
			return apperr.System(err)
		}
		return nil
	})
}

// SetPriority pins a memo above every other (set) or unpins it. A missing memo succeeds.
func (s *Service) SetPriority(ctx context.Context, principal auth.Principal, memoID int64, set bool) error {
	existing, err := s.findMemo(s.db.WithContext(ctx), opSetPriority, memoID)
	if err != nil || existing == nil {
		return err
	}
	if !canManage(principal, existing.UserID) {
		return apperr.Fail("cannot modify another user's memo")
	}

	priority := interface{}(0)
	if set {
		// The derived table lets MySQL read the table it is updating.
		priority = gorm.Expr("(SELECT COALESCE(MAX(x.priority), 0) FROM (SELECT priority FROM memos) AS x) + 1")
	}
	if err := s.db.WithContext(ctx).Model(&Memo{}).
		Where("id = ?", memoID).
		Update("priority", priority).Error; err != nil {
		s.logError(opSetPriority, "update_failed", err, zap.Int64("memo_id", memoID))
		return apperr.System(err)
	}
	return nil
}
