package memos

import (
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// syncTagsOnSave creates missing tags with a count of one and increments the rest. Each
// name is looked up on its own so the column collation decides which row it matches; names
// that fold onto the same row count it once.
func (s *Service) syncTagsOnSave(tx *gorm.DB, operation string, userID int64, tags TagSet, now time.Time) error {
	if tags.Len() == 0 {
		return nil
	}

	matched := make(map[int64]struct{}, tags.Len())
	increments := make([]int64, 0, tags.Len())
	for _, name := range tags.Names() {
		var existing []Tag
		if err := tx.Where("user_id = ? AND name = ?", userID, name).Limit(1).Find(&existing).Error; err != nil {
			s.logError(operation, "tag_select_failed", err, zap.Int64("user_id", userID), zap.String("tag", name))
			return apperr.System(err)
		}
		if len(existing) > 0 {
			if _, seen := matched[existing[0].ID]; !seen {
				matched[existing[0].ID] = struct{}{}
				increments = append(increments, existing[0].ID)
			}
			continue
		}
		tag := Tag{UserID: userID, Name: name, MemoCount: 1, Created: now, Updated: now}
		if err := tx.Create(&tag).Error; err != nil {
			s.logError(operation, "tag_insert_failed", err, zap.Int64("user_id", userID), zap.String("tag", name))
			return apperr.System(err)
		}
		matched[tag.ID] = struct{}{}
	}

	if len(increments) > 0 {
		if err := tx.Model(&Tag{}).
			Where("id IN ?", increments).
			Updates(map[string]interface{}{
				"memo_count": gorm.Expr("memo_count + ?", 1),
				"updated":    now,
			}).Error; err != nil {
			s.logError(operation, "tag_increment_failed", err, zap.Int64("user_id", userID))
			return apperr.System(err)
		}
	}
	return nil
}

// syncTagsOnUpdate counts every new tag and then releases every old one, so a tag kept
// across the edit nets to zero.
func (s *Service) syncTagsOnUpdate(tx *gorm.DB, operation string, userID int64, newTags, oldTags TagSet, now time.Time) error {
	if err := s.syncTagsOnSave(tx, operation, userID, newTags, now); err != nil {
		return err
	}
	return s.releaseTags(tx, operation, userID, oldTags, now)
}

// releaseTags decrements each tag once, never below zero.
func (s *Service) releaseTags(tx *gorm.DB, operation string, userID int64, tags TagSet, now time.Time) error {
	if tags.Len() == 0 {
		return nil
	}
	if err := tx.Model(&Tag{}).
		Where("user_id = ? AND name IN ? AND memo_count >= 1", userID, tags.Names()).
		Updates(map[string]interface{}{
			"memo_count": gorm.Expr("memo_count - ?", 1),
			"updated":    now,
		}).Error; err != nil {
		s.logError(operation, "tag_decrement_failed", err, zap.Int64("user_id", userID))
		return apperr.System(err)
	}
	return nil
}

// attachResources claims orphaned uploads for memoID.
func (s *Service) attachResources(tx *gorm.DB, operation string, memoID int64, publicIDs []string, now time.Time) error {
	if len(publicIDs) == 0 {
		return nil
	}
	if err := tx.Model(&Resource{}).
		Where("memo_id = 0 AND public_id IN ?", publicIDs).
		Updates(map[string]interface{}{"memo_id": memoID, "updated": now}).Error; err != nil {
		s.logError(operation, "resource_attach_failed", err, zap.Int64("memo_id", memoID))
		return apperr.System(err)
	}
	return nil
}

// detachResources returns every resource of memoID to the orphaned state.
func (s *Service) detachResources(tx *gorm.DB, operation string, memoID int64, now time.Time) error {
	if err := tx.Model(&Resource{}).
		Where("memo_id = ?", memoID).
		Updates(map[string]interface{}{"memo_id": 0, "updated": now}).Error; err != nil {
		s.logError(operation, "resource_detach_failed", err, zap.Int64("memo_id", memoID))
		return apperr.System(err)
	}
	return nil
}
