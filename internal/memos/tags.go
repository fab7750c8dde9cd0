package memos

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListTags   = "tags.list"
	opTopTags    = "tags.top10"
	opRemoveTag  = "tags.remove"
	opRenameTags = "tags.rename"

	topTagLimit = 10
)

// TagView is the public form of a tag.
type TagView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TagRename renames one of the caller's tags.
type TagRename struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toTagViews(rows []Tag) []TagView {
	views := make([]TagView, 0, len(rows))
	for _, row := range rows {
		views = append(views, TagView{ID: row.ID, Name: row.Name, Count: row.MemoCount})
	}
	return views
}

// ListTags returns every tag owned by userID.
func (s *Service) ListTags(ctx context.Context, userID int64) ([]TagView, error) {
	var rows []Tag
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		s.logError(opListTags, "query_failed", err, zap.Int64("user_id", userID))
		return nil, apperr.System(err)
	}
	return toTagViews(rows), nil
}

// TopTags returns the viewer's ten most used tags, or the admin's for anonymous viewers.
func (s *Service) TopTags(ctx context.Context, principal *auth.Principal) ([]TagView, error) {
	userID, err := s.ownerOrAdmin(ctx, opTopTags, principal)
	if err != nil {
		return nil, err
	}
	var rows []Tag
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("memo_count DESC").
		Order("id ASC").
		Limit(topTagLimit).
		Find(&rows).Error; err != nil {
		s.logError(opTopTags, "query_failed", err, zap.Int64("user_id", userID))
		return nil, apperr.System(err)
	}
	return toTagViews(rows), nil
}

// RemoveTag deletes one of the caller's tags. Tags still carried by a memo are kept.
func (s *Service) RemoveTag(ctx context.Context, userID, tagID int64) error {
	db := s.db.WithContext(ctx)
	var tag Tag
	err := db.Where("id = ? AND user_id = ?", tagID, userID).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(opRemoveTag, "tag_select_failed", err, zap.Int64("tag_id", tagID))
		return apperr.System(err)
	}
	if tag.MemoCount != 0 {
		return apperr.Fail("tag is still in use")
	}
	if err := db.Where("id = ? AND user_id = ? AND memo_count = 0", tagID, userID).Delete(&Tag{}).Error; err != nil {
		s.logError(opRemoveTag, "tag_delete_failed", err, zap.Int64("tag_id", tagID))
		return apperr.System(err)
	}
	return nil
}

// RenameTags renames tags and rewrites the tag column of every memo of the owner that
// carries them, in one transaction.
func (s *Service) RenameTags(ctx context.Context, userID int64, renames []TagRename) error {
	if renames == nil {
		return apperr.Param("list must not be null")
	}
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rename := range renames {
			newName := normalizeTagName(rename.Name)
			if newName == "" {
				return apperr.Param("invalid tag name")
			}

			var tag Tag
			err := tx.Where("id = ? AND user_id = ?", rename.ID, userID).Take(&tag).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Fail("tag does not exist")
			}
			if err != nil {
				s.logError(opRenameTags, "tag_select_failed", err, zap.Int64("tag_id", rename.ID))
				return apperr.System(err)
			}
			if tag.Name == newName {
				continue
			}

			var clashes int64
			if err := tx.Model(&Tag{}).
				Where("user_id = ? AND name = ?", userID, newName).
				Count(&clashes).Error; err != nil {
				s.logError(opRenameTags, "tag_clash_check_failed", err, zap.Int64("tag_id", rename.ID))
				return apperr.System(err)
			}
			if clashes > 0 {
				return apperr.Fail("tag already exists")
			}

			if err := tx.Model(&Tag{}).
				Where("id = ?", tag.ID).
				Updates(map[string]interface{}{"name": newName, "updated": now}).Error; err != nil {
				s.logError(opRenameTags, "tag_update_failed", err, zap.Int64("tag_id", tag.ID))
				return apperr.System(err)
			}

			var carriers []Memo
			if err := tx.Select("id", "tags").
				Where("user_id = ? AND tags LIKE ?", userID, likeTagPattern(tag.Name)).
				Find(&carriers).Error; err != nil {
				s.logError(opRenameTags, "memo_select_failed", err, zap.Int64("tag_id", tag.ID))
				return apperr.System(err)
			}
			for _, memo := range carriers {
				tags := memo.TagSet()
				if !tags.Rename(tag.Name, newName) {
					continue
				}
				if err := tx.Model(&Memo{}).
					Where("id = ?", memo.ID).
					Updates(map[string]interface{}{"tags": tags.Encode(), "updated": now}).Error; err != nil {
					s.logError(opRenameTags, "memo_update_failed", err, zap.Int64("memo_id", memo.ID))
					return apperr.System(err)
				}
			}
		}
		return nil
	})
}

func normalizeTagName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "#" || strings.ContainsAny(name, ", \t\r\n") {
		return ""
	}
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}
	return name
}

// ownerOrAdmin picks the principal's id, or the admin's for anonymous viewers.
func (s *Service) ownerOrAdmin(ctx context.Context, operation string, principal *auth.Principal) (int64, error) {
	if principal != nil {
		return principal.UserID, nil
	}
	return s.adminID(ctx, operation)
}
