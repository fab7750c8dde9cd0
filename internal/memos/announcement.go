package memos

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opAnnouncement = "memos.announcement"
	opResource     = "resources.get"

	resourcePath = "/api/resource/"
)

// Announcement is the outbound notice for a newly published memo.
type Announcement struct {
	Content    string   `json:"content"`
	Tags       string   `json:"tags"`
	Created    int64    `json:"created"`
	AuthorName string   `json:"authorName"`
	Resources  []string `json:"resources"`
}

// Announcement loads the notice for memoID. It returns nil when the memo is gone or no
// longer public.
func (s *Service) Announcement(ctx context.Context, memoID int64) (*Announcement, error) {
	db := s.db.WithContext(ctx)
	memo, err := s.findMemo(db, opAnnouncement, memoID)
	if err != nil {
		return nil, err
	}
	if memo == nil || memo.Visibility != VisibilityPublic {
		return nil, nil
	}
	author, err := s.findUser(db, opAnnouncement, memo.UserID)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return nil, apperr.Fail("user does not exist")
	}
	domain, err := s.settings.Get(ctx, settings.KeyDomain)
	if err != nil {
		return nil, err
	}

	var publicIDs []string
	if err := db.Model(&Resource{}).
		Where("memo_id = ?", memoID).
		Order("created ASC").
		Order("public_id ASC").
		Pluck("public_id", &publicIDs).Error; err != nil {
		s.logError(opAnnouncement, "resource_select_failed", err, zap.Int64("memo_id", memoID))
		return nil, apperr.System(err)
	}
	urls := make([]string, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		urls = append(urls, domain+resourcePath+publicID)
	}

	return &Announcement{
		Content:    memo.Content,
		Tags:       memo.Tags,
		Created:    memo.Created.UnixMilli(),
		AuthorName: author.DisplayName,
		Resources:  urls,
	}, nil
}

// Resource returns the metadata of one upload, or nil when it does not exist.
func (s *Service) Resource(ctx context.Context, publicID string) (*ResourceView, error) {
	var resource Resource
	err := s.db.WithContext(ctx).Where("public_id = ?", publicID).Take(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opResource, "resource_select_failed", err, zap.String("public_id", publicID))
		return nil, apperr.System(err)
	}
	domain, err := s.settings.Get(ctx, settings.KeyDomain)
	if err != nil {
		return nil, err
	}
	return &ResourceView{
		PublicID:    resource.PublicID,
		URL:         resource.URL(domain),
		FileType:    resource.FileType,
		Suffix:      resource.Suffix,
		StorageType: resource.StorageType,
		FileName:    resource.FileName,
	}, nil
}
