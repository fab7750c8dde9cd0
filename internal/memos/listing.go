package memos

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opList = "memos.list"
	opGet  = "memos.get"

	defaultPageSize = 20
	memoTable       = "memos AS t"
)

// ListRequest filters a memo listing. Liked, Commented and Mentioned apply to signed-in
// viewers only; Mentioned refines Commented.
type ListRequest struct {
	Page       int64  `json:"page"`
	Size       int64  `json:"size"`
	Tag        string `json:"tag"`
	Visibility string `json:"visibility"`
	UserID     int64  `json:"userId"`
	Begin      string `json:"begin"`
	End        string `json:"end"`
	Search     string `json:"search"`
	Liked      bool   `json:"liked"`
	Commented  bool   `json:"commented"`
	Mentioned  bool   `json:"mentioned"`
}

// ListResult is one page of a listing.
type ListResult struct {
	Items     []MemoView `json:"items"`
	Total     int64      `json:"total"`
	TotalPage int64      `json:"totalPage"`
}

// ResourceView is an attachment as shown to viewers.
type ResourceView struct {
	PublicID    string `json:"publicId"`
	URL         string `json:"url"`
	FileType    string `json:"fileType"`
	Suffix      string `json:"suffix"`
	StorageType string `json:"storageType"`
	FileName    string `json:"fileName"`
}

// MemoView is a memo enriched with author, attachments and viewer state.
type MemoView struct {
	ID                     int64          `json:"id"`
	UserID                 int64          `json:"userId"`
	Content                string         `json:"content"`
	Tags                   string         `json:"tags"`
	Visibility             string         `json:"visibility"`
	Status                 string         `json:"status"`
	Created                time.Time      `json:"created"`
	Updated                time.Time      `json:"updated"`
	AuthorName             string         `json:"authorName"`
	AuthorRole             string         `json:"authorRole"`
	Email                  string         `json:"email"`
	Bio                    string         `json:"bio"`
	Priority               int64          `json:"priority"`
	CommentCount           int64          `json:"commentCount"`
	UnApprovedCommentCount int64          `json:"unApprovedCommentCount"`
	LikeCount              int64          `json:"likeCount"`
	EnableComment          int            `json:"enableComment"`
	ViewCount              int64          `json:"viewCount"`
	Liked                  int            `json:"liked"`
	Resources              []ResourceView `json:"resources"`
	Source                 string         `json:"source"`
}

func clampPage(page, size int64) (int64, int64) {
	if page < 1 {
		page = 1
	}
	if size == 0 {
		size = defaultPageSize
	}
	if size < 1 {
		size = 1
	}
	return page, size
}

func totalPages(total, size int64) int64 {
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// parseInstant accepts RFC3339 or a millisecond epoch.
func parseInstant(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), true
	}
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), true
	}
	return time.Time{}, false
}

// visibilityPredicate is the listing visibility rule: anonymous viewers see public memos,
// signed-in viewers also see protected memos and their own private ones.
func visibilityPredicate(viewer *auth.Principal) Predicate {
	if viewer == nil {
		return Equals{Column: "t.visibility", Value: VisibilityPublic}
	}
	return AnyOf{
		In{Column: "t.visibility", Values: []string{VisibilityPublic, VisibilityProtect}},
		AllOf{
			Equals{Column: "t.visibility", Value: VisibilityPrivate},
			Equals{Column: "t.user_id", Value: viewer.UserID},
		},
	}
}

func mentionPatternFor(userID int64) string {
	return "%#" + strconv.FormatInt(userID, 10) + ",%"
}

// listFilter compiles a listing request into joins and predicates.
func listFilter(viewer *auth.Principal, request ListRequest) Filter {
	var filter Filter
	filter.Where(Equals{Column: "t.status", Value: StatusNormal})

	if search := request.Search; search != "" {
		filter.Where(Like{Column: "t.content", Pattern: "%" + search + "%"})
	}
	begin, beginOK := parseInstant(request.Begin)
	end, endOK := parseInstant(request.End)
	if beginOK && endOK {
		filter.Where(Between{Column: "t.created", Low: begin, High: end})
	}

	filter.Where(visibilityPredicate(viewer))

	if viewer != nil {
		if request.Liked {
			filter.Join(RawJoin{
				Clause: "JOIN user_memo_relations AS liked ON liked.memo_id = t.id AND liked.user_id = ? AND liked.fav_type = ?",
				Args:   []interface{}{viewer.UserID, FavTypeLike},
			})
		}
		if request.Commented {
			if request.Mentioned {
				filter.Join(RawJoin{
					Clause: "JOIN (SELECT DISTINCT memo_id FROM comments WHERE mentioned_user_id LIKE ?) AS commented ON commented.memo_id = t.id",
					Args:   []interface{}{mentionPatternFor(viewer.UserID)},
				})
			} else {
				filter.Join(RawJoin{
					Clause: "JOIN (SELECT DISTINCT memo_id FROM comments WHERE user_id = ?) AS commented ON commented.memo_id = t.id",
					Args:   []interface{}{viewer.UserID},
				})
			}
		}
	}

	if request.UserID > 0 {
		filter.Where(Equals{Column: "t.user_id", Value: request.UserID})
	}
	if tag := strings.TrimSpace(request.Tag); tag != "" {
		filter.Where(Like{Column: "t.tags", Pattern: likeTagPattern(tag)})
	}
	if visibility := strings.TrimSpace(request.Visibility); visibility != "" {
		filter.Where(Equals{Column: "t.visibility", Value: visibility})
	}
	return filter
}

// List returns one page of memos visible to viewer. The count and the page share the
// same compiled filter.
func (s *Service) List(ctx context.Context, viewer *auth.Principal, request ListRequest) (ListResult, error) {
	page, size := clampPage(request.Page, request.Size)
	filter := listFilter(viewer, request)
	db := s.db.WithContext(ctx)

	var total int64
	if err := filter.Apply(db.Table(memoTable)).Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err)
		return ListResult{}, apperr.System(err)
	}

	query := filter.Apply(db.Table(memoTable)).Select("t.*")
	if !request.Liked && !request.Commented && !request.Mentioned {
		query = query.Order("t.priority DESC")
	}
	var rows []Memo
	if err := query.
		Order("t.created DESC").
		Order("t.id DESC").
		Offset(int((page - 1) * size)).
		Limit(int(size)).
		Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return ListResult{}, apperr.System(err)
	}

	items, err := s.enrich(ctx, opList, rows, viewer)
	if err != nil {
		return ListResult{}, err
	}

	if viewer != nil && request.Commented && request.Mentioned {
		if err := db.Model(&users.User{}).
			Where("id = ?", viewer.UserID).
			Update("last_clicked_mentioned", s.now()).Error; err != nil {
			s.logger.Warn("mention read marker update failed", zap.Int64("user_id", viewer.UserID), zap.Error(err))
		}
	}

	return ListResult{Items: items, Total: total, TotalPage: totalPages(total, size)}, nil
}

// Get returns one memo under the listing visibility rule, or nil when it is not visible.
// countView bumps the view counter.
func (s *Service) Get(ctx context.Context, viewer *auth.Principal, memoID int64, countView bool) (*MemoView, error) {
	var filter Filter
	filter.Where(Equals{Column: "t.id", Value: memoID})
	filter.Where(visibilityPredicate(viewer))
	db := s.db.WithContext(ctx)

	var memo Memo
	err := filter.Apply(db.Table(memoTable)).Select("t.*").Take(&memo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Int64("memo_id", memoID))
		return nil, apperr.System(err)
	}

	if countView {
		if err := db.Model(&Memo{}).
			Where("id = ?", memoID).
			Update("view_count", gorm.Expr("view_count + ?", 1)).Error; err != nil {
			s.logError(opGet, "view_count_failed", err, zap.Int64("memo_id", memoID))
			return nil, apperr.System(err)
		}
		memo.ViewCount++
	}

	views, err := s.enrich(ctx, opGet, []Memo{memo}, viewer)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

type unapprovedCount struct {
	MemoID int64
	Total  int64
}

// enrich attaches authors, resources, like state and pending comment counts with one
// batched query each.
func (s *Service) enrich(ctx context.Context, operation string, rows []Memo, viewer *auth.Principal) ([]MemoView, error) {
	views := make([]MemoView, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}
	db := s.db.WithContext(ctx)

	memoIDs := make([]int64, 0, len(rows))
	authorIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		memoIDs = append(memoIDs, row.ID)
		authorIDs = append(authorIDs, row.UserID)
	}

	domain, err := s.settings.Get(ctx, settings.KeyDomain)
	if err != nil {
		return nil, err
	}

	var authors []users.User
	if err := db.Where("id IN ?", authorIDs).Find(&authors).Error; err != nil {
		s.logError(operation, "author_select_failed", err)
		return nil, apperr.System(err)
	}
	authorByID := make(map[int64]users.User, len(authors))
	for _, author := range authors {
		authorByID[author.ID] = author
	}

	var resources []Resource
	if err := db.Where("memo_id IN ?", memoIDs).
		Order("created ASC").
		Order("public_id ASC").
		Find(&resources).Error; err != nil {
		s.logError(operation, "resource_select_failed", err)
		return nil, apperr.System(err)
	}
	resourcesByMemo := make(map[int64][]ResourceView, len(rows))
	for _, resource := range resources {
		resourcesByMemo[resource.MemoID] = append(resourcesByMemo[resource.MemoID], ResourceView{
			PublicID:    resource.PublicID,
			URL:         resource.URL(domain),
			FileType:    resource.FileType,
			Suffix:      resource.Suffix,
			StorageType: resource.StorageType,
			FileName:    resource.FileName,
		})
	}

	liked := map[int64]bool{}
	if viewer != nil {
		var likedIDs []int64
		if err := db.Model(&UserMemoRelation{}).
			Where("user_id = ? AND fav_type = ? AND memo_id IN ?", viewer.UserID, FavTypeLike, memoIDs).
			Pluck("memo_id", &likedIDs).Error; err != nil {
			s.logError(operation, "liked_select_failed", err)
			return nil, apperr.System(err)
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
	}

	var pending []unapprovedCount
	if err := db.Model(&Comment{}).
		Select("memo_id, COUNT(*) AS total").
		Where("memo_id IN ? AND user_id < 0 AND approved = 0", memoIDs).
		Group("memo_id").
		Scan(&pending).Error; err != nil {
		s.logError(operation, "pending_count_failed", err)
		return nil, apperr.System(err)
	}
	pendingByMemo := make(map[int64]int64, len(pending))
	for _, count := range pending {
		pendingByMemo[count.MemoID] = count.Total
	}

	for _, row := range rows {
		author := authorByID[row.UserID]
		view := MemoView{
			ID:                     row.ID,
			UserID:                 row.UserID,
			Content:                row.Content,
			Tags:                   row.Tags,
			Visibility:             row.Visibility,
			Status:                 row.Status,
			Created:                row.Created,
			Updated:                row.Updated,
			AuthorName:             author.DisplayName,
			AuthorRole:             author.Role,
			Email:                  author.Email,
			Bio:                    author.Bio,
			Priority:               row.Priority,
			CommentCount:           row.CommentCount,
			UnApprovedCommentCount: pendingByMemo[row.ID],
			LikeCount:              row.LikeCount,
			EnableComment:          row.EnableComment,
			ViewCount:              row.ViewCount,
			Resources:              resourcesByMemo[row.ID],
			Source:                 row.Source,
		}
		if view.Resources == nil {
			view.Resources = []ResourceView{}
		}
		if liked[row.ID] {
			view.Liked = 1
		}
		views = append(views, view)
	}
	return views, nil
}
