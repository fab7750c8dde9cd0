package memos

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opAddComment     = "comments.add"
	opRemoveComment  = "comments.remove"
	opQueryComments  = "comments.query"
	opApproveComment = "comments.approve"
)

var mentionPattern = regexp.MustCompile(`(@.*?)\s+`)

// CommentRequest carries a new comment. Username, Email and Link apply to anonymous authors.
type CommentRequest struct {
	MemoID   int64  `json:"memoId"`
	Content  string `json:"content"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Link     string `json:"link"`
}

// CommentQuery selects one page of a memo's comments.
type CommentQuery struct {
	MemoID int64 `json:"memoId"`
	Page   int64 `json:"page"`
	Size   int64 `json:"size"`
}

// CommentPage is one page of comments ordered oldest first.
type CommentPage struct {
	Total     int64     `json:"total"`
	TotalPage int64     `json:"totalPage"`
	List      []Comment `json:"list"`
}

// AddComment stores a comment and bumps the memo's comment count in one transaction.
func (s *Service) AddComment(ctx context.Context, principal *auth.Principal, request CommentRequest) error {
	if strings.TrimSpace(request.Content) == "" {
		return apperr.Param("content cannot be null")
	}
	db := s.db.WithContext(ctx)

	memo, err := s.findMemo(db, opAddComment, request.MemoID)
	if err != nil {
		return err
	}
	if memo == nil {
		return apperr.Fail("memo does not exist")
	}
	open, err := s.settings.Bool(ctx, settings.KeyOpenComment)
	if err != nil {
		return err
	}
	if !open || memo.EnableComment != 1 {
		return apperr.Fail("comments are disabled")
	}

	now := s.now()
	comment := Comment{
		MemoID:  memo.ID,
		Content: request.Content,
		Created: now,
		Updated: now,
	}

	if principal != nil {
		author, err := s.findUser(db, opAddComment, principal.UserID)
		if err != nil {
			return err
		}
		if author == nil {
			return apperr.Fail("user does not exist")
		}
		comment.UserID = author.ID
		comment.UserName = author.NameOrUsername()
		comment.Approved = 1
	} else {
		anonymous, err := s.settings.Bool(ctx, settings.KeyAnonymousComment)
		if err != nil {
			return err
		}
		if !anonymous {
			return apperr.Fail("anonymous comments are not allowed")
		}
		name := strings.TrimSpace(request.Username)
		if name == "" {
			return apperr.Param("username cannot be null")
		}
		needsApproval, err := s.settings.Bool(ctx, settings.KeyCommentApproved)
		if err != nil {
			return err
		}
		comment.UserID = AnonymousUserID
		comment.UserName = name
		comment.Email = strings.TrimSpace(request.Email)
		comment.Link = strings.TrimSpace(request.Link)
		comment.Approved = 1 - boolFlag(needsApproval)
	}

	names, ids, err := s.resolveMentions(db, request.Content)
	if err != nil {
		return err
	}
	comment.Mentioned = names
	comment.MentionedUserID = ids

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Memo{}).
			Where("id = ?", memo.ID).
			Update("comment_count", gorm.Expr("comment_count + ?", 1)).Error; err != nil {
			s.logError(opAddComment, "count_increment_failed", err, zap.Int64("memo_id", memo.ID))
			return apperr.System(err)
		}
		if err := tx.Create(&comment).Error; err != nil {
			s.logError(opAddComment, "comment_insert_failed", err, zap.Int64("memo_id", memo.ID))
			return apperr.System(err)
		}
		return nil
	})
}

// resolveMentions maps "@name " tokens to users by display name. ids is "#1,#2," or "".
func (s *Service) resolveMentions(db *gorm.DB, content string) (string, string, error) {
	var candidates []string
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimPrefix(strings.TrimSpace(match[1]), "@")
		if name != "" {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", "", nil
	}

	var mentioned []users.User
	if err := db.Where("display_name IN ?", candidates).Find(&mentioned).Error; err != nil {
		s.logError(opAddComment, "mention_lookup_failed", err)
		return "", "", apperr.System(err)
	}
	byName := make(map[string]users.User, len(mentioned))
	for _, user := range mentioned {
		byName[user.DisplayName] = user
	}

	var names, ids []string
	seen := map[int64]bool{}
	for _, candidate := range candidates {
		user, ok := byName[candidate]
		if !ok || seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		names = append(names, user.NameOrUsername())
		ids = append(ids, "#"+strconv.FormatInt(user.ID, 10)+",")
	}
	return strings.Join(names, ","), strings.Join(ids, ""), nil
}

// RemoveComment deletes a comment. Only the memo owner or an admin may do this. The memo's
// comment count is left untouched.
func (s *Service) RemoveComment(ctx context.Context, principal auth.Principal, commentID int64) error {
	db := s.db.WithContext(ctx)
	var comment Comment
	err := db.Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Fail("comment does not exist")
	}
	if err != nil {
		s.logError(opRemoveComment, "comment_select_failed", err, zap.Int64("comment_id", commentID))
		return apperr.System(err)
	}
	memo, err := s.findMemo(db, opRemoveComment, comment.MemoID)
	if err != nil {
		return err
	}
	if memo == nil {
		return apperr.Fail("memo does not exist")
	}
	if !canManage(principal, memo.UserID) {
		return apperr.Fail("only comments on your own memos can be removed")
	}
	if err := db.Where("id = ?", commentID).Delete(&Comment{}).Error; err != nil {
		s.logError(opRemoveComment, "comment_delete_failed", err, zap.Int64("comment_id", commentID))
		return apperr.System(err)
	}
	return nil
}

// QueryComments pages a memo's comments. Viewers other than the memo owner and admins see
// account comments and approved anonymous ones only.
func (s *Service) QueryComments(ctx context.Context, principal *auth.Principal, query CommentQuery) (CommentPage, error) {
	page, size := clampPage(query.Page, query.Size)
	db := s.db.WithContext(ctx)

	var filter Filter
	filter.Where(Equals{Column: "memo_id", Value: query.MemoID})

	seesPending := false
	if principal != nil {
		if principal.IsAdmin() {
			seesPending = true
		} else {
			memo, err := s.findMemo(db, opQueryComments, query.MemoID)
			if err != nil {
				return CommentPage{}, err
			}
			seesPending = memo != nil && memo.UserID == principal.UserID
		}
	}
	if !seesPending {
		filter.Where(AnyOf{
			Compare{Column: "user_id", Operator: ">", Value: 0},
			AllOf{Compare{Column: "user_id", Operator: "<", Value: 0}, Equals{Column: "approved", Value: 1}},
		})
	}

	var total int64
	if err := filter.Apply(db.Model(&Comment{})).Count(&total).Error; err != nil {
		s.logError(opQueryComments, "count_failed", err, zap.Int64("memo_id", query.MemoID))
		return CommentPage{}, apperr.System(err)
	}

	comments := []Comment{}
	if err := filter.Apply(db.Model(&Comment{})).
		Order("created ASC").
		Order("id ASC").
		Offset(int((page - 1) * size)).
		Limit(int(size)).
		Find(&comments).Error; err != nil {
		s.logError(opQueryComments, "query_failed", err, zap.Int64("memo_id", query.MemoID))
		return CommentPage{}, apperr.System(err)
	}

	return CommentPage{Total: total, TotalPage: totalPages(total, size), List: comments}, nil
}

// ApproveComment approves one pending anonymous comment.
func (s *Service) ApproveComment(ctx context.Context, principal auth.Principal, commentID int64) error {
	db := s.db.WithContext(ctx)
	var comment Comment
	err := db.Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(opApproveComment, "comment_select_failed", err, zap.Int64("comment_id", commentID))
		return apperr.System(err)
	}
	if err := s.requireMemoManager(db, principal, comment.MemoID); err != nil {
		return err
	}
	return s.approve(db, Equals{Column: "id", Value: commentID})
}

// ApproveMemoComments approves every pending anonymous comment on a memo.
func (s *Service) ApproveMemoComments(ctx context.Context, principal auth.Principal, memoID int64) error {
	db := s.db.WithContext(ctx)
	if err := s.requireMemoManager(db, principal, memoID); err != nil {
		return err
	}
	return s.approve(db, Equals{Column: "memo_id", Value: memoID})
}

func (s *Service) requireMemoManager(db *gorm.DB, principal auth.Principal, memoID int64) error {
	if principal.IsAdmin() {
		return nil
	}
	memo, err := s.findMemo(db, opApproveComment, memoID)
	if err != nil {
		return err
	}
	if memo == nil || memo.UserID != principal.UserID {
		return apperr.Fail("only comments on your own memos can be approved")
	}
	return nil
}

func (s *Service) approve(db *gorm.DB, target Predicate) error {
	var filter Filter
	filter.Where(target)
	filter.Where(Compare{Column: "user_id", Operator: "<", Value: 0})
	if err := filter.Apply(db.Model(&Comment{})).
		Updates(map[string]interface{}{"approved": 1, "updated": s.now()}).Error; err != nil {
		s.logError(opApproveComment, "update_failed", err)
		return apperr.System(err)
	}
	return nil
}
