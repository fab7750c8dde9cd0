package memos

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
)

func TestAddCommentGates(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	open := harness.create(t, harness.admin, SaveRequest{Content: "open", EnableComment: enabled()})
	closed := harness.create(t, harness.admin, SaveRequest{Content: "closed"})

	testCases := []struct {
		name    string
		request CommentRequest
		kind    apperr.Kind
	}{
		{name: "blank", request: CommentRequest{MemoID: open, Content: "  "}, kind: apperr.KindParam},
		{name: "missing-memo", request: CommentRequest{MemoID: 999, Content: "hi"}, kind: apperr.KindBusiness},
		{name: "memo-disabled", request: CommentRequest{MemoID: closed, Content: "hi"}, kind: apperr.KindBusiness},
		{name: "anonymous-without-name", request: CommentRequest{MemoID: open, Content: "hi"}, kind: apperr.KindParam},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if err := harness.service.AddComment(ctx, nil, testCase.request); !apperr.Is(err, testCase.kind) {
				t.Fatalf("expected kind %d, got %v", testCase.kind, err)
			}
		})
	}

	harness.settings.values[settings.KeyAnonymousComment] = "false"
	err := harness.service.AddComment(ctx, nil, CommentRequest{MemoID: open, Content: "hi", Username: "guest"})
	if !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("expected anonymous gate failure, got %v", err)
	}

	harness.settings.values[settings.KeyOpenComment] = "false"
	err = harness.service.AddComment(ctx, &harness.member, CommentRequest{MemoID: open, Content: "hi"})
	if !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("expected site gate failure, got %v", err)
	}
	if count := harness.memo(t, open).CommentCount; count != 0 {
		t.Fatalf("rejected comments must not count, got %d", count)
	}
}

func TestCommentApprovalVisibility(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.admin, SaveRequest{Content: "discuss", EnableComment: enabled()})

	if err := harness.service.AddComment(ctx, &harness.member, CommentRequest{MemoID: id, Content: "member says"}); err != nil {
		t.Fatalf("member comment failed: %v", err)
	}
	if err := harness.service.AddComment(ctx, nil, CommentRequest{MemoID: id, Content: "guest says", Username: "guest"}); err != nil {
		t.Fatalf("anonymous comment failed: %v", err)
	}
	if count := harness.memo(t, id).CommentCount; count != 2 {
		t.Fatalf("expected comment_count 2, got %d", count)
	}

	page, err := harness.service.QueryComments(ctx, nil, CommentQuery{MemoID: id})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 1 || page.List[0].UserName != "Bob" || page.List[0].Approved != 1 {
		t.Fatalf("anonymous viewers must see only approved comments, got %#v", page)
	}
	page, err = harness.service.QueryComments(ctx, &harness.member, CommentQuery{MemoID: id})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("non-owners must not see pending comments, got %d", page.Total)
	}
	page, err = harness.service.QueryComments(ctx, &harness.admin, CommentQuery{MemoID: id})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 2 || page.List[1].UserID != AnonymousUserID || page.List[1].Approved != 0 {
		t.Fatalf("owner must see pending comments oldest first, got %#v", page)
	}

	view, err := harness.service.Get(ctx, &harness.admin, id, false)
	if err != nil || view == nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.UnApprovedCommentCount != 1 {
		t.Fatalf("expected one pending comment, got %d", view.UnApprovedCommentCount)
	}

	pending := page.List[1].ID
	if err := harness.service.ApproveComment(ctx, harness.member, pending); !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("non-owner approval must fail, got %v", err)
	}
	if err := harness.service.ApproveComment(ctx, harness.admin, pending); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	page, err = harness.service.QueryComments(ctx, nil, CommentQuery{MemoID: id})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("approved comment must become public, got %d", page.Total)
	}
}

func TestApproveMemoCommentsAndAutoApproval(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.member, SaveRequest{Content: "member memo", EnableComment: enabled()})

	for _, name := range []string{"one", "two"} {
		if err := harness.service.AddComment(ctx, nil, CommentRequest{MemoID: id, Content: "hi", Username: name}); err != nil {
			t.Fatalf("comment failed: %v", err)
		}
	}
	if err := harness.service.ApproveMemoComments(ctx, harness.member, id); err != nil {
		t.Fatalf("owner approval failed: %v", err)
	}
	var pending int64
	if err := harness.db.Model(&Comment{}).Where("memo_id = ? AND approved = 0", id).Count(&pending).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected all comments approved, %d pending", pending)
	}

	harness.settings.values[settings.KeyCommentApproved] = "false"
	if err := harness.service.AddComment(ctx, nil, CommentRequest{MemoID: id, Content: "hi", Username: "three"}); err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	page, err := harness.service.QueryComments(ctx, nil, CommentQuery{MemoID: id})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("comments must skip moderation when approval is off, got %d", page.Total)
	}
}

func TestRemoveCommentKeepsCount(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.admin, SaveRequest{Content: "discuss", EnableComment: enabled()})
	if err := harness.service.AddComment(ctx, &harness.member, CommentRequest{MemoID: id, Content: "bye"}); err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	var comment Comment
	if err := harness.db.Where("memo_id = ?", id).Take(&comment).Error; err != nil {
		t.Fatalf("failed to load comment: %v", err)
	}

	if err := harness.service.RemoveComment(ctx, harness.member, comment.ID); !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("commenters cannot remove from another's memo, got %v", err)
	}
	if err := harness.service.RemoveComment(ctx, harness.admin, comment.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := harness.service.RemoveComment(ctx, harness.admin, comment.ID); !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("expected missing comment failure, got %v", err)
	}
	if count := harness.memo(t, id).CommentCount; count != 1 {
		t.Fatalf("removal leaves comment_count untouched, got %d", count)
	}
}

func TestMentionsResolveAndFeedStatistics(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.admin, SaveRequest{Content: "ping", EnableComment: enabled()})

	if err := harness.service.AddComment(ctx, &harness.admin, CommentRequest{MemoID: id, Content: "@Bob have a look @Nobody there @Bob again"}); err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	var comment Comment
	if err := harness.db.Where("memo_id = ?", id).Take(&comment).Error; err != nil {
		t.Fatalf("failed to load comment: %v", err)
	}
	if comment.Mentioned != "Bob" || comment.MentionedUserID != "#2," {
		t.Fatalf("unexpected mentions %q %q", comment.Mentioned, comment.MentionedUserID)
	}

	stats, err := harness.service.UserStatistics(ctx, harness.member.UserID)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.Mentioned != 1 || stats.UnreadMentioned != 1 {
		t.Fatalf("unexpected mention statistics %#v", stats)
	}

	result, err := harness.service.List(ctx, &harness.member, ListRequest{Commented: true, Mentioned: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 1 || result.Items[0].ID != id {
		t.Fatalf("expected the mentioning memo, got %#v", result)
	}

	stats, err = harness.service.UserStatistics(ctx, harness.member.UserID)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.UnreadMentioned != 0 {
		t.Fatalf("opening the mention list must mark mentions read, got %d", stats.UnreadMentioned)
	}
}
