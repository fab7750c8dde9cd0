package memos

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
)

func TestRelationLikeLifecycle(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.admin, SaveRequest{Content: "likeable"})

	like := RelationRequest{MemoID: id, Type: FavTypeLike, OperateType: OperateAdd}
	unlike := RelationRequest{MemoID: id, Type: FavTypeLike, OperateType: OperateRemove}

	if err := harness.service.Relation(ctx, harness.member, like); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if err := harness.service.Relation(ctx, harness.member, like); !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("expected duplicate like failure, got %v", err)
	}
	if count := harness.memo(t, id).LikeCount; count != 1 {
		t.Fatalf("expected like_count 1, got %d", count)
	}

	if err := harness.service.Relation(ctx, harness.member, unlike); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	if err := harness.service.Relation(ctx, harness.member, unlike); err != nil {
		t.Fatalf("repeated unlike must be a no-op, got %v", err)
	}
	if count := harness.memo(t, id).LikeCount; count != 0 {
		t.Fatalf("expected like_count 0, got %d", count)
	}
}

func TestRelationValidation(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	id := harness.create(t, harness.admin, SaveRequest{Content: "likeable"})

	testCases := []struct {
		name    string
		request RelationRequest
		kind    apperr.Kind
	}{
		{name: "unknown-type", request: RelationRequest{MemoID: id, Type: "STAR", OperateType: OperateAdd}, kind: apperr.KindParam},
		{name: "unknown-operation", request: RelationRequest{MemoID: id, OperateType: "TOGGLE"}, kind: apperr.KindParam},
		{name: "missing-memo", request: RelationRequest{MemoID: 999, OperateType: OperateAdd}, kind: apperr.KindBusiness},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if err := harness.service.Relation(ctx, harness.member, testCase.request); !apperr.Is(err, testCase.kind) {
				t.Fatalf("expected kind %d, got %v", testCase.kind, err)
			}
		})
	}

	harness.settings.values[settings.KeyOpenLike] = "false"
	err := harness.service.Relation(ctx, harness.member, RelationRequest{MemoID: id, OperateType: OperateAdd})
	if !apperr.Is(err, apperr.KindBusiness) {
		t.Fatalf("expected closed likes failure, got %v", err)
	}
	if count := harness.memo(t, id).LikeCount; count != 0 {
		t.Fatalf("closed likes must not count, got %d", count)
	}
}

func TestLikedListingAndFlag(t *testing.T) {
	harness := newTestHarness(t)
	ctx := context.Background()
	liked := harness.create(t, harness.admin, SaveRequest{Content: "liked"})
	harness.create(t, harness.admin, SaveRequest{Content: "ignored"})

	if err := harness.service.Relation(ctx, harness.member, RelationRequest{MemoID: liked, OperateType: OperateAdd}); err != nil {
		t.Fatalf("like failed: %v", err)
	}

	result, err := harness.service.List(ctx, &harness.member, ListRequest{Liked: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Total != 1 || len(result.Items) != 1 || result.Items[0].ID != liked {
		t.Fatalf("unexpected liked listing %#v", result)
	}
	if result.Items[0].Liked != 1 || result.Items[0].LikeCount != 1 {
		t.Fatalf("expected liked flag and count, got %#v", result.Items[0])
	}

	anonymous, err := harness.service.List(ctx, nil, ListRequest{Liked: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if anonymous.Total != 2 {
		t.Fatalf("anonymous viewers must ignore the liked filter, got %d", anonymous.Total)
	}
	for _, item := range anonymous.Items {
		if item.Liked != 0 {
			t.Fatalf("anonymous viewers never see liked flags")
		}
	}
}
