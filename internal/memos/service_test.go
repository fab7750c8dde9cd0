package memos

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubSettings struct {
	values map[string]string
}

func (s *stubSettings) Get(_ context.Context, key string) (string, error) {
	return s.values[key], nil
}

func (s *stubSettings) Bool(_ context.Context, key string) (bool, error) {
	return s.values[key] == "true", nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) MemoCreated(memoID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, memoID)
}

func (n *recordingNotifier) recorded() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.ids...)
}

// stepClock advances one second per reading so rows get distinct timestamps.
type stepClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type testHarness struct {
	service  *Service
	db       *gorm.DB
	settings *stubSettings
	notifier *recordingNotifier
	clock    *stepClock
	admin    auth.Principal
	member   auth.Principal
}

func newTestHarness(t *testing.T) testHarness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:memos_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := append([]interface{}{&users.User{}}, Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &stepClock{current: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)}
	registered := clock.current.AddDate(0, 0, -10)
	owner := users.User{Username: "owner", PasswordHash: "x", DisplayName: "Owner", Role: auth.RoleAdmin, Created: registered, Updated: registered}
	member := users.User{Username: "bob", PasswordHash: "x", DisplayName: "Bob", Created: registered, Updated: registered}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("failed to create owner: %v", err)
	}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("failed to create member: %v", err)
	}

	store := &stubSettings{values: map[string]string{
		settings.KeyOpenComment:      "true",
		settings.KeyOpenLike:         "true",
		settings.KeyAnonymousComment: "true",
		settings.KeyCommentApproved:  "true",
		settings.KeyDomain:           "https://memo.example",
	}}
	notifier := &recordingNotifier{}
	service, err := NewService(ServiceConfig{
		Database: db,
		Settings: store,
		Notifier: notifier,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return testHarness{
		service:  service,
		db:       db,
		settings: store,
		notifier: notifier,
		clock:    clock,
		admin:    auth.Principal{UserID: owner.ID, Role: auth.RoleAdmin, Device: auth.DeviceWeb},
		member:   auth.Principal{UserID: member.ID, Device: auth.DeviceWeb},
	}
}

func (h testHarness) create(t *testing.T, principal auth.Principal, request SaveRequest) int64 {
	t.Helper()
	id, err := h.service.Create(context.Background(), principal, request)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return id
}

func (h testHarness) memo(t *testing.T, id int64) Memo {
	t.Helper()
	var memo Memo
	if err := h.db.Where("id = ?", id).Take(&memo).Error; err != nil {
		t.Fatalf("failed to load memo %d: %v", id, err)
	}
	return memo
}

func (h testHarness) tagCount(t *testing.T, userID int64, name string) int64 {
	t.Helper()
	var tags []Tag
	if err := h.db.Where("user_id = ? AND name = ?", userID, name).Find(&tags).Error; err != nil {
		t.Fatalf("failed to load tag %s: %v", name, err)
	}
	if len(tags) == 0 {
		return -1
	}
	return tags[0].MemoCount
}

// assertTagCounts checks every tag count against the memos that carry it.
func (h testHarness) assertTagCounts(t *testing.T) {
	t.Helper()
	var tags []Tag
	if err := h.db.Find(&tags).Error; err != nil {
		t.Fatalf("failed to load tags: %v", err)
	}
	var memos []Memo
	if err := h.db.Find(&memos).Error; err != nil {
		t.Fatalf("failed to load memos: %v", err)
	}
	for _, tag := range tags {
		var carriers int64
		for _, memo := range memos {
			if memo.UserID == tag.UserID && memo.TagSet().Contains(tag.Name) {
				carriers++
			}
		}
		if tag.MemoCount != carriers {
			t.Fatalf("tag %s of user %d counts %d, carried by %d memos", tag.Name, tag.UserID, tag.MemoCount, carriers)
		}
	}
}

func enabled() *bool {
	value := true
	return &value
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{Settings: &stubSettings{}}); err == nil {
		t.Fatalf("expected missing database error")
	}
	db, err := gorm.Open(sqlite.Open("file:memos_deps?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if _, err := NewService(ServiceConfig{Database: db}); err == nil {
		t.Fatalf("expected missing settings error")
	}
}
