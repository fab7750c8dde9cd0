package memos

import (
	"context"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/auth"
	"go.uber.org/zap"
)

const (
	opStatistics     = "memos.statistics"
	opUserStatistics = "users.statistics"

	statisticsLookback = 50 * 24 * time.Hour
	statisticsLookhead = 24 * time.Hour
	dayLayout          = "2006-01-02"
)

// StatisticsRequest bounds the per-day histogram. Blank or unparsable bounds fall back to
// the last fifty days.
type StatisticsRequest struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// DayCount is the number of memos written on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
}

// MemoStatistics summarizes one author's memos.
type MemoStatistics struct {
	TotalMemos int64      `json:"totalMemos"`
	TotalDays  int64      `json:"totalDays"`
	TotalTags  int64      `json:"totalTags"`
	Items      []DayCount `json:"items"`
}

// UserStatistics summarizes a user's activity across other memos.
type UserStatistics struct {
	Total           int64 `json:"total"`
	Liked           int64 `json:"liked"`
	Mentioned       int64 `json:"mentioned"`
	Commented       int64 `json:"commented"`
	UnreadMentioned int64 `json:"unreadMentioned"`
}

// Statistics reports the viewer's memo totals and a per-day histogram, newest day first.
// Anonymous viewers get the admin's statistics.
func (s *Service) Statistics(ctx context.Context, viewer *auth.Principal, request StatisticsRequest) (MemoStatistics, error) {
	now := s.now()
	begin, ok := parseInstant(request.Begin)
	if !ok {
		begin = now.Add(-statisticsLookback)
	}
	end, ok := parseInstant(request.End)
	if !ok {
		end = now.Add(statisticsLookhead)
	}
	if end.Before(begin) {
		return MemoStatistics{}, apperr.Param("end before begin")
	}

	userID, err := s.ownerOrAdmin(ctx, opStatistics, viewer)
	if err != nil {
		return MemoStatistics{}, err
	}
	db := s.db.WithContext(ctx)
	owner, err := s.findUser(db, opStatistics, userID)
	if err != nil {
		return MemoStatistics{}, err
	}
	if owner == nil {
		return MemoStatistics{}, apperr.Fail("user does not exist")
	}

	result := MemoStatistics{Items: []DayCount{}}
	if err := db.Model(&Memo{}).Where("user_id = ?", userID).Count(&result.TotalMemos).Error; err != nil {
		s.logError(opStatistics, "memo_count_failed", err, zap.Int64("user_id", userID))
		return MemoStatistics{}, apperr.System(err)
	}
	if err := db.Model(&Tag{}).Where("user_id = ?", userID).Count(&result.TotalTags).Error; err != nil {
		s.logError(opStatistics, "tag_count_failed", err, zap.Int64("user_id", userID))
		return MemoStatistics{}, apperr.System(err)
	}
	if !owner.Created.IsZero() {
		result.TotalDays = int64(now.Sub(owner.Created) / (24 * time.Hour))
	}

	var created []time.Time
	if err := db.Model(&Memo{}).
		Where("user_id = ? AND created BETWEEN ? AND ?", userID, begin, end).
		Pluck("created", &created).Error; err != nil {
		s.logError(opStatistics, "histogram_failed", err, zap.Int64("user_id", userID))
		return MemoStatistics{}, apperr.System(err)
	}
	perDay := map[string]int64{}
	for _, instant := range created {
		perDay[instant.UTC().Format(dayLayout)]++
	}
	for day, total := range perDay {
		result.Items = append(result.Items, DayCount{Date: day, Total: total})
	}
	sort.Slice(result.Items, func(i, j int) bool { return result.Items[i].Date > result.Items[j].Date })
	return result, nil
}

// UserStatistics counts the user's memos, likes, commented and mentioned memos, and the
// mentions received since the mention list was last opened.
func (s *Service) UserStatistics(ctx context.Context, userID int64) (UserStatistics, error) {
	db := s.db.WithContext(ctx)
	user, err := s.findUser(db, opUserStatistics, userID)
	if err != nil {
		return UserStatistics{}, err
	}
	if user == nil {
		return UserStatistics{}, apperr.Fail("user does not exist")
	}

	var result UserStatistics
	mention := mentionPatternFor(userID)
	counts := []struct {
		reason string
		target *int64
		run    func(*int64) error
	}{
		{"memo_count_failed", &result.Total, func(out *int64) error {
			return db.Model(&Memo{}).Where("user_id = ?", userID).Count(out).Error
		}},
		{"liked_count_failed", &result.Liked, func(out *int64) error {
			return db.Model(&UserMemoRelation{}).Where("user_id = ? AND fav_type = ?", userID, FavTypeLike).Count(out).Error
		}},
		{"commented_count_failed", &result.Commented, func(out *int64) error {
			return db.Model(&Comment{}).Where("user_id = ?", userID).Distinct("memo_id").Count(out).Error
		}},
		{"mentioned_count_failed", &result.Mentioned, func(out *int64) error {
			return db.Model(&Comment{}).Where("mentioned_user_id LIKE ?", mention).Distinct("memo_id").Count(out).Error
		}},
		{"unread_count_failed", &result.UnreadMentioned, func(out *int64) error {
			since := s.now().AddDate(-100, 0, 0)
			if user.LastClickedMentioned != nil {
				since = *user.LastClickedMentioned
			}
			return db.Model(&Comment{}).Where("mentioned_user_id LIKE ? AND created >= ?", mention, since).Count(out).Error
		}},
	}
	for _, count := range counts {
		if err := count.run(count.target); err != nil {
			s.logError(opUserStatistics, count.reason, err, zap.Int64("user_id", userID))
			return UserStatistics{}, apperr.System(err)
		}
	}
	return result, nil
}
