package memos

import "time"

// Memo visibility levels.
const (
	VisibilityPublic  = "PUBLIC"
	VisibilityProtect = "PROTECT"
	VisibilityPrivate = "PRIVATE"
)

// StatusNormal marks a live memo.
const StatusNormal = "NORMAL"

// FavTypeLike is the only relation type currently recorded.
const FavTypeLike = "LIKE"

// AnonymousUserID marks comments written without an account.
const AnonymousUserID int64 = -1

// Storage backends a resource may live on.
const StorageLocal = "LOCAL"

// Memo is a single post. Counters are maintained by the service only.
type Memo struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64     `gorm:"column:user_id;not null;index"`
	Content       string    `gorm:"column:content;type:text"`
	Tags          string    `gorm:"column:tags;size:1024"`
	Visibility    string    `gorm:"column:visibility;size:16;not null;default:PUBLIC"`
	Status        string    `gorm:"column:status;size:16;not null;default:NORMAL"`
	Priority      int64     `gorm:"column:priority;not null;default:0"`
	CommentCount  int64     `gorm:"column:comment_count;not null;default:0"`
	LikeCount     int64     `gorm:"column:like_count;not null;default:0"`
	ViewCount     int64     `gorm:"column:view_count;not null;default:0"`
	EnableComment int       `gorm:"column:enable_comment;not null;default:0"`
	Source        string    `gorm:"column:source;size:64"`
	Created       time.Time `gorm:"column:created;not null;index"`
	Updated       time.Time `gorm:"column:updated;not null"`
}

// TableName exposes the table backing memos.
func (Memo) TableName() string {
	return "memos"
}

// TagSet returns the memo's tags as a set.
func (m Memo) TagSet() TagSet {
	return DecodeTags(m.Tags)
}

// Tag is a user-scoped hashtag with the number of that user's memos carrying it.
type Tag struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:idx_tags_user_name"`
	Name      string    `gorm:"column:name;size:190;not null;uniqueIndex:idx_tags_user_name"`
	MemoCount int64     `gorm:"column:memo_count;not null;default:0"`
	Created   time.Time `gorm:"column:created;not null"`
	Updated   time.Time `gorm:"column:updated;not null"`
}

// TableName exposes the table backing tags.
func (Tag) TableName() string {
	return "tags"
}

// Comment is a reply on a memo. Negative UserID marks an anonymous author.
type Comment struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MemoID          int64     `gorm:"column:memo_id;not null;index" json:"memoId"`
	Content         string    `gorm:"column:content;type:text;not null" json:"content"`
	UserID          int64     `gorm:"column:user_id;not null;index" json:"userId"`
	UserName        string    `gorm:"column:user_name;size:190;not null" json:"userName"`
	Mentioned       string    `gorm:"column:mentioned;size:1024" json:"mentioned"`
	MentionedUserID string    `gorm:"column:mentioned_user_id;size:1024" json:"mentionedUserId"`
	Email           string    `gorm:"column:email;size:320" json:"email,omitempty"`
	Link            string    `gorm:"column:link;size:512" json:"link,omitempty"`
	Approved        int       `gorm:"column:approved;not null;default:0" json:"approved"`
	Created         time.Time `gorm:"column:created;not null" json:"created"`
	Updated         time.Time `gorm:"column:updated;not null" json:"updated"`
}

// TableName exposes the table backing comments.
func (Comment) TableName() string {
	return "comments"
}

// Resource is an uploaded file. MemoID 0 marks an upload not yet attached to a memo.
type Resource struct {
	PublicID     string    `gorm:"column:public_id;primaryKey;size:64"`
	MemoID       int64     `gorm:"column:memo_id;not null;default:0;index"`
	UserID       int64     `gorm:"column:user_id;not null;index"`
	FileType     string    `gorm:"column:file_type;size:128"`
	FileName     string    `gorm:"column:file_name;size:255"`
	FileHash     string    `gorm:"column:file_hash;size:128"`
	Size         int64     `gorm:"column:size;not null;default:0"`
	InternalPath string    `gorm:"column:internal_path;size:512"`
	ExternalLink string    `gorm:"column:external_link;size:1024"`
	StorageType  string    `gorm:"column:storage_type;size:32"`
	Suffix       string    `gorm:"column:suffix;size:32"`
	Created      time.Time `gorm:"column:created;not null"`
	Updated      time.Time `gorm:"column:updated;not null"`
}

// TableName exposes the table backing resources.
func (Resource) TableName() string {
	return "resources"
}

// URL resolves the public address of the resource.
func (r Resource) URL(domain string) string {
	if r.StorageType == StorageLocal {
		return domain + r.ExternalLink
	}
	return r.ExternalLink
}

// UserMemoRelation records that a user liked a memo.
type UserMemoRelation struct {
	ID      int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MemoID  int64     `gorm:"column:memo_id;not null;index"`
	UserID  int64     `gorm:"column:user_id;not null;index"`
	FavType string    `gorm:"column:fav_type;size:16;not null"`
	Created time.Time `gorm:"column:created;not null"`
	Updated time.Time `gorm:"column:updated;not null"`
}

// TableName exposes the table backing like relations.
func (UserMemoRelation) TableName() string {
	return "user_memo_relations"
}

// Models lists every table owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&Memo{}, &Tag{}, &Comment{}, &Resource{}, &UserMemoRelation{}}
}
