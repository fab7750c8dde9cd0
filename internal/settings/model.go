package settings

// Setting keys read by the memo, comment, user and webhook services.
const (
	KeyOpenRegister     = "OPEN_REGISTER"
	KeyOpenComment      = "OPEN_COMMENT"
	KeyOpenLike         = "OPEN_LIKE"
	KeyAnonymousComment = "ANONYMOUS_COMMENT"
	KeyCommentApproved  = "COMMENT_APPROVED"
	KeyWebsiteTitle     = "WEBSITE_TITLE"
	KeyDomain           = "DOMAIN"
	KeyWebhookURL       = "WEB_HOOK_URL"
	KeyWebhookToken     = "WEB_HOOK_TOKEN"
	KeyMemoMaxLength    = "MEMO_MAX_LENGTH"
	KeyStorageType      = "STORAGE_TYPE"
	KeyUserModel        = "USER_MODEL"
	KeyCORSDomainList   = "CORS_DOMAIN_LIST"
	KeyIndexWidth       = "INDEX_WIDTH"
	KeyThumbnailSize    = "THUMBNAIL_SIZE"
	KeyCustomCSS        = "CUSTOM_CSS"
	KeyCustomJavascript = "CUSTOM_JAVASCRIPT"
)

// SysConfig is one runtime setting row. Value overrides DefaultValue when non-empty.
type SysConfig struct {
	Key          string `gorm:"column:key;primaryKey;size:128;not null"`
	Value        string `gorm:"column:value;type:text"`
	DefaultValue string `gorm:"column:default_value;type:text"`
}

// TableName exposes the table backing runtime settings.
func (SysConfig) TableName() string {
	return "sys_configs"
}

// Effective resolves the value-or-default read rule.
func (c SysConfig) Effective() string {
	if c.Value != "" {
		return c.Value
	}
	return c.DefaultValue
}

// Item is the key/value pair exchanged with administrators and the front end.
type Item struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Defaults lists every setting seeded into a fresh store.
func Defaults() []SysConfig {
	return []SysConfig{
		{Key: KeyOpenRegister, DefaultValue: "false"},
		{Key: KeyOpenComment, DefaultValue: "false"},
		{Key: KeyOpenLike, DefaultValue: "false"},
		{Key: KeyAnonymousComment, DefaultValue: "false"},
		{Key: KeyCommentApproved, DefaultValue: "true"},
		{Key: KeyWebsiteTitle, DefaultValue: "MBlog"},
		{Key: KeyDomain},
		{Key: KeyWebhookURL},
		{Key: KeyWebhookToken},
		{Key: KeyMemoMaxLength, DefaultValue: "300"},
		{Key: KeyStorageType, DefaultValue: "LOCAL"},
		{Key: KeyUserModel, DefaultValue: "SINGLE"},
		{Key: KeyCORSDomainList},
		{Key: KeyIndexWidth, DefaultValue: "50rem"},
		{Key: KeyThumbnailSize, DefaultValue: "100,100"},
		{Key: KeyCustomCSS},
		{Key: KeyCustomJavascript},
	}
}

var frontKeys = []string{
	KeyOpenRegister,
	KeyWebsiteTitle,
	KeyOpenComment,
	KeyOpenLike,
	KeyMemoMaxLength,
	KeyIndexWidth,
	KeyUserModel,
	KeyCustomCSS,
	KeyCustomJavascript,
	KeyThumbnailSize,
	KeyAnonymousComment,
	KeyCommentApproved,
}
