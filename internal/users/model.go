package users

import (
	"strings"
	"time"
)

// DefaultTokenName names the single API token a user may hold.
const DefaultTokenName = "default"

// User is a registered account.
type User struct {
	ID                   int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Username             string     `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordHash         string     `gorm:"column:password_hash;size:255;not null"`
	Email                string     `gorm:"column:email;size:320"`
	DisplayName          string     `gorm:"column:display_name;size:190;index"`
	Bio                  string     `gorm:"column:bio;type:text"`
	Role                 string     `gorm:"column:role;size:32"`
	AvatarURL            string     `gorm:"column:avatar_url;size:512"`
	LastClickedMentioned *time.Time `gorm:"column:last_clicked_mentioned"`
	DefaultVisibility    string     `gorm:"column:default_visibility;size:32"`
	DefaultEnableComment string     `gorm:"column:default_enable_comment;size:8"`
	Created              time.Time  `gorm:"column:created;not null"`
	Updated              time.Time  `gorm:"column:updated;not null"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// NameOrUsername returns the display name, falling back to the username.
func (u User) NameOrUsername() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Username
}

// DevToken is a user's long-lived API credential.
type DevToken struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name   string `gorm:"column:name;size:64;not null"`
	Token  string `gorm:"column:token;size:512;not null;index"`
	UserID int64  `gorm:"column:user_id;not null;index"`
}

// TableName exposes the table backing API tokens.
func (DevToken) TableName() string {
	return "dev_tokens"
}

// Profile is the public view of a user.
type Profile struct {
	ID                   int64     `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email,omitempty"`
	DisplayName          string    `json:"displayName"`
	Bio                  string    `json:"bio,omitempty"`
	Role                 string    `json:"role,omitempty"`
	AvatarURL            string    `json:"avatarUrl,omitempty"`
	DefaultVisibility    string    `json:"defaultVisibility,omitempty"`
	DefaultEnableComment string    `json:"defaultEnableComment,omitempty"`
	Created              time.Time `json:"created"`
	Updated              time.Time `json:"updated"`
}

func toProfile(user User) Profile {
	return Profile{
		ID:                   user.ID,
		Username:             user.Username,
		Email:                user.Email,
		DisplayName:          user.DisplayName,
		Bio:                  user.Bio,
		Role:                 user.Role,
		AvatarURL:            user.AvatarURL,
		DefaultVisibility:    user.DefaultVisibility,
		DefaultEnableComment: user.DefaultEnableComment,
		Created:              user.Created,
		Updated:              user.Updated,
	}
}

// RegisterRequest carries self-registration input.
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Bio         string `json:"bio"`
}

// UpdateRequest carries self-service profile changes. Nil fields are left unchanged.
type UpdateRequest struct {
	DisplayName          *string `json:"displayName"`
	Email                *string `json:"email"`
	Bio                  *string `json:"bio"`
	AvatarURL            *string `json:"avatarUrl"`
	Password             *string `json:"password"`
	DefaultVisibility    *string `json:"defaultVisibility"`
	DefaultEnableComment *string `json:"defaultEnableComment"`
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Token                string `json:"token"`
	Username             string `json:"username"`
	Role                 string `json:"role,omitempty"`
	UserID               int64  `json:"userId"`
	DefaultVisibility    string `json:"defaultVisibility,omitempty"`
	DefaultEnableComment string `json:"defaultEnableComment,omitempty"`
}

// TokenView exposes the caller's API token.
type TokenView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}
