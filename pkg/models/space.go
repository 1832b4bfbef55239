package models

import "time"

// SpaceKind 空间类型：静态网页或单文件代码
type SpaceKind string

const (
	SpaceKindWeb  SpaceKind = "web"
	SpaceKindCode SpaceKind = "code"
)

// CodeSpec 代码空间的语言与版本
type CodeSpec struct {
	Language string `json:"language" db:"language"`
	Version  string `json:"version" db:"language_version"`
}

// Space is a user-owned web bundle or code file published under /s/<slug>
type Space struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Slug             string    `json:"slug" db:"slug"`
	OwnerID          string    `json:"owner_id" db:"owner_id"`
	Kind             SpaceKind `json:"kind" db:"kind"`
	Code             *CodeSpec `json:"code,omitempty"`
	HTMLContent      string    `json:"html_content" db:"html_content"`
	LanguageContent  string    `json:"language_content" db:"language_content"`
	IsPublic         bool      `json:"is_public" db:"is_public"`
	ViewCount        int64     `json:"view_count" db:"view_count"`
	AnalyticsEnabled bool      `json:"analytics_enabled" db:"analytics_enabled"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// IsCode 是否为代码空间
func (s *Space) IsCode() bool {
	return s.Kind == SpaceKindCode && s.Code != nil
}

// Language 代码空间的语言，网页空间返回空串
func (s *Space) Language() string {
	if s.Code == nil {
		return ""
	}
	return s.Code.Language
}

// Clone 深拷贝，避免调用方共享 Code 指针
func (s *Space) Clone() *Space {
	c := *s
	if s.Code != nil {
		code := *s.Code
		c.Code = &code
	}
	return &c
}

// CreateSpaceRequest 创建网页空间
type CreateSpaceRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateCodeSpaceRequest 创建代码空间
type CreateCodeSpaceRequest struct {
	Name     string `json:"name" validate:"required"`
	Language string `json:"language" validate:"required"`
}

// RenameSpaceRequest 重命名
type RenameSpaceRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateSpaceRequest 内容更新；content 与 language_content 等价
type UpdateSpaceRequest struct {
	HTML             *string `json:"html"`
	Content          *string `json:"content"`
	LanguageContent  *string `json:"language_content"`
	Version          *string `json:"version"`
	IsPublic         *bool   `json:"is_public"`
	AnalyticsEnabled *bool   `json:"analytics_enabled"`
}

// RunRequest 运行代码；code 为空时运行已保存内容
type RunRequest struct {
	Code     *string  `json:"code"`
	Language string   `json:"language"`
	Stdin    string   `json:"stdin"`
	Args     []string `json:"args"`
	Version  string   `json:"version"`
}
