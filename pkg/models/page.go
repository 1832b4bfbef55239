package models

import "time"

// Page is a named file inside a web space (or an auxiliary file of a code space)
type Page struct {
	ID        string    `json:"id" db:"id"`
	SpaceID   string    `json:"space_id" db:"space_id"`
	Filename  string    `json:"filename" db:"filename"`
	Content   string    `json:"content" db:"content"`
	FileType  string    `json:"file_type" db:"file_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PageInfo 列表视图，不含内容
type PageInfo struct {
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageInput 单个文件写入
type PageInput struct {
	Filename string `json:"filename" validate:"required,max=100"`
	Content  string `json:"content"`
	FileType string `json:"file_type" validate:"max=20"`
}

// BulkPagesRequest 批量替换
type BulkPagesRequest struct {
	Files []PageInput `json:"files" validate:"required,min=1,max=100,dive"`
}
