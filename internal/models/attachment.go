package models

import "time"

// Attachment 附件模型。StoragePath 带随机前缀，磁盘上全局唯一。
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`      // 显示文件名
	StoragePath string    `gorm:"size:255;not null;uniqueIndex" json:"-"` // 相对附件目录的路径
	UploadedAt  time.Time `gorm:"not null" json:"uploadedAt"`
	TestCaseID  uint      `gorm:"not null;index" json:"testCaseId"`

	// 关联
	TestCase *TestCase `gorm:"foreignKey:TestCaseID" json:"-"`
}

// TableName 指定表名
func (Attachment) TableName() string {
	return "attachments"
}
