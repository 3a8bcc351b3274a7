package models

// Tag 标签模型。名称统一小写去空格，全局唯一。
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:50;not null" json:"name"`

	// 关联
	TestCases []TestCase `gorm:"many2many:test_case_tags" json:"-"`
}

// TableName 指定表名
func (Tag) TableName() string {
	return "tags"
}
