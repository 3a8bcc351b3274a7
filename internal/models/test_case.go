package models

import (
	"time"
)

// 测试案例状态
const (
	StatusNotRun     = "not run"
	StatusInProgress = "in progress"
	StatusPassed     = "passed"
	StatusFailed     = "failed"
)

// 分类回退值：产品无规则或全部规则未命中时使用
const (
	FallbackMainCategory = "other"
	FallbackSubCategory  = "unclassified"
)

// DefaultProductType 未指定产品时的默认产品类型
const DefaultProductType = "unclassified"

// TestCase 测试案例模型
type TestCase struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ProductType    string `gorm:"size:50;not null;default:'unclassified';index" json:"productType"`
	Category       string `gorm:"size:100;not null" json:"category"` // 原始工作表名称
	MainCategory   string `gorm:"size:50;index" json:"mainCategory,omitempty"`
	SubCategory    string `gorm:"size:50;index" json:"subCategory,omitempty"`
	CaseID         string `gorm:"uniqueIndex;size:50;not null" json:"caseId"` // 业务主键
	TestItem       string `gorm:"size:200;not null" json:"testItem"`
	TestPurpose    string `gorm:"type:text" json:"testPurpose,omitempty"`
	Preconditions  string `gorm:"type:text" json:"preconditions,omitempty"`
	TestSteps      string `gorm:"type:text" json:"testSteps,omitempty"`
	ExpectedResult string `gorm:"type:text" json:"expectedResult,omitempty"`
	ActualResult   string `gorm:"type:text" json:"actualResult,omitempty"`
	Status         string `gorm:"size:20;not null;default:'not run';index" json:"status"`
	Notes          string `gorm:"type:text" json:"notes,omitempty"`
	Reference      string `gorm:"size:200" json:"reference,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// 关联
	Tags        []Tag        `gorm:"many2many:test_case_tags" json:"tags,omitempty"`
	Attachments []Attachment `gorm:"foreignKey:TestCaseID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// TableName 指定表名
func (TestCase) TableName() string {
	return "test_cases"
}

// TagNames 返回标签名称列表
func (tc *TestCase) TagNames() []string {
	names := make([]string, 0, len(tc.Tags))
	for _, t := range tc.Tags {
		names = append(names, t.Name)
	}
	return names
}
