package repository

import (
	"errors"

	"testcase-management-service/internal/models"

	"gorm.io/gorm"
)

// CaseFilter 列表查询过滤条件
type CaseFilter struct {
	ProductType  string
	MainCategory string
	SubCategory  string
	Search       string
}

// CategoryNode 树形导航用的 (产品, 主分类, 子分类) 组合
type CategoryNode struct {
	ProductType  string
	MainCategory string
	SubCategory  string
}

// TestCaseRepository 测试案例数据访问接口
type TestCaseRepository interface {
	Create(tc *models.TestCase) error
	Save(tc *models.TestCase) error
	Delete(tc *models.TestCase) error
	FindByID(id uint) (*models.TestCase, error)
	FindByIDs(ids []uint) ([]models.TestCase, error)
	FindByCaseID(caseID string) (*models.TestCase, error)
	FindAll() ([]models.TestCase, error)
	List(filter CaseFilter, limit, offset int) ([]models.TestCase, int64, error)
	AllCaseIDs() (map[string]struct{}, error)
	CategoryTree() ([]CategoryNode, error)
}

// testCaseRepo 实现
type testCaseRepo struct {
	db *gorm.DB
}

// NewTestCaseRepository 创建Repository实例
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepo{db: db}
}

func (r *testCaseRepo) Create(tc *models.TestCase) error {
	return r.db.Create(tc).Error
}

func (r *testCaseRepo) Save(tc *models.TestCase) error {
	return r.db.Save(tc).Error
}

// Delete 删除案例及其附件记录。共享的标签行保留，只解除关联。
func (r *testCaseRepo) Delete(tc *models.TestCase) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(tc).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Where("test_case_id = ?", tc.ID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(tc).Error
	})
}

func (r *testCaseRepo) FindByID(id uint) (*models.TestCase, error) {
	var tc models.TestCase
	err := r.db.Preload("Tags").Preload("Attachments").First(&tc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tc, nil
}

func (r *testCaseRepo) FindByIDs(ids []uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.Preload("Tags").Where("id IN ?", ids).Find(&cases).Error
	return cases, err
}

func (r *testCaseRepo) FindByCaseID(caseID string) (*models.TestCase, error) {
	var tc models.TestCase
	err := r.db.Preload("Tags").Where("case_id = ?", caseID).First(&tc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tc, nil
}

func (r *testCaseRepo) FindAll() ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.Order("case_id").Find(&cases).Error
	return cases, err
}

func (r *testCaseRepo) List(filter CaseFilter, limit, offset int) ([]models.TestCase, int64, error) {
	query := r.db.Model(&models.TestCase{})
	if filter.ProductType != "" {
		query = query.Where("product_type = ?", filter.ProductType)
	}
	if filter.MainCategory != "" {
		query = query.Where("main_category = ?", filter.MainCategory)
	}
	if filter.SubCategory != "" {
		query = query.Where("sub_category = ?", filter.SubCategory)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("case_id LIKE ? OR test_item LIKE ? OR test_purpose LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var cases []models.TestCase
	err := query.Preload("Tags").Preload("Attachments").
		Order("case_id").Limit(limit).Offset(offset).Find(&cases).Error
	return cases, total, err
}

// AllCaseIDs 返回当前所有业务主键的快照，供导入去重使用
func (r *testCaseRepo) AllCaseIDs() (map[string]struct{}, error) {
	var ids []string
	if err := r.db.Model(&models.TestCase{}).Pluck("case_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *testCaseRepo) CategoryTree() ([]CategoryNode, error) {
	var nodes []CategoryNode
	err := r.db.Model(&models.TestCase{}).
		Distinct("product_type", "main_category", "sub_category").
		Order("product_type").
		Scan(&nodes).Error
	return nodes, err
}
