package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"testcase-management-service/internal/classifier"
	"testcase-management-service/internal/logger"
	"testcase-management-service/internal/models"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/rules"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaseService 测试案例业务接口
type CaseService interface {
	// Case CRUD
	CreateCase(req *CaseRequest) (*models.TestCase, error)
	UpdateCase(id uint, req *CaseRequest) (*models.TestCase, error)
	DeleteCase(id uint) error
	GetCase(id uint) (*models.TestCase, error)
	ListCases(filter repository.CaseFilter, limit, offset int) ([]models.TestCase, int64, error)
	CategoryTree() (TreeData, error)

	// Partial updates
	UpdateStatusResult(id uint, status, actualResult string) (*models.TestCase, error)
	UpdateNotes(id uint, notes string) (*models.TestCase, error)
	RemoveTag(id uint, tagName string) (*models.TestCase, error)
	BulkAddTag(ids []uint, tagName string) (int, error)
	BulkDelete(ids []uint) (int, error)

	// Attachments
	SaveAttachment(caseID uint, filename string, content io.Reader) (*models.Attachment, error)
	DeleteAttachment(id uint) error

	// Rule configuration
	GlobalPrecondition(productType string) string
	UpdateGlobalPrecondition(key, text string) error

	// Batch reclassification against the current ruleset
	ReclassifyAll() (updated, total int, err error)
}

// TreeData 树形导航数据：产品 -> 主分类 -> 子分类列表
type TreeData map[string]map[string][]string

// CaseRequest 新增/编辑测试案例的请求体
type CaseRequest struct {
	ProductType    string `json:"productType"`
	Category       string `json:"category"`
	CaseID         string `json:"caseId" binding:"required"`
	TestItem       string `json:"testItem" binding:"required"`
	TestPurpose    string `json:"testPurpose"`
	Preconditions  string `json:"preconditions"`
	TestSteps      string `json:"testSteps"`
	ExpectedResult string `json:"expectedResult"`
	ActualResult   string `json:"actualResult"`
	Status         string `json:"status"`
	Tags           string `json:"tags"` // 逗号分隔
	Notes          string `json:"notes"`
	Reference      string `json:"reference"`
}

type caseService struct {
	db            *gorm.DB
	caseRepo      repository.TestCaseRepository
	tagRepo       repository.TagRepository
	attachRepo    repository.AttachmentRepository
	ruleStore     *rules.Store
	attachmentDir string
	log           *logger.Logger
}

// NewCaseService creates the case service.
func NewCaseService(
	db *gorm.DB,
	caseRepo repository.TestCaseRepository,
	tagRepo repository.TagRepository,
	attachRepo repository.AttachmentRepository,
	ruleStore *rules.Store,
	attachmentDir string,
	log *logger.Logger,
) CaseService {
	if log == nil {
		log = logger.Nop()
	}
	return &caseService{
		db:            db,
		caseRepo:      caseRepo,
		tagRepo:       tagRepo,
		attachRepo:    attachRepo,
		ruleStore:     ruleStore,
		attachmentDir: attachmentDir,
		log:           log,
	}
}

// ===== Case CRUD =====

func (s *caseService) CreateCase(req *CaseRequest) (*models.TestCase, error) {
	productType := req.ProductType
	if productType == "" {
		productType = models.DefaultProductType
	}
	status := req.Status
	if status == "" {
		status = models.StatusNotRun
	}

	mainCat, subCat := s.classify(req, productType)

	tc := &models.TestCase{
		ProductType:    productType,
		Category:       req.Category,
		MainCategory:   mainCat,
		SubCategory:    subCat,
		CaseID:         req.CaseID,
		TestItem:       req.TestItem,
		TestPurpose:    req.TestPurpose,
		Preconditions:  req.Preconditions,
		TestSteps:      req.TestSteps,
		ExpectedResult: req.ExpectedResult,
		ActualResult:   req.ActualResult,
		Status:         status,
		Notes:          req.Notes,
		Reference:      req.Reference,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		tags, err := s.tagRepo.Resolve(tx, req.Tags)
		if err != nil {
			return err
		}
		tc.Tags = tags
		return tx.Create(tc).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test case: %w", err)
	}
	return tc, nil
}

// UpdateCase 全量替换可分类字段并重新执行分类
func (s *caseService) UpdateCase(id uint, req *CaseRequest) (*models.TestCase, error) {
	tc, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to find test case: %w", err)
	}
	if tc == nil {
		return nil, fmt.Errorf("test case not found: %d", id)
	}

	productType := req.ProductType
	if productType == "" {
		productType = tc.ProductType
	}
	mainCat, subCat := s.classify(req, productType)

	tc.ProductType = productType
	tc.Category = req.Category
	tc.MainCategory = mainCat
	tc.SubCategory = subCat
	tc.CaseID = req.CaseID
	tc.TestItem = req.TestItem
	tc.TestPurpose = req.TestPurpose
	tc.Preconditions = req.Preconditions
	tc.TestSteps = req.TestSteps
	tc.ExpectedResult = req.ExpectedResult
	tc.ActualResult = req.ActualResult
	if req.Status != "" {
		tc.Status = req.Status
	}
	tc.Notes = req.Notes
	tc.Reference = req.Reference

	err = s.db.Transaction(func(tx *gorm.DB) error {
		tags, err := s.tagRepo.Resolve(tx, req.Tags)
		if err != nil {
			return err
		}
		if err := tx.Model(tc).Association("Tags").Replace(tags); err != nil {
			return err
		}
		tc.Tags = tags
		return tx.Save(tc).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update test case: %w", err)
	}
	return tc, nil
}

// DeleteCase 删除案例，级联删除附件记录与磁盘文件。标签行不删除。
func (s *caseService) DeleteCase(id uint) error {
	tc, err := s.caseRepo.FindByID(id)
	if err != nil {
		return fmt.Errorf("failed to find test case: %w", err)
	}
	if tc == nil {
		return fmt.Errorf("test case not found: %d", id)
	}

	attachments := tc.Attachments
	if err := s.caseRepo.Delete(tc); err != nil {
		return fmt.Errorf("failed to delete test case: %w", err)
	}
	for _, a := range attachments {
		s.removeAttachmentFile(&a)
	}
	return nil
}

func (s *caseService) GetCase(id uint) (*models.TestCase, error) {
	return s.caseRepo.FindByID(id)
}

func (s *caseService) ListCases(filter repository.CaseFilter, limit, offset int) ([]models.TestCase, int64, error) {
	return s.caseRepo.List(filter, limit, offset)
}

func (s *caseService) CategoryTree() (TreeData, error) {
	nodes, err := s.caseRepo.CategoryTree()
	if err != nil {
		return nil, fmt.Errorf("failed to build category tree: %w", err)
	}

	tree := TreeData{}
	for _, n := range nodes {
		if n.ProductType == "" {
			continue
		}
		if _, ok := tree[n.ProductType]; !ok {
			tree[n.ProductType] = map[string][]string{}
		}
		if n.MainCategory == "" {
			continue
		}
		subs, ok := tree[n.ProductType][n.MainCategory]
		if !ok {
			tree[n.ProductType][n.MainCategory] = []string{}
			subs = tree[n.ProductType][n.MainCategory]
		}
		if n.SubCategory != "" && !contains(subs, n.SubCategory) {
			tree[n.ProductType][n.MainCategory] = append(subs, n.SubCategory)
		}
	}
	return tree, nil
}

// ===== Partial updates =====

func (s *caseService) UpdateStatusResult(id uint, status, actualResult string) (*models.TestCase, error) {
	tc, err := s.mustFind(id)
	if err != nil {
		return nil, err
	}
	tc.Status = status
	tc.ActualResult = actualResult
	if err := s.caseRepo.Save(tc); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return tc, nil
}

func (s *caseService) UpdateNotes(id uint, notes string) (*models.TestCase, error) {
	tc, err := s.mustFind(id)
	if err != nil {
		return nil, err
	}
	tc.Notes = notes
	if err := s.caseRepo.Save(tc); err != nil {
		return nil, fmt.Errorf("failed to update notes: %w", err)
	}
	return tc, nil
}

func (s *caseService) RemoveTag(id uint, tagName string) (*models.TestCase, error) {
	tc, err := s.mustFind(id)
	if err != nil {
		return nil, err
	}
	tag, err := s.tagRepo.FindByName(tagName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tag: %w", err)
	}
	if tag == nil {
		return tc, nil
	}
	if err := s.db.Model(tc).Association("Tags").Delete(tag); err != nil {
		return nil, fmt.Errorf("failed to remove tag: %w", err)
	}
	return s.caseRepo.FindByID(id)
}

func (s *caseService) BulkAddTag(ids []uint, tagName string) (int, error) {
	if len(ids) == 0 || tagName == "" {
		return 0, nil
	}

	tagged := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		tags, err := s.tagRepo.Resolve(tx, tagName)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		for _, id := range ids {
			var tc models.TestCase
			if err := tx.First(&tc, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			if err := tx.Model(&tc).Association("Tags").Append(&tags[0]); err != nil {
				return err
			}
			tagged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to bulk tag: %w", err)
	}
	return tagged, nil
}

func (s *caseService) BulkDelete(ids []uint) (int, error) {
	deleted := 0
	for _, id := range ids {
		if err := s.DeleteCase(id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// ===== Attachments =====

// SaveAttachment 写入附件文件（随机前缀避免磁盘路径冲突）并登记记录
func (s *caseService) SaveAttachment(caseID uint, filename string, content io.Reader) (*models.Attachment, error) {
	if _, err := s.mustFind(caseID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.attachmentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment dir: %w", err)
	}

	storageName := uuid.NewString() + "_" + filepath.Base(filename)
	dst, err := os.Create(filepath.Join(s.attachmentDir, storageName))
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment file: %w", err)
	}
	if _, err := io.Copy(dst, content); err != nil {
		dst.Close()
		return nil, fmt.Errorf("failed to write attachment file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("failed to write attachment file: %w", err)
	}

	a := &models.Attachment{
		Filename:    filepath.Base(filename),
		StoragePath: storageName,
		UploadedAt:  time.Now().UTC(),
		TestCaseID:  caseID,
	}
	if err := s.attachRepo.Create(a); err != nil {
		return nil, fmt.Errorf("failed to save attachment record: %w", err)
	}
	return a, nil
}

// DeleteAttachment 删除附件记录并尽力删除磁盘文件（文件缺失只记日志）
func (s *caseService) DeleteAttachment(id uint) error {
	a, err := s.attachRepo.FindByID(id)
	if err != nil {
		return fmt.Errorf("failed to find attachment: %w", err)
	}
	if a == nil {
		return fmt.Errorf("attachment not found: %d", id)
	}
	if err := s.attachRepo.Delete(a); err != nil {
		return fmt.Errorf("failed to delete attachment record: %w", err)
	}
	s.removeAttachmentFile(a)
	return nil
}

func (s *caseService) removeAttachmentFile(a *models.Attachment) {
	path := filepath.Join(s.attachmentDir, a.StoragePath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove attachment file", "path", path, "error", err)
	}
}

// ===== Rule configuration =====

func (s *caseService) GlobalPrecondition(productType string) string {
	return s.ruleStore.Load().Precondition(productType)
}

func (s *caseService) UpdateGlobalPrecondition(key, text string) error {
	return s.ruleStore.UpdateGlobalPrecondition(key, text)
}

// ===== Reclassification =====

// ReclassifyAll 按当前规则重算所有案例的分类，只更新有变动的行
func (s *caseService) ReclassifyAll() (int, int, error) {
	ruleSet := s.ruleStore.Load()

	cases, err := s.caseRepo.FindAll()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load cases: %w", err)
	}

	updated := 0
	for i := range cases {
		tc := &cases[i]
		mainCat, subCat := classifier.Classify(classifier.FieldsFromCase(tc), tc.ProductType, ruleSet)
		if tc.MainCategory == mainCat && tc.SubCategory == subCat {
			continue
		}
		tc.MainCategory = mainCat
		tc.SubCategory = subCat
		if err := s.caseRepo.Save(tc); err != nil {
			return updated, len(cases), fmt.Errorf("failed to update case %q: %w", tc.CaseID, err)
		}
		updated++
	}
	return updated, len(cases), nil
}

// ===== helpers =====

func (s *caseService) classify(req *CaseRequest, productType string) (string, string) {
	return classifier.Classify(classifier.Fields{
		TestItem:       req.TestItem,
		TestPurpose:    req.TestPurpose,
		TestSteps:      req.TestSteps,
		ExpectedResult: req.ExpectedResult,
		Category:       req.Category,
	}, productType, s.ruleStore.Load())
}

func (s *caseService) mustFind(id uint) (*models.TestCase, error) {
	tc, err := s.caseRepo.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to find test case: %w", err)
	}
	if tc == nil {
		return nil, fmt.Errorf("test case not found: %d", id)
	}
	return tc, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
