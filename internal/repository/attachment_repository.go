package repository

import (
	"errors"

	"testcase-management-service/internal/models"

	"gorm.io/gorm"
)

// AttachmentRepository 附件数据访问接口
type AttachmentRepository interface {
	Create(a *models.Attachment) error
	Delete(a *models.Attachment) error
	FindByID(id uint) (*models.Attachment, error)
	FindByCaseID(testCaseID uint) ([]models.Attachment, error)
}

// attachmentRepo 实现
type attachmentRepo struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建Repository实例
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepo{db: db}
}

func (r *attachmentRepo) Create(a *models.Attachment) error {
	return r.db.Create(a).Error
}

func (r *attachmentRepo) Delete(a *models.Attachment) error {
	return r.db.Delete(a).Error
}

func (r *attachmentRepo) FindByID(id uint) (*models.Attachment, error) {
	var a models.Attachment
	err := r.db.First(&a, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *attachmentRepo) FindByCaseID(testCaseID uint) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := r.db.Where("test_case_id = ?", testCaseID).Find(&attachments).Error
	return attachments, err
}
