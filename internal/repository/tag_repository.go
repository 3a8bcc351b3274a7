package repository

import (
	"errors"
	"strings"

	"testcase-management-service/internal/models"

	"gorm.io/gorm"
)

// TagRepository 标签数据访问接口
type TagRepository interface {
	// Resolve 把逗号分隔的标签字符串解析为去重后的 Tag 实体集合，
	// 不存在的标签在 tx 内创建。传同一事务可保证不会产生重复行。
	Resolve(tx *gorm.DB, tagString string) ([]models.Tag, error)
	FindByName(name string) (*models.Tag, error)
	FindAll() ([]models.Tag, error)
}

// tagRepo 实现
type tagRepo struct {
	db *gorm.DB
}

// NewTagRepository 创建Repository实例
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepo{db: db}
}

// NormalizeTagNames 拆分并规范化标签字符串：去空格、转小写、去重，
// 保留首次出现的顺序。
func NormalizeTagNames(tagString string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, token := range strings.Split(tagString, ",") {
		name := strings.ToLower(strings.TrimSpace(token))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func (r *tagRepo) Resolve(tx *gorm.DB, tagString string) ([]models.Tag, error) {
	if tx == nil {
		tx = r.db
	}

	names := NormalizeTagNames(tagString)
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		var tag models.Tag
		err := tx.Where("name = ?", name).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tag = models.Tag{Name: name}
			err = tx.Create(&tag).Error
		}
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (r *tagRepo) FindByName(name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.Where("name = ?", strings.ToLower(strings.TrimSpace(name))).First(&tag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepo) FindAll() ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.Order("name").Find(&tags).Error
	return tags, err
}
