package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// RegulationRepository 法规元数据仓储接口
type RegulationRepository interface {
	// Create 创建法规记录
	Create(info *models.RegulationInfo) error

	// Update 更新法规记录
	Update(info *models.RegulationInfo) error

	// GetByID 按集合ID获取法规信息
	GetByID(regID string) (*models.RegulationInfo, error)

	// List 列出所有法规，支持按状态筛选
	List(status models.RegulationStatus) ([]*models.RegulationInfo, error)

	// MarkReady 将法规标记为入库完成
	MarkReady(regID string, totalPages int) error

	// MarkFailed 将法规标记为入库失败并记录原因
	MarkFailed(regID string, reason string) error

	// Delete 删除法规记录
	Delete(regID string) error
}

// regRepository 基于gorm的法规仓储实现
type regRepository struct {
	db *gorm.DB
}

// NewRegulationRepository 创建法规仓储实例
func NewRegulationRepository(db *gorm.DB) RegulationRepository {
	return &regRepository{db: db}
}

// Create 创建法规记录
func (r *regRepository) Create(info *models.RegulationInfo) error {
	if info.RegID == "" {
		return errors.New("regulation ID cannot be empty")
	}
	return r.db.Create(info).Error
}

// Update 更新法规记录
func (r *regRepository) Update(info *models.RegulationInfo) error {
	if info.RegID == "" {
		return errors.New("regulation ID cannot be empty")
	}
	return r.db.Save(info).Error
}

// GetByID 按集合ID获取法规信息
func (r *regRepository) GetByID(regID string) (*models.RegulationInfo, error) {
	var info models.RegulationInfo
	err := r.db.Where("reg_id = ?", regID).First(&info).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, err
	}
	return &info, nil
}

// List 列出所有法规，status为空时不过滤
func (r *regRepository) List(status models.RegulationStatus) ([]*models.RegulationInfo, error) {
	var infos []*models.RegulationInfo
	query := r.db.Model(&models.RegulationInfo{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if err := query.Order("created_at desc").Find(&infos).Error; err != nil {
		return nil, err
	}
	return infos, nil
}

// MarkReady 将法规标记为入库完成
func (r *regRepository) MarkReady(regID string, totalPages int) error {
	now := time.Now()
	result := r.db.Model(&models.RegulationInfo{}).
		Where("reg_id = ?", regID).
		Updates(map[string]interface{}{
			"status":      models.RegStatusReady,
			"total_pages": totalPages,
			"indexed_at":  &now,
			"updated_at":  now,
			"error":       "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewRegulationNotFoundError(regID)
	}
	return nil
}

// MarkFailed 将法规标记为入库失败并记录原因
func (r *regRepository) MarkFailed(regID string, reason string) error {
	result := r.db.Model(&models.RegulationInfo{}).
		Where("reg_id = ?", regID).
		Updates(map[string]interface{}{
			"status":     models.RegStatusFailed,
			"error":      reason,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewRegulationNotFoundError(regID)
	}
	return nil
}

// Delete 删除法规记录
func (r *regRepository) Delete(regID string) error {
	return r.db.Where("reg_id = ?", regID).Delete(&models.RegulationInfo{}).Error
}
