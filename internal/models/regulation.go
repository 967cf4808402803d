package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RegulationStatus 法规入库状态
type RegulationStatus string

const (
	// RegStatusIndexing 正在入库
	RegStatusIndexing RegulationStatus = "indexing"
	// RegStatusReady 入库完成，可检索
	RegStatusReady RegulationStatus = "ready"
	// RegStatusFailed 入库失败
	RegStatusFailed RegulationStatus = "failed"
)

// RegulationInfo 法规集合元数据
// 每个reg_id对应一条记录，页面内容本身存放在PageStore中
type RegulationInfo struct {
	RegID      string           `gorm:"primaryKey"`         // 集合ID，主键
	Title      string           `gorm:"not null"`           // 法规标题
	SourceFile string           `gorm:"size:255"`           // 来源文件名
	TotalPages int              `gorm:"not null;default:0"` // 总页数
	Status     RegulationStatus `gorm:"not null;index"`     // 入库状态
	IndexedAt  *time.Time       `gorm:"index"`              // 入库完成时间
	CreatedAt  time.Time        `gorm:"not null"`           // 创建时间
	UpdatedAt  time.Time        `gorm:"not null"`           // 更新时间
	Error      string           `gorm:"type:text"`          // 失败原因
	Metadata   datatypes.JSON   `gorm:"type:json"`          // 附加元数据
}

// BeforeCreate GORM钩子，创建前补齐时间字段
func (r *RegulationInfo) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM钩子，更新前刷新更新时间
func (r *RegulationInfo) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (RegulationInfo) TableName() string {
	return "regulations"
}
