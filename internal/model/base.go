package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 审计字段，所有业务表都带 created_*/updated_*
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy *string   `gorm:"type:uuid"                          json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy *string   `gorm:"type:uuid"                          json:"updated_by,omitempty"`
}

// StampCreate 记录创建人，同时作为首个修改人
func (b *BaseModel) StampCreate(actorID string) {
	created, updated := actorID, actorID
	b.CreatedBy = &created
	b.UpdatedBy = &updated
}

// StampUpdate 记录最后修改人
func (b *BaseModel) StampUpdate(actorID string) {
	b.UpdatedBy = &actorID
}

// SoftDeleteModel 软删除表额外记录删除人
type SoftDeleteModel struct {
	BaseModel
	DeletedAt gorm.DeletedAt `gorm:"index"    json:"deleted_at,omitempty"`
	DeletedBy *string        `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

// VersionedModel 带乐观锁版本号；仓储层按 version 条件更新并在成功后自增
type VersionedModel struct {
	SoftDeleteModel
	Version int `gorm:"not null;default:1" json:"version"`
}
