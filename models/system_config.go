package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConfigType 配置类型枚举
type ConfigType string

const (
	// ConfigTypeRemarkRules 备注规则表，configValue 为规则列表
	ConfigTypeRemarkRules ConfigType = "remark_rules"
)

// RemarkRulesConfigKey 备注规则表的配置键
const RemarkRulesConfigKey = "default"

// SystemConfig 系统配置模型 (MongoDB文档结构)
type SystemConfig struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ConfigType  ConfigType         `bson:"configType" json:"configType" binding:"required"`
	ConfigKey   string             `bson:"configKey" json:"configKey" binding:"required"`
	ConfigValue interface{}        `bson:"configValue" json:"configValue" binding:"required"` // 使用interface{}存储任意类型值
	Description string             `bson:"description" json:"description"`
	IsEnabled   bool               `bson:"isEnabled" json:"isEnabled"`

	// 更新信息
	UpdaterID   string    `bson:"updaterId,omitempty" json:"updaterId,omitempty"`
	UpdaterName string    `bson:"updaterName,omitempty" json:"updaterName,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// UpdateRemarkRulesRequest 替换备注规则表
type UpdateRemarkRulesRequest struct {
	Rules       []RemarkRule `json:"rules" binding:"required"`
	Description string       `json:"description,omitempty"`
}

// Operator 修改配置的操作人
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
