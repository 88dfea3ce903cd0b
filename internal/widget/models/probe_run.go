package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProbeRun 记录一次探针运行结果，Report 保存完整 JSON 报告
type ProbeRun struct {
	ID        string         `gorm:"size:36;primarykey" json:"id"`
	Dialect   string         `gorm:"size:16;not null;index" json:"dialect"`
	Passed    bool           `gorm:"not null" json:"passed"`
	Report    datatypes.JSON `json:"report"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (ProbeRun) TableName() string {
	return "probe_runs"
}
