package models

import (
	"time"

	"gorm.io/datatypes"
)

// 发件箱消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务性发件箱记录
// 投递事务内与业务数据一起写入，由中继进程扫描并发布到RabbitMQ，
// 保证"写库成功则事件必达"
type OutboxMessage struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	EventType    string         `gorm:"column:event_type;type:varchar(128);not null"`
	Exchange     string         `gorm:"column:exchange;type:varchar(128);not null"`
	RoutingKey   string         `gorm:"column:routing_key;type:varchar(128);not null"`
	Payload      datatypes.JSON `gorm:"column:payload;not null"`
	Status       string         `gorm:"column:status;type:varchar(16);not null;default:PENDING;index:idx_outbox_status_created"`
	RetryCount   int            `gorm:"column:retry_count;not null;default:0"`
	ErrorMessage string         `gorm:"column:error_message;type:varchar(1024)"`
	ProcessedAt  *time.Time     `gorm:"column:processed_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_outbox_status_created"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (OutboxMessage) TableName() string {
	return "C_OUTBOX_MESSAGES"
}
