package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 通知事件类型（payload 会原样投递给通知侧信道的消费方）
const (
	NotifyEventOrderPaid           = "order.paid"
	NotifyEventOrderCompleted      = "order.completed"
	NotifyEventOrderCancelled      = "order.cancelled"
	NotifyEventWithdrawalCreated   = "withdrawal.created"
	NotifyEventWithdrawalCompleted = "withdrawal.completed"
	NotifyEventWithdrawalFailed    = "withdrawal.failed"
	NotifyEventRefundResolved      = "refund.resolved"
	NotifyEventCompensationStuck   = "withdrawal.compensation_stuck" // 告警事件，需要人工介入
)

// OutboxMessage 事务性发件箱
// 通知/告警消息与业务变更写在同一个事务里，提交后由后台任务异步投递，
// 投递失败绝不影响业务接口的响应（webhook 必须先答复渠道方）
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
