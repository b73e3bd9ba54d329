package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
	WithdrawalStatusRejected   = "rejected"
)

// IsTerminalWithdrawalStatus 提现终态，终态后不允许任何状态或余额变更
func IsTerminalWithdrawalStatus(status string) bool {
	switch status {
	case WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusRejected:
		return true
	}
	return false
}

// WithdrawalRequest 提现申请表
//
// 【关键点】记录只会在余额扣减成功的同一个事务里创建（先扣款后建单），
// Amount 是实际出账金额：event 类型在创建时已扣除平台费，
// GrossAmount 留存扣款时的税前总额，补偿回冲以它为准，否则手续费会丢失。
//
// NeedsCompensation: 补偿事务（回冲余额）本身失败时置位，
// 由后台任务兜底重试，同时打告警 —— 这是真实的资金不一致，不能静默。
type WithdrawalRequest struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	EntityID          int64           `gorm:"index;not null" json:"entity_id"`
	EntityType        string          `gorm:"type:varchar(20);index;not null" json:"entity_type"` // seller|organizer|event
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"gross_amount"` // 扣款时的税前金额，对账用
	PayoutNumber      string          `gorm:"type:varchar(32);not null" json:"payout_number"`
	PayoutName        string          `gorm:"type:varchar(128);not null" json:"payout_name"`
	Status            string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Provider          string          `gorm:"type:varchar(32);not null" json:"provider"`
	ProviderReference string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"provider_reference"` // 内部幂等引用，发起外部打款时携带
	Metadata          datatypes.JSON  `json:"metadata"`
	FailureReason     string          `gorm:"type:varchar(512)" json:"failure_reason"`
	NeedsCompensation bool            `gorm:"index;not null;default:false" json:"needs_compensation"`
	ProcessedAt       *time.Time      `json:"processed_at"`
	ProcessedBy       string          `gorm:"type:varchar(64)" json:"processed_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_request"
}

const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusRejected  = "rejected"
)

func IsTerminalRefundStatus(status string) bool {
	return status == RefundStatusCompleted || status == RefundStatusRejected
}

// RefundRequest 买家退款申请表
//
// 与卖家提现方向相反：创建时不扣款，管理员确认时才在行锁下扣减
// 买家的可退余额（先确认后扣款 vs 提现的先扣款后补偿），两套语义不能合并。
type RefundRequest struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RefundNo    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"refund_no"`
	BuyerID     int64           `gorm:"index;not null" json:"buyer_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status      string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Reason      string          `gorm:"type:varchar(512)" json:"reason"`
	ProcessedAt *time.Time      `json:"processed_at"`
	ProcessedBy string          `gorm:"type:varchar(64)" json:"processed_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RefundRequest) TableName() string {
	return "refund_request"
}
