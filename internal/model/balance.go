package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 余额持有方
// ============================================================================
//
// Balance 是各自表上的一列（可提现资金），不是独立账户表。
// 不变式：balance >= 0 永远成立，所有变更必须先对所属行加 FOR UPDATE 行锁。
//
// 加锁顺序约定：订单行在前，余额行在后（结算路径），
// 提现路径只锁余额行，因此两条路径之间不会形成死锁环。
//
// ============================================================================

// 余额主体类型
const (
	EntityTypeSeller    = "seller"
	EntityTypeOrganizer = "organizer"
	EntityTypeEvent     = "event"
)

type Seller struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string          `gorm:"type:varchar(128);not null" json:"name"`
	Phone     string          `gorm:"type:varchar(32)" json:"phone"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Seller) TableName() string {
	return "sellers"
}

type Organizer struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string          `gorm:"type:varchar(128);not null" json:"name"`
	Phone     string          `gorm:"type:varchar(32)" json:"phone"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Organizer) TableName() string {
	return "organizers"
}

// Event 活动（门票销售的收款主体，归属某个主办方）
type Event struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrganizerID int64           `gorm:"index;not null" json:"organizer_id"`
	Name        string          `gorm:"type:varchar(256);not null" json:"name"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

// Buyer 买家（RefundBalance 为可退余额，来自订单取消等场景）
type Buyer struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(128);not null" json:"name"`
	Phone         string          `gorm:"type:varchar(32)" json:"phone"`
	RefundBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"refund_balance"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Buyer) TableName() string {
	return "buyers"
}

// ============================================================================
// 资金流水
// ============================================================================

const (
	TransactionTypeEscrowRelease  = "ESCROW_RELEASE"  // 订单完成，托管资金结算入账
	TransactionTypeWithdraw       = "WITHDRAW"        // 提现出账
	TransactionTypeWithdrawRefund = "WITHDRAW_REFUND" // 提现失败补偿回冲
	TransactionTypeBuyerRefund    = "BUYER_REFUND"    // 买家退款出账
	TransactionTypeCancelCredit   = "CANCEL_CREDIT"   // 订单取消，买家可退余额入账
)

// BalanceTransaction 余额流水表
// 只追加，不修改，不删除；记录交易前后余额，是对账的核心依据
type BalanceTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	EntityType    string          `gorm:"type:varchar(20);index;not null" json:"entity_type"` // seller|organizer|event|buyer
	EntityID      int64           `gorm:"index;not null" json:"entity_id"`
	RefNo         string          `gorm:"type:varchar(64);index;not null" json:"ref_no"` // 关联的订单号/提现单号/退款单号
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`     // 正数入账，负数出账
	Type          string          `gorm:"type:varchar(32);not null" json:"type"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transaction"
}
