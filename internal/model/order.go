package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ============================================================================
// 订单状态机
// ============================================================================
//
// 【订单生命周期】
//
//   PENDING ──支付确认──> {PROCESSING | DELIVERY_PENDING | COLLECTION_PENDING | SERVICE_PENDING}
//       │                        │
//       │                        v
//       │                 DELIVERY_COMPLETE ──买家确认收货──> COMPLETED（触发资金结算）
//       │                        │
//       └──────── CANCELLED <────┘（任意非终态可取消）
//
// DELIVERY_COMPLETE -> COMPLETED 只能由买家确认触发，绝不自动流转，
// 因为这一步会把托管资金结算到卖家余额。
//
// ============================================================================

const (
	OrderStatusPending           = "PENDING"
	OrderStatusProcessing        = "PROCESSING"
	OrderStatusDeliveryPending   = "DELIVERY_PENDING"
	OrderStatusCollectionPending = "COLLECTION_PENDING"
	OrderStatusServicePending    = "SERVICE_PENDING"
	OrderStatusDeliveryComplete  = "DELIVERY_COMPLETE"
	OrderStatusCompleted         = "COMPLETED"
	OrderStatusCancelled         = "CANCELLED"
)

// 支付状态（内部统一口径，渠道原始状态由 provider.Normalize 翻译）
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// 订单类型，决定支付成功后进入哪个履约状态
const (
	OrderTypeProduct    = "product"    // 实物商品，走物流
	OrderTypeCollection = "collection" // 买家自提
	OrderTypeService    = "service"    // 服务类
	OrderTypeTicket     = "ticket"     // 活动门票
)

// 操作者角色
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// 状态历史 created_by_type
const (
	ActorTypeBuyer    = "buyer"
	ActorTypeSeller   = "seller"
	ActorTypeAdmin    = "admin"
	ActorTypeProvider = "provider"
	ActorTypeSystem   = "system"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusPending: {
		OrderStatusProcessing, OrderStatusDeliveryPending,
		OrderStatusCollectionPending, OrderStatusServicePending,
		OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		OrderStatusDeliveryPending, OrderStatusCollectionPending,
		OrderStatusServicePending, OrderStatusDeliveryComplete,
		OrderStatusCancelled,
	},
	OrderStatusDeliveryPending:   {OrderStatusDeliveryComplete, OrderStatusCancelled},
	OrderStatusCollectionPending: {OrderStatusDeliveryComplete, OrderStatusCancelled},
	OrderStatusServicePending:    {OrderStatusDeliveryComplete, OrderStatusCancelled},
	OrderStatusDeliveryComplete:  {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus 终态订单不允许任何后续变更（含费用字段）
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// IsTerminalPaymentStatus 支付终态，webhook 重放的幂等判断依据
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// RoleCanSetStatus 角色准入控制
//
// 卖家可以推进除 COMPLETED 以外的任何状态（COMPLETED 会触发资金结算，
// 只能由买家确认或管理员介入）；买家只能确认收货或取消；管理员不受限。
func RoleCanSetStatus(role, targetStatus string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSeller:
		return targetStatus != OrderStatusCompleted
	case RoleBuyer:
		return targetStatus == OrderStatusCompleted || targetStatus == OrderStatusCancelled
	}
	return false
}

// PostPaymentStatus 支付确认后按订单类型进入的履约状态
func PostPaymentStatus(orderType string) string {
	switch orderType {
	case OrderTypeProduct:
		return OrderStatusDeliveryPending
	case OrderTypeCollection:
		return OrderStatusCollectionPending
	case OrderTypeService:
		return OrderStatusServicePending
	default:
		return OrderStatusProcessing
	}
}

// Order 订单表
//
// 金额字段说明：
//   - TotalAmount: 买家支付总额
//   - PlatformFeeAmount / SellerPayoutAmount: 只在 COMPLETED 流转时写入一次，
//     写入后不可变（对账基准，任何路径都不允许重算）
type Order struct {
	ID                 int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo            string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	BuyerID            int64            `gorm:"index;not null" json:"buyer_id"`
	SellerID           int64            `gorm:"index;not null" json:"seller_id"`
	SellerType         string           `gorm:"type:varchar(20);not null;default:seller" json:"seller_type"` // seller|organizer|event
	OrderType          string           `gorm:"type:varchar(20);not null" json:"order_type"`
	Status             string           `gorm:"type:varchar(32);index;not null" json:"status"`
	PaymentStatus      string           `gorm:"type:varchar(20);index;not null" json:"payment_status"`
	TotalAmount        decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	PlatformFeeAmount  *decimal.Decimal `gorm:"type:decimal(20,2)" json:"platform_fee_amount"`
	SellerPayoutAmount *decimal.Decimal `gorm:"type:decimal(20,2)" json:"seller_payout_amount"`
	Currency           string           `gorm:"type:varchar(8);not null;default:KES" json:"currency"`
	PaymentMethod      string           `gorm:"type:varchar(32)" json:"payment_method"`
	Provider           string           `gorm:"type:varchar(32);index" json:"provider"`
	ProviderReference  string           `gorm:"type:varchar(128);index" json:"provider_reference"`
	Metadata           datatypes.JSON   `json:"metadata"`
	CreatedAt          time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	PaidAt             *time.Time       `json:"paid_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	CancelledAt        *time.Time       `json:"cancelled_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderStatusHistory 订单状态历史表
// 只追加，不修改，不删除 —— 审计与"是否已处理"判断的独立依据
type OrderStatusHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64     `gorm:"index;not null" json:"order_id"`
	Status        string    `gorm:"type:varchar(32);not null" json:"status"`
	Notes         string    `gorm:"type:varchar(512)" json:"notes"`
	CreatedByType string    `gorm:"type:varchar(20);not null" json:"created_by_type"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
