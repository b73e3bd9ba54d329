package service

import (
	"context"
	"database/sql"

	"tixmarket/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// 服务层依赖的存储口径
// ============================================================
//
// 服务只依赖这里声明的方法集，gorm 仓储天然满足；
// 测试用内存替身替换，事务内的业务规则（幂等守卫、金额守恒）
// 就能在不落库的情况下验证。tx 参数语义不变：nil 走连接池。

// transactor 事务入口，*gorm.DB 满足
type transactor interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type orderStore interface {
	GetByOrderNoForUpdate(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error)
	Updates(ctx context.Context, tx *gorm.DB, orderID int64, fields map[string]interface{}) error
}

type paymentStore interface {
	GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Payment, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID int64, status string) error
}

type historyStore interface {
	Create(ctx context.Context, tx *gorm.DB, h *model.OrderStatusHistory) error
}

type outboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

type balanceStore interface {
	GetForUpdate(ctx context.Context, tx *gorm.DB, entityType string, entityID int64) (decimal.Decimal, error)
	Credit(ctx context.Context, tx *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error
	Debit(ctx context.Context, tx *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error
}

type withdrawalStore interface {
	Create(ctx context.Context, tx *gorm.DB, wd *model.WithdrawalRequest) error
	GetByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.WithdrawalRequest, error)
	GetByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*model.WithdrawalRequest, error)
	Updates(ctx context.Context, tx *gorm.DB, id int64, fields map[string]interface{}) error
	ListByEntity(ctx context.Context, entityType string, entityID int64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error)
}

type transactionStore interface {
	Create(ctx context.Context, tx *gorm.DB, transaction *model.BalanceTransaction) error
}
