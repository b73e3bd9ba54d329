package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tixmarket/internal/model"
	"tixmarket/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 内存版存储替身：tx 一律忽略（事务语义由 gorm 仓储承担），
// 只还原数据行为，让服务层的业务规则能脱库验证。

type fakeDB struct{}

func (fakeDB) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	return fc(nil)
}

type fakeOrderStore struct {
	orders map[string]*model.Order // orderNo -> 行
}

func newFakeOrderStore(orders ...*model.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[string]*model.Order)}
	for _, o := range orders {
		s.orders[o.OrderNo] = o
	}
	return s
}

func (f *fakeOrderStore) GetByOrderNoForUpdate(_ context.Context, _ *gorm.DB, orderNo string) (*model.Order, error) {
	o, ok := f.orders[orderNo]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) Updates(_ context.Context, _ *gorm.DB, orderID int64, fields map[string]interface{}) error {
	for _, o := range f.orders {
		if o.ID != orderID {
			continue
		}
		if v, ok := fields["status"].(string); ok {
			o.Status = v
		}
		if v, ok := fields["payment_status"].(string); ok {
			o.PaymentStatus = v
		}
		if v, ok := fields["paid_at"].(*time.Time); ok {
			o.PaidAt = v
		}
		if v, ok := fields["cancelled_at"].(*time.Time); ok {
			o.CancelledAt = v
		}
		return nil
	}
	return repository.ErrOrderNotFound
}

type fakePaymentStore struct {
	payments []*model.Payment
}

func (f *fakePaymentStore) GetByOrderNo(_ context.Context, _ *gorm.DB, orderNo string) (*model.Payment, error) {
	for _, p := range f.payments {
		if p.OrderNo == orderNo {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentStore) UpdateStatus(_ context.Context, _ *gorm.DB, paymentID int64, status string) error {
	for _, p := range f.payments {
		if p.ID == paymentID {
			p.Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeHistoryStore struct {
	rows []*model.OrderStatusHistory
}

func (f *fakeHistoryStore) Create(_ context.Context, _ *gorm.DB, h *model.OrderStatusHistory) error {
	f.rows = append(f.rows, h)
	return nil
}

type fakeOutboxStore struct {
	messages []*model.OutboxMessage
}

func (f *fakeOutboxStore) Create(_ context.Context, _ *gorm.DB, msg *model.OutboxMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fakeBalanceStore struct {
	balances map[string]decimal.Decimal
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{balances: make(map[string]decimal.Decimal)}
}

func balanceKey(entityType string, entityID int64) string {
	return fmt.Sprintf("%s:%d", entityType, entityID)
}

func (f *fakeBalanceStore) set(entityType string, entityID int64, amount decimal.Decimal) {
	f.balances[balanceKey(entityType, entityID)] = amount
}

func (f *fakeBalanceStore) get(entityType string, entityID int64) decimal.Decimal {
	return f.balances[balanceKey(entityType, entityID)]
}

func (f *fakeBalanceStore) GetForUpdate(_ context.Context, _ *gorm.DB, entityType string, entityID int64) (decimal.Decimal, error) {
	b, ok := f.balances[balanceKey(entityType, entityID)]
	if !ok {
		return decimal.Zero, repository.ErrEntityNotFound
	}
	return b, nil
}

func (f *fakeBalanceStore) Credit(_ context.Context, _ *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error {
	key := balanceKey(entityType, entityID)
	f.balances[key] = f.balances[key].Add(amount)
	return nil
}

func (f *fakeBalanceStore) Debit(_ context.Context, _ *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error {
	key := balanceKey(entityType, entityID)
	if f.balances[key].LessThan(amount) {
		return repository.ErrBalanceNotEnough
	}
	f.balances[key] = f.balances[key].Sub(amount)
	return nil
}

type fakeWithdrawalStore struct {
	rows   []*model.WithdrawalRequest
	nextID int64
}

func (f *fakeWithdrawalStore) Create(_ context.Context, _ *gorm.DB, wd *model.WithdrawalRequest) error {
	f.nextID++
	wd.ID = f.nextID
	f.rows = append(f.rows, wd)
	return nil
}

func (f *fakeWithdrawalStore) GetByID(_ context.Context, id int64) (*model.WithdrawalRequest, error) {
	for _, wd := range f.rows {
		if wd.ID == id {
			return wd, nil
		}
	}
	return nil, repository.ErrWithdrawalNotFound
}

func (f *fakeWithdrawalStore) GetByIDForUpdate(ctx context.Context, _ *gorm.DB, id int64) (*model.WithdrawalRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeWithdrawalStore) GetByReferenceForUpdate(_ context.Context, _ *gorm.DB, reference string) (*model.WithdrawalRequest, error) {
	for _, wd := range f.rows {
		if wd.ProviderReference == reference {
			return wd, nil
		}
	}
	return nil, repository.ErrWithdrawalNotFound
}

func (f *fakeWithdrawalStore) Updates(_ context.Context, _ *gorm.DB, id int64, fields map[string]interface{}) error {
	for _, wd := range f.rows {
		if wd.ID != id {
			continue
		}
		if v, ok := fields["status"].(string); ok {
			wd.Status = v
		}
		if v, ok := fields["failure_reason"].(string); ok {
			wd.FailureReason = v
		}
		if v, ok := fields["needs_compensation"].(bool); ok {
			wd.NeedsCompensation = v
		}
		if v, ok := fields["processed_at"].(*time.Time); ok {
			wd.ProcessedAt = v
		}
		if v, ok := fields["processed_by"].(string); ok {
			wd.ProcessedBy = v
		}
		return nil
	}
	return repository.ErrWithdrawalNotFound
}

func (f *fakeWithdrawalStore) ListByEntity(_ context.Context, entityType string, entityID int64, _, _ int) ([]*model.WithdrawalRequest, int64, error) {
	var out []*model.WithdrawalRequest
	for _, wd := range f.rows {
		if wd.EntityType == entityType && wd.EntityID == entityID {
			out = append(out, wd)
		}
	}
	return out, int64(len(out)), nil
}

type fakeTransactionStore struct {
	rows []*model.BalanceTransaction
}

func (f *fakeTransactionStore) Create(_ context.Context, _ *gorm.DB, transaction *model.BalanceTransaction) error {
	f.rows = append(f.rows, transaction)
	return nil
}

// 按类型筛流水，断言用
func (f *fakeTransactionStore) byType(txType string) []*model.BalanceTransaction {
	var out []*model.BalanceTransaction
	for _, row := range f.rows {
		if row.Type == txType {
			out = append(out, row)
		}
	}
	return out
}
