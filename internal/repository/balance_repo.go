package repository

import (
	"context"
	"errors"

	"tixmarket/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEntityNotFound   = errors.New("余额主体不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

// BalanceRepository 余额读写
//
// balance 是 sellers / organizers / events 各自表上的一列，
// 这里按 entity_type 路由到对应表。所有扣减带 balance >= ? 守卫，
// 配合行锁保证余额永不为负。
type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

var balanceTables = map[string]string{
	model.EntityTypeSeller:    "sellers",
	model.EntityTypeOrganizer: "organizers",
	model.EntityTypeEvent:     "events",
}

type balanceRow struct {
	ID      int64
	Balance decimal.Decimal
}

func tableFor(entityType string) (string, error) {
	table, ok := balanceTables[entityType]
	if !ok {
		return "", ErrEntityNotFound
	}
	return table, nil
}

// GetForUpdate 行锁读取余额，所有余额变更前必须先走这里
func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, entityType string, entityID int64) (decimal.Decimal, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return decimal.Zero, err
	}

	var row balanceRow
	err = tx.WithContext(ctx).
		Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "balance").
		Where("id = ?", entityID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrEntityNotFound
		}
		return decimal.Zero, err
	}
	return row.Balance, nil
}

// Get 普通读取余额（展示用，不加锁）
func (r *BalanceRepository) Get(ctx context.Context, entityType string, entityID int64) (decimal.Decimal, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return decimal.Zero, err
	}

	var row balanceRow
	err = r.db.WithContext(ctx).
		Table(table).
		Select("id", "balance").
		Where("id = ?", entityID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrEntityNotFound
		}
		return decimal.Zero, err
	}
	return row.Balance, nil
}

func (r *BalanceRepository) Credit(ctx context.Context, tx *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	result := tx.WithContext(ctx).
		Table(table).
		Where("id = ?", entityID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// Debit 扣减余额，SQL 层再守卫一次 balance >= amount
func (r *BalanceRepository) Debit(ctx context.Context, tx *gorm.DB, entityType string, entityID int64, amount decimal.Decimal) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	result := tx.WithContext(ctx).
		Table(table).
		Where("id = ? AND balance >= ?", entityID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Table(table).Where("id = ?", entityID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrEntityNotFound
		}
		return ErrBalanceNotEnough
	}
	return nil
}

// ============================================================
// 买家可退余额（buyers.refund_balance）
// ============================================================

func (r *BalanceRepository) GetBuyerRefundForUpdate(ctx context.Context, tx *gorm.DB, buyerID int64) (decimal.Decimal, error) {
	var buyer model.Buyer
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", buyerID).
		First(&buyer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrEntityNotFound
		}
		return decimal.Zero, err
	}
	return buyer.RefundBalance, nil
}

func (r *BalanceRepository) GetBuyerRefund(ctx context.Context, buyerID int64) (decimal.Decimal, error) {
	var buyer model.Buyer
	err := r.db.WithContext(ctx).Where("id = ?", buyerID).First(&buyer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrEntityNotFound
		}
		return decimal.Zero, err
	}
	return buyer.RefundBalance, nil
}

func (r *BalanceRepository) CreditBuyerRefund(ctx context.Context, tx *gorm.DB, buyerID int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Buyer{}).
		Where("id = ?", buyerID).
		Update("refund_balance", gorm.Expr("refund_balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (r *BalanceRepository) DebitBuyerRefund(ctx context.Context, tx *gorm.DB, buyerID int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Buyer{}).
		Where("id = ? AND refund_balance >= ?", buyerID, amount).
		Update("refund_balance", gorm.Expr("refund_balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&model.Buyer{}).Where("id = ?", buyerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrEntityNotFound
		}
		return ErrBalanceNotEnough
	}
	return nil
}
