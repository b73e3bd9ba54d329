package repository

import (
	"context"
	"errors"

	"tixmarket/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 余额流水，只追加
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, transaction *model.BalanceTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(transaction).Error
}

// GetByRefNoAndType 查某张单据是否已产生过某类流水，补偿幂等判断用
func (r *TransactionRepository) GetByRefNoAndType(ctx context.Context, refNo, txType string) (*model.BalanceTransaction, error) {
	var transaction model.BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("ref_no = ? AND type = ?", refNo, txType).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

func (r *TransactionRepository) ListByEntity(ctx context.Context, entityType string, entityID int64, page, pageSize int) ([]*model.BalanceTransaction, int64, error) {
	var list []*model.BalanceTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceTransaction{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}
