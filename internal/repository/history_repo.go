package repository

import (
	"context"

	"tixmarket/internal/model"

	"gorm.io/gorm"
)

// HistoryRepository 订单状态历史
// 只有 Create 和 List —— 历史记录不提供任何修改/删除入口
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, tx *gorm.DB, h *model.OrderStatusHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(h).Error
}

func (r *HistoryRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.OrderStatusHistory, error) {
	var list []*model.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}
