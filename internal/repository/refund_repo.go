package repository

import (
	"context"
	"errors"

	"tixmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefundNotFound = errors.New("退款申请不存在")
	ErrRefundTerminal = errors.New("退款申请已处于终态")
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *gorm.DB, req *model.RefundRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (r *RefundRepository) GetByID(ctx context.Context, id int64) (*model.RefundRequest, error) {
	var req model.RefundRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RefundRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.RefundRequest, error) {
	var req model.RefundRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RefundRepository) Updates(ctx context.Context, tx *gorm.DB, id int64, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.RefundRequest{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRefundNotFound
	}
	return nil
}

func (r *RefundRepository) ListByBuyerID(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.RefundRequest, int64, error) {
	var list []*model.RefundRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RefundRequest{}).Where("buyer_id = ?", buyerID)

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
