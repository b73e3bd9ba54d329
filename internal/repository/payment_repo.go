package repository

import (
	"context"
	"errors"

	"tixmarket/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

// GetByProviderReference 按渠道主标识（checkout_id/collection_id）查找
func (r *PaymentRepository) GetByProviderReference(ctx context.Context, ref string) (*model.Payment, error) {
	return r.getBy(ctx, "provider_reference = ?", ref)
}

func (r *PaymentRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*model.Payment, error) {
	return r.getBy(ctx, "invoice_id = ?", invoiceID)
}

func (r *PaymentRepository) GetByAPIRef(ctx context.Context, apiRef string) (*model.Payment, error) {
	return r.getBy(ctx, "api_ref = ?", apiRef)
}

// GetByOrderNo 支持在事务内读取（与订单行更新同事务时保证读己之写）
func (r *PaymentRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Payment, error) {
	if tx == nil {
		tx = r.db
	}
	var payment model.Payment
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// getBy 查不到返回 (nil, nil)：匹配链需要继续尝试下一个策略，不是错误
func (r *PaymentRepository) getBy(ctx context.Context, query string, arg interface{}) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where(query, arg).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID int64, status string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Update("status", status).Error
}
