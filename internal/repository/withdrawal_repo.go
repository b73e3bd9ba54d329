package repository

import (
	"context"
	"errors"
	"time"

	"tixmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWithdrawalNotFound = errors.New("提现申请不存在")
	ErrWithdrawalTerminal = errors.New("提现申请已处于终态")
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, wd *model.WithdrawalRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(wd).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	var wd model.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&wd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &wd, nil
}

// GetByIDForUpdate 行锁读取，渠道回调与管理员操作的幂等判断都在锁内做
func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.WithdrawalRequest, error) {
	var wd model.WithdrawalRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &wd, nil
}

// GetByReferenceForUpdate 渠道回调按我方幂等引用定位
func (r *WithdrawalRepository) GetByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*model.WithdrawalRequest, error) {
	var wd model.WithdrawalRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_reference = ?", reference).
		First(&wd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &wd, nil
}

func (r *WithdrawalRepository) Updates(ctx context.Context, tx *gorm.DB, id int64, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (r *WithdrawalRepository) ListByEntity(ctx context.Context, entityType string, entityID int64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	var list []*model.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
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

// GetNeedsCompensation 补偿事务失败的单子，后台任务兜底重试
func (r *WithdrawalRepository) GetNeedsCompensation(ctx context.Context, limit int) ([]*model.WithdrawalRequest, error) {
	var list []*model.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("needs_compensation = ?", true).
		Limit(limit).
		Find(&list).Error
	return list, err
}

// GetStaleProcessing 长时间停留在 processing 的单子，需要主动向渠道查单
func (r *WithdrawalRepository) GetStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*model.WithdrawalRequest, error) {
	var list []*model.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND needs_compensation = ? AND updated_at < ?",
			model.WithdrawalStatusProcessing, false, before).
		Limit(limit).
		Find(&list).Error
	return list, err
}
