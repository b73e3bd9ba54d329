package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tixmarket/internal/config"
	"tixmarket/internal/model"
	"tixmarket/internal/repository"
	"tixmarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 买家退款引擎
// ============================================================================
//
// 【和提现引擎的方向刻意相反，不要合并】
//
//   提现：先扣款后打款，失败走补偿回冲（乐观扣减 + 补偿）
//   退款：先人工审核通过，再扣买家退款余额（悲观确认 + 扣减）
//
// 买家退款余额来自取消订单的入账，出账必须等管理员确认，
// 所以申请阶段只做软校验、不动余额；真正的扣减发生在审核通过的事务里。
//
// ============================================================================

type RefundService struct {
	db          *gorm.DB
	cfg         *config.Config
	refundRepo  *repository.RefundRepository
	balanceRepo *repository.BalanceRepository
	txnRepo     *repository.TransactionRepository
	outboxRepo  *repository.OutboxRepository
}

func NewRefundService(db *gorm.DB, cfg *config.Config) *RefundService {
	return &RefundService{
		db:          db,
		cfg:         cfg,
		refundRepo:  repository.NewRefundRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type CreateRefundRequest struct {
	BuyerID int64           `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	Reason  string          `json:"reason" binding:"required"`
}

// CreateRequest 买家提交退款申请
//
// 只做软校验：余额够不够以审核通过那一刻为准，这里的检查只是
// 提前挡掉明显不可能的申请，不加锁、不扣款。
func (s *RefundService) CreateRequest(ctx context.Context, req *CreateRefundRequest) (*model.RefundRequest, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("退款金额必须大于0")
	}
	if req.Reason == "" {
		return nil, errors.New("必须填写退款原因")
	}

	balance, err := s.balanceRepo.GetBuyerRefund(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(balance) {
		return nil, repository.ErrBalanceNotEnough
	}

	refund := &model.RefundRequest{
		RefundNo: idgen.GenerateRefundNo(),
		BuyerID:  req.BuyerID,
		Amount:   req.Amount,
		Status:   model.RefundStatusPending,
		Reason:   req.Reason,
	}
	if err := s.refundRepo.Create(ctx, nil, refund); err != nil {
		return nil, fmt.Errorf("创建退款申请失败: %w", err)
	}

	log.Printf("退款申请已创建: refundNo=%s, buyerID=%d, amount=%s",
		refund.RefundNo, req.BuyerID, req.Amount.String())
	return refund, nil
}

// Resolve 管理员审核退款申请
//
// 通过：锁余额行 -> 复核余额 -> 扣减 -> 流水 -> 标记 completed
// 拒绝：只改状态，不动余额
// 两种结果都要过终态守卫，重复审核明确报冲突。
func (s *RefundService) Resolve(ctx context.Context, adminID int64, refundID int64, approve bool, notes string) (*model.RefundRequest, error) {
	actor := fmt.Sprintf("admin:%d", adminID)
	var resolved *model.RefundRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		refund, err := s.refundRepo.GetByIDForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if model.IsTerminalRefundStatus(refund.Status) {
			return repository.ErrRefundTerminal
		}

		now := time.Now()
		targetStatus := model.RefundStatusRejected

		if approve {
			balanceBefore, err := s.balanceRepo.GetBuyerRefundForUpdate(ctx, tx, refund.BuyerID)
			if err != nil {
				return err
			}
			if refund.Amount.GreaterThan(balanceBefore) {
				return repository.ErrBalanceNotEnough
			}
			if err := s.balanceRepo.DebitBuyerRefund(ctx, tx, refund.BuyerID, refund.Amount); err != nil {
				return err
			}
			if err := s.txnRepo.Create(ctx, tx, &model.BalanceTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				EntityType:    "buyer",
				EntityID:      refund.BuyerID,
				RefNo:         refund.RefundNo,
				Amount:        refund.Amount.Neg(),
				Type:          model.TransactionTypeBuyerRefund,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balanceBefore.Sub(refund.Amount),
				Remark:        fmt.Sprintf("退款出账-%s", refund.RefundNo),
			}); err != nil {
				return err
			}
			targetStatus = model.RefundStatusCompleted
		}

		if err := s.refundRepo.Updates(ctx, tx, refund.ID, map[string]interface{}{
			"status":       targetStatus,
			"processed_at": &now,
			"processed_by": actor,
		}); err != nil {
			return err
		}
		refund.Status = targetStatus
		refund.ProcessedAt = &now
		refund.ProcessedBy = actor
		resolved = refund

		return writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
			model.NotifyEventRefundResolved, refund.RefundNo, map[string]interface{}{
				"refund_no": refund.RefundNo,
				"buyer_id":  refund.BuyerID,
				"amount":    refund.Amount,
				"status":    targetStatus,
				"notes":     notes,
			})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("退款申请已审核: refundID=%d, status=%s, admin=%d", refundID, resolved.Status, adminID)
	return resolved, nil
}

func (s *RefundService) GetByID(ctx context.Context, id int64) (*model.RefundRequest, error) {
	return s.refundRepo.GetByID(ctx, id)
}

func (s *RefundService) ListByBuyerID(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.RefundRequest, int64, error) {
	return s.refundRepo.ListByBuyerID(ctx, buyerID, page, pageSize)
}
