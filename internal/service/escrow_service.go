package service

import (
	"context"
	"errors"
	"fmt"

	"tixmarket/internal/config"
	"tixmarket/internal/model"
	"tixmarket/internal/repository"
	"tixmarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 托管资金结算
// ============================================================================
//
// 买家付款后资金逻辑上托管在平台（不入任何余额），直到买家确认收货。
// ReleaseFunds 只会从 DELIVERY_COMPLETE -> COMPLETED 这一条流转路径进入，
// 幂等性由订单自身的状态守卫保证（终态订单到不了这里）。
//
// 加锁顺序：调用方已持有订单行锁，这里再锁余额行（订单在前、余额在后），
// 提现引擎只锁余额行，两条路径不会互相死锁。
//
// ============================================================================

var ErrFeesAlreadySet = errors.New("费用字段已写入，不允许重算")

// ComputeFees 平台费与净结算额
// 费用四舍五入到分，净额 = 总额 - 费用，保证两者相加恒等于总额
func ComputeFees(total decimal.Decimal, feeRate float64) (fee, net decimal.Decimal) {
	fee = total.Mul(decimal.NewFromFloat(feeRate)).Round(2)
	net = total.Sub(fee)
	return fee, net
}

// GrossFromNet 从净额反推税前总额：net / (1 - feeRate)
// 只用于没有留存税前金额的历史提现单：反推会因四舍五入与当初的
// 扣款差有一分上下的出入，新数据一律以单上的 GrossAmount 为准
func GrossFromNet(net decimal.Decimal, feeRate float64) decimal.Decimal {
	oneMinusRate := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(feeRate))
	return net.Div(oneMinusRate).Round(2)
}

type EscrowService struct {
	cfg             *config.Config
	balanceRepo     *repository.BalanceRepository
	transactionRepo *repository.TransactionRepository
}

func NewEscrowService(db *gorm.DB, cfg *config.Config) *EscrowService {
	return &EscrowService{
		cfg:             cfg,
		balanceRepo:     repository.NewBalanceRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// ReleaseFunds 结算订单资金：计算平台费，净额入账收款方余额
//
// 必须在持有订单行锁的事务内调用；订单的费用字段由调用方随状态一起落库
// （写一次后不可变，这里先做写入守卫）。
func (s *EscrowService) ReleaseFunds(ctx context.Context, tx *gorm.DB, order *model.Order) (fee, net decimal.Decimal, err error) {
	if order.PlatformFeeAmount != nil || order.SellerPayoutAmount != nil {
		return decimal.Zero, decimal.Zero, ErrFeesAlreadySet
	}

	feeRate := s.cfg.Business.FeeRate(order.SellerType)
	fee, net = ComputeFees(order.TotalAmount, feeRate)

	balanceBefore, err := s.balanceRepo.GetForUpdate(ctx, tx, order.SellerType, order.SellerID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("锁定余额失败: %w", err)
	}

	if err = s.balanceRepo.Credit(ctx, tx, order.SellerType, order.SellerID, net); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("结算入账失败: %w", err)
	}

	transaction := &model.BalanceTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		EntityType:    order.SellerType,
		EntityID:      order.SellerID,
		RefNo:         order.OrderNo,
		Amount:        net,
		Type:          model.TransactionTypeEscrowRelease,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore.Add(net),
		Remark:        fmt.Sprintf("订单结算-%s-费率%.2f%%", order.OrderNo, feeRate*100),
	}
	if err = s.transactionRepo.Create(ctx, tx, transaction); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("记录流水失败: %w", err)
	}

	return fee, net, nil
}
