package service

import (
	"context"
	"testing"

	"tixmarket/internal/model"
	"tixmarket/internal/repository"
	"tixmarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ============================================================
// 提现扣款/补偿：金额守恒
// ============================================================
//
// 扣款和补偿走两个独立事务，中间隔着外部打款。这里盯死一条账规：
// 不管走到哪一步失败，补偿之后主体余额必须一分不差地回到起点。

func newWithdrawalServiceForTest() (*WithdrawalService, *fakeBalanceStore, *fakeWithdrawalStore, *fakeTransactionStore, *fakeOutboxStore) {
	idgen.Init(1)
	balances := newFakeBalanceStore()
	withdrawals := &fakeWithdrawalStore{}
	txns := &fakeTransactionStore{}
	outbox := &fakeOutboxStore{}
	svc := &WithdrawalService{
		db:             fakeDB{},
		cfg:            testConfig(),
		withdrawalRepo: withdrawals,
		balanceRepo:    balances,
		txnRepo:        txns,
		outboxRepo:     outbox,
	}
	return svc, balances, withdrawals, txns, outbox
}

func buildWithdrawal(svc *WithdrawalService, req *CreateWithdrawalRequest, reference string) *model.WithdrawalRequest {
	feeRate := svc.cfg.Business.FeeRate(req.EntityType)
	return &model.WithdrawalRequest{
		WithdrawalNo:      idgen.GenerateWithdrawalNo(),
		EntityID:          req.EntityID,
		EntityType:        req.EntityType,
		Amount:            NetPayoutAmount(req.EntityType, req.Amount, feeRate),
		GrossAmount:       req.Amount,
		PayoutNumber:      req.PayoutNumber,
		PayoutName:        req.PayoutName,
		Status:            model.WithdrawalStatusProcessing,
		Provider:          req.Provider,
		ProviderReference: reference,
	}
}

// 不整的税前金额（100.25 @ 6% 费率，净额四舍五入后反推不回原值），
// 扣款 -> 补偿一圈后余额必须精确复原
func TestWithdrawalDebitCompensateRoundTrip(t *testing.T) {
	svc, balances, _, txns, _ := newWithdrawalServiceForTest()
	balances.set(model.EntityTypeEvent, 5, decimal.RequireFromString("500.00"))

	req := &CreateWithdrawalRequest{
		EntityType:   model.EntityTypeEvent,
		EntityID:     5,
		Amount:       decimal.RequireFromString("100.25"),
		PayoutNumber: "254700000001",
		PayoutName:   "Nairobi Jazz Fest",
		Provider:     "sandbox",
	}
	wd := buildWithdrawal(svc, req, "ref-roundtrip-1")

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.createInTx(context.Background(), tx, req, wd)
	})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("399.75").Equal(balances.get(model.EntityTypeEvent, 5)),
		"扣款必须是税前总额")
	assert.True(t, decimal.RequireFromString("94.23").Equal(wd.Amount), "单上记净额")
	debits := txns.byType(model.TransactionTypeWithdraw)
	require.Len(t, debits, 1)
	assert.True(t, req.Amount.Neg().Equal(debits[0].Amount))

	require.NoError(t, svc.CompensateByID(context.Background(), wd.ID, "渠道拒绝", model.ActorTypeSystem))

	assert.True(t, decimal.RequireFromString("500.00").Equal(balances.get(model.EntityTypeEvent, 5)),
		"补偿后余额必须精确回到起点")
	assert.Equal(t, model.WithdrawalStatusFailed, wd.Status)
	refunds := txns.byType(model.TransactionTypeWithdrawRefund)
	require.Len(t, refunds, 1)
	assert.True(t, req.Amount.Equal(refunds[0].Amount))
}

// 补偿重复触发（回调和后台任务都可能打进来），第二次必须是空操作
func TestCompensateByIDIsIdempotent(t *testing.T) {
	svc, balances, _, txns, _ := newWithdrawalServiceForTest()
	balances.set(model.EntityTypeSeller, 9, decimal.RequireFromString("300.00"))

	req := &CreateWithdrawalRequest{
		EntityType:   model.EntityTypeSeller,
		EntityID:     9,
		Amount:       decimal.RequireFromString("120.00"),
		PayoutNumber: "254700000002",
		PayoutName:   "Wanjiku Crafts",
		Provider:     "sandbox",
	}
	wd := buildWithdrawal(svc, req, "ref-idem-1")
	require.NoError(t, svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.createInTx(context.Background(), tx, req, wd)
	}))

	require.NoError(t, svc.CompensateByID(context.Background(), wd.ID, "打款超时", model.ActorTypeSystem))
	require.NoError(t, svc.CompensateByID(context.Background(), wd.ID, "打款超时", model.ActorTypeSystem))

	assert.True(t, decimal.RequireFromString("300.00").Equal(balances.get(model.EntityTypeSeller, 9)),
		"重复补偿不得二次入账")
	assert.Len(t, txns.byType(model.TransactionTypeWithdrawRefund), 1)
}

// 余额不够直接拒绝，什么都不许动
func TestCreateInTxInsufficientBalance(t *testing.T) {
	svc, balances, withdrawals, txns, outbox := newWithdrawalServiceForTest()
	balances.set(model.EntityTypeSeller, 3, decimal.RequireFromString("50.00"))

	req := &CreateWithdrawalRequest{
		EntityType:   model.EntityTypeSeller,
		EntityID:     3,
		Amount:       decimal.RequireFromString("100.25"),
		PayoutNumber: "254700000003",
		PayoutName:   "Mombasa Spices",
		Provider:     "sandbox",
	}
	wd := buildWithdrawal(svc, req, "ref-short-1")

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.createInTx(context.Background(), tx, req, wd)
	})
	require.ErrorIs(t, err, repository.ErrBalanceNotEnough)

	assert.True(t, decimal.RequireFromString("50.00").Equal(balances.get(model.EntityTypeSeller, 3)))
	assert.Empty(t, withdrawals.rows)
	assert.Empty(t, txns.rows)
	assert.Empty(t, outbox.messages)
}

// 渠道回传打款失败，回调路径也要走补偿并保持守恒
func TestApplyStatusByReferenceFailureCompensates(t *testing.T) {
	svc, balances, _, txns, _ := newWithdrawalServiceForTest()
	balances.set(model.EntityTypeEvent, 5, decimal.RequireFromString("500.00"))

	req := &CreateWithdrawalRequest{
		EntityType:   model.EntityTypeEvent,
		EntityID:     5,
		Amount:       decimal.RequireFromString("100.25"),
		PayoutNumber: "254700000001",
		PayoutName:   "Nairobi Jazz Fest",
		Provider:     "sandbox",
	}
	wd := buildWithdrawal(svc, req, "ref-callback-1")
	require.NoError(t, svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.createInTx(context.Background(), tx, req, wd)
	}))

	result, err := svc.applyStatusByReference(context.Background(), "ref-callback-1", "FAILED", model.ActorTypeProvider)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, model.WithdrawalStatusFailed, result.Status)
	assert.True(t, decimal.RequireFromString("500.00").Equal(balances.get(model.EntityTypeEvent, 5)))
	assert.Len(t, txns.byType(model.TransactionTypeWithdrawRefund), 1)

	// 同一引用的回调重放：终态守卫直接应答已处理
	replay, err := svc.applyStatusByReference(context.Background(), "ref-callback-1", "FAILED", model.ActorTypeProvider)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)
	assert.True(t, decimal.RequireFromString("500.00").Equal(balances.get(model.EntityTypeEvent, 5)))
	assert.Len(t, txns.byType(model.TransactionTypeWithdrawRefund), 1)
}
