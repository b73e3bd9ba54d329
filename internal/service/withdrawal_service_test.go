package service

import (
	"testing"

	"tixmarket/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNetPayoutAmount(t *testing.T) {
	// seller/organizer 提现不扣费，全额打款
	net := NetPayoutAmount(model.EntityTypeSeller, decimal.NewFromInt(1000), 0.03)
	assert.True(t, net.Equal(decimal.NewFromInt(1000)))

	net = NetPayoutAmount(model.EntityTypeOrganizer, decimal.NewFromInt(1000), 0.06)
	assert.True(t, net.Equal(decimal.NewFromInt(1000)))

	// event 提现时收 6% 平台费：1000 -> 940
	net = NetPayoutAmount(model.EntityTypeEvent, decimal.NewFromInt(1000), 0.06)
	assert.True(t, net.Equal(decimal.NewFromInt(940)), "net=%s", net)
}

func TestRefundAmount(t *testing.T) {
	// 普通主体：扣多少退多少
	wd := &model.WithdrawalRequest{
		EntityType:  model.EntityTypeSeller,
		Amount:      decimal.NewFromInt(500),
		GrossAmount: decimal.NewFromInt(500),
	}
	assert.True(t, RefundAmount(wd, 0.03).Equal(decimal.NewFromInt(500)))

	// event 主体：创建时扣的是税前总额 1000，冲回也必须是 1000，
	// 否则 60 的手续费会永远留在真空里
	wd = &model.WithdrawalRequest{
		EntityType:  model.EntityTypeEvent,
		Amount:      decimal.NewFromInt(940),
		GrossAmount: decimal.NewFromInt(1000),
	}
	refund := RefundAmount(wd, 0.06)
	assert.True(t, refund.Equal(decimal.NewFromInt(1000)), "refund=%s", refund)
}

func TestRefundAmountNonRoundGross(t *testing.T) {
	// 非整金额：100.25 扣款，净额 94.23，净额反推只能得 100.24 ——
	// 冲回必须用单上留存的税前金额，一分都不能少
	gross := decimal.RequireFromString("100.25")
	net := NetPayoutAmount(model.EntityTypeEvent, gross, 0.06)
	assert.True(t, net.Equal(decimal.RequireFromString("94.23")), "net=%s", net)

	wd := &model.WithdrawalRequest{
		EntityType:  model.EntityTypeEvent,
		Amount:      net,
		GrossAmount: gross,
	}
	refund := RefundAmount(wd, 0.06)
	assert.True(t, refund.Equal(gross), "refund=%s, debited=%s", refund, gross)
}

func TestRefundAmountLegacyRowWithoutGross(t *testing.T) {
	// 老数据没有税前金额，按当前费率从净额反推
	wd := &model.WithdrawalRequest{
		EntityType: model.EntityTypeEvent,
		Amount:     decimal.NewFromInt(940),
	}
	refund := RefundAmount(wd, 0.06)
	assert.True(t, refund.Equal(decimal.NewFromInt(1000)), "refund=%s", refund)
}

func TestEventWithdrawalRoundTrip(t *testing.T) {
	// 扣减额 -> 净额 -> 回冲额，整条链路金额守恒
	gross := decimal.NewFromInt(2500)
	net := NetPayoutAmount(model.EntityTypeEvent, gross, 0.06)

	wd := &model.WithdrawalRequest{
		EntityType:  model.EntityTypeEvent,
		Amount:      net,
		GrossAmount: gross,
	}
	assert.True(t, RefundAmount(wd, 0.06).Equal(gross))
}
