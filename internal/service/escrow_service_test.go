package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeFees(t *testing.T) {
	// 商品订单 3%
	fee, net := ComputeFees(decimal.NewFromInt(1000), 0.03)
	assert.True(t, fee.Equal(decimal.NewFromInt(30)), "fee=%s", fee)
	assert.True(t, net.Equal(decimal.NewFromInt(970)), "net=%s", net)

	// 主办方 6%
	fee, net = ComputeFees(decimal.NewFromInt(500), 0.06)
	assert.True(t, fee.Equal(decimal.NewFromInt(30)))
	assert.True(t, net.Equal(decimal.NewFromInt(470)))
}

func TestComputeFeesRounding(t *testing.T) {
	// 费用四舍五入到分后，费用+净额必须恒等于总额
	total := decimal.RequireFromString("99.99")
	fee, net := ComputeFees(total, 0.03)
	assert.True(t, fee.Add(net).Equal(total), "fee=%s net=%s", fee, net)
	assert.True(t, fee.Equal(decimal.RequireFromString("3.00")), "fee=%s", fee)

	total = decimal.RequireFromString("33.33")
	fee, net = ComputeFees(total, 0.06)
	assert.True(t, fee.Add(net).Equal(total))
}

func TestGrossFromNet(t *testing.T) {
	// 940 / (1 - 0.06) = 1000
	gross := GrossFromNet(decimal.NewFromInt(940), 0.06)
	assert.True(t, gross.Equal(decimal.NewFromInt(1000)), "gross=%s", gross)

	// 净额和总额互为反函数（整额场景）
	_, net := ComputeFees(decimal.NewFromInt(2500), 0.06)
	back := GrossFromNet(net, 0.06)
	assert.True(t, back.Equal(decimal.NewFromInt(2500)), "back=%s", back)
}

func TestComputeFeesZeroRate(t *testing.T) {
	fee, net := ComputeFees(decimal.NewFromInt(100), 0)
	assert.True(t, fee.IsZero())
	assert.True(t, net.Equal(decimal.NewFromInt(100)))
}
