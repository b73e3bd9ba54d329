package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	// 主干路径
	assert.True(t, CanTransitionTo(OrderStatusPending, OrderStatusDeliveryPending))
	assert.True(t, CanTransitionTo(OrderStatusDeliveryPending, OrderStatusDeliveryComplete))
	assert.True(t, CanTransitionTo(OrderStatusDeliveryComplete, OrderStatusCompleted))

	// 任意非终态可取消
	for _, status := range []string{
		OrderStatusPending, OrderStatusProcessing, OrderStatusDeliveryPending,
		OrderStatusCollectionPending, OrderStatusServicePending, OrderStatusDeliveryComplete,
	} {
		assert.True(t, CanTransitionTo(status, OrderStatusCancelled), "from %s", status)
	}

	// 不允许跳级或回退
	assert.False(t, CanTransitionTo(OrderStatusPending, OrderStatusCompleted))
	assert.False(t, CanTransitionTo(OrderStatusDeliveryPending, OrderStatusPending))
	assert.False(t, CanTransitionTo(OrderStatusDeliveryComplete, OrderStatusProcessing))

	// 终态无出边
	assert.False(t, CanTransitionTo(OrderStatusCompleted, OrderStatusCancelled))
	assert.False(t, CanTransitionTo(OrderStatusCancelled, OrderStatusPending))
}

func TestIsTerminalOrderStatus(t *testing.T) {
	assert.True(t, IsTerminalOrderStatus(OrderStatusCompleted))
	assert.True(t, IsTerminalOrderStatus(OrderStatusCancelled))
	assert.False(t, IsTerminalOrderStatus(OrderStatusPending))
	assert.False(t, IsTerminalOrderStatus(OrderStatusDeliveryComplete))
}

func TestIsTerminalPaymentStatus(t *testing.T) {
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusCompleted))
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusFailed))
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusCancelled))
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusRefunded))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusPending))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusProcessing))
}

func TestRoleCanSetStatus(t *testing.T) {
	// 卖家不能触发资金结算
	assert.False(t, RoleCanSetStatus(RoleSeller, OrderStatusCompleted))
	assert.True(t, RoleCanSetStatus(RoleSeller, OrderStatusDeliveryComplete))
	assert.True(t, RoleCanSetStatus(RoleSeller, OrderStatusCancelled))

	// 买家只能确认收货或取消
	assert.True(t, RoleCanSetStatus(RoleBuyer, OrderStatusCompleted))
	assert.True(t, RoleCanSetStatus(RoleBuyer, OrderStatusCancelled))
	assert.False(t, RoleCanSetStatus(RoleBuyer, OrderStatusDeliveryComplete))
	assert.False(t, RoleCanSetStatus(RoleBuyer, OrderStatusProcessing))

	// 管理员不受限
	assert.True(t, RoleCanSetStatus(RoleAdmin, OrderStatusCompleted))
	assert.True(t, RoleCanSetStatus(RoleAdmin, OrderStatusCancelled))

	// 未知角色一律拒绝
	assert.False(t, RoleCanSetStatus("provider", OrderStatusCancelled))
	assert.False(t, RoleCanSetStatus("", OrderStatusCancelled))
}

func TestPostPaymentStatus(t *testing.T) {
	assert.Equal(t, OrderStatusDeliveryPending, PostPaymentStatus(OrderTypeProduct))
	assert.Equal(t, OrderStatusCollectionPending, PostPaymentStatus(OrderTypeCollection))
	assert.Equal(t, OrderStatusServicePending, PostPaymentStatus(OrderTypeService))
	assert.Equal(t, OrderStatusProcessing, PostPaymentStatus(OrderTypeTicket))
	assert.Equal(t, OrderStatusProcessing, PostPaymentStatus("unknown"))
}
