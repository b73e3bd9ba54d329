package service

import (
	"context"
	"testing"

	"tixmarket/internal/config"
	"tixmarket/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// 回调状态应用：重放幂等 / 终态不可变
// ============================================================

func newWebhookServiceForTest(orders *fakeOrderStore, payments *fakePaymentStore) (*WebhookService, *fakeHistoryStore, *fakeOutboxStore) {
	history := &fakeHistoryStore{}
	outbox := &fakeOutboxStore{}
	svc := &WebhookService{
		db:          fakeDB{},
		cfg:         testConfig(),
		orderRepo:   orders,
		paymentRepo: payments,
		historyRepo: history,
		outboxRepo:  outbox,
	}
	return svc, history, outbox
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Notify: "tixmarket.notify", Alert: "tixmarket.alert"},
		},
		Business: config.BusinessConfig{
			Currency:      "KES",
			SellerFeeRate: 0.03,
			EventFeeRate:  0.06,
		},
	}
}

func pendingOrder() *model.Order {
	return &model.Order{
		ID:            1,
		OrderNo:       testOrderNo,
		BuyerID:       7,
		SellerID:      8,
		OrderType:     model.OrderTypeProduct,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   decimal.NewFromInt(100),
	}
}

func TestApplyPaymentUpdateSuccess(t *testing.T) {
	order := pendingOrder()
	orders := newFakeOrderStore(order)
	payments := &fakePaymentStore{payments: []*model.Payment{
		{ID: 11, OrderNo: testOrderNo, Status: model.PaymentStatusPending},
	}}
	svc, history, outbox := newWebhookServiceForTest(orders, payments)

	result, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "SUCCESS", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.Equal(t, model.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, model.OrderStatusDeliveryPending, result.OrderStatus)

	assert.Equal(t, model.OrderStatusDeliveryPending, order.Status)
	assert.Equal(t, model.PaymentStatusCompleted, order.PaymentStatus)
	assert.NotNil(t, order.PaidAt)
	assert.Equal(t, model.PaymentStatusCompleted, payments.payments[0].Status)
	assert.Len(t, history.rows, 1)
	assert.Len(t, outbox.messages, 1)
	assert.Equal(t, model.NotifyEventOrderPaid, outbox.messages[0].EventType)
}

// 渠道超时会原样重发同一笔通知，重放必须不产生任何新变更
func TestApplyPaymentUpdateReplayIsIdempotent(t *testing.T) {
	order := pendingOrder()
	orders := newFakeOrderStore(order)
	payments := &fakePaymentStore{payments: []*model.Payment{
		{ID: 11, OrderNo: testOrderNo, Status: model.PaymentStatusPending},
	}}
	svc, history, outbox := newWebhookServiceForTest(orders, payments)

	first, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "SUCCESS", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	require.False(t, first.AlreadyProcessed)
	paidAt := order.PaidAt

	replay, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "SUCCESS", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)

	assert.Equal(t, model.OrderStatusDeliveryPending, order.Status)
	assert.Equal(t, model.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, paidAt, order.PaidAt)
	assert.Len(t, history.rows, 1, "重放不应再写状态历史")
	assert.Len(t, outbox.messages, 1, "重放不应再发通知")
}

// 同一个非终态状态的重放同样视为已处理，不刷历史
func TestApplyPaymentUpdateSameStatusReplay(t *testing.T) {
	order := pendingOrder()
	orders := newFakeOrderStore(order)
	svc, history, outbox := newWebhookServiceForTest(orders, &fakePaymentStore{})

	result, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "QUEUED", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Empty(t, history.rows)
	assert.Empty(t, outbox.messages)
}

// 已取消的订单再收到成功回调，不得被改回任何状态
func TestApplyPaymentUpdateTerminalOrderImmutable(t *testing.T) {
	order := pendingOrder()
	order.Status = model.OrderStatusCancelled
	order.PaymentStatus = model.PaymentStatusFailed
	orders := newFakeOrderStore(order)
	svc, history, outbox := newWebhookServiceForTest(orders, &fakePaymentStore{})

	result, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "SUCCESS", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, model.OrderStatusCancelled, order.Status)
	assert.Equal(t, model.PaymentStatusFailed, order.PaymentStatus)
	assert.Empty(t, history.rows)
	assert.Empty(t, outbox.messages)
}

func TestApplyPaymentUpdateFailureCancelsOrder(t *testing.T) {
	order := pendingOrder()
	orders := newFakeOrderStore(order)
	svc, history, outbox := newWebhookServiceForTest(orders, &fakePaymentStore{})

	result, err := svc.applyPaymentUpdate(context.Background(), testOrderNo, "FAILED", model.ActorTypeProvider, "webhook(sandbox)")
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.Equal(t, model.OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)
	require.Len(t, outbox.messages, 1)
	assert.Equal(t, model.NotifyEventOrderCancelled, outbox.messages[0].EventType)
	assert.Len(t, history.rows, 1)
}
