package service

import (
	"context"
	"testing"

	"tixmarket/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLookup 内存版查询口径，键未命中返回 (nil, nil)
type fakeLookup struct {
	ordersByNo  map[string]*model.Order
	ordersByRef map[string]*model.Order
	payByRef    map[string]*model.Payment
	payByInv    map[string]*model.Payment
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		ordersByNo:  map[string]*model.Order{},
		ordersByRef: map[string]*model.Order{},
		payByRef:    map[string]*model.Payment{},
		payByInv:    map[string]*model.Payment{},
	}
}

func (f *fakeLookup) OrderByNo(_ context.Context, orderNo string) (*model.Order, error) {
	return f.ordersByNo[orderNo], nil
}

func (f *fakeLookup) OrderByProviderReference(_ context.Context, ref string) (*model.Order, error) {
	return f.ordersByRef[ref], nil
}

func (f *fakeLookup) PaymentByProviderReference(_ context.Context, ref string) (*model.Payment, error) {
	return f.payByRef[ref], nil
}

func (f *fakeLookup) PaymentByInvoiceID(_ context.Context, inv string) (*model.Payment, error) {
	return f.payByInv[inv], nil
}

const testOrderNo = "ORD2026010112000000000001"

func TestMatchByCheckoutID(t *testing.T) {
	lookup := newFakeLookup()
	order := &model.Order{OrderNo: testOrderNo}
	lookup.ordersByNo[testOrderNo] = order
	lookup.payByRef["chk-123"] = &model.Payment{OrderNo: testOrderNo}

	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{CheckoutID: "chk-123"})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, testOrderNo, matched.OrderNo)
	assert.Equal(t, "checkout_id", by)
}

func TestMatchByOrderNo(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByNo[testOrderNo] = &model.Order{OrderNo: testOrderNo}

	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{OrderNo: testOrderNo})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "order_no", by)
}

func TestMatchByProviderReference(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByRef["prov-ref-9"] = &model.Order{OrderNo: testOrderNo}

	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{Reference: "prov-ref-9"})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "provider_reference", by)
}

func TestMatchByInvoiceID(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByNo[testOrderNo] = &model.Order{OrderNo: testOrderNo}
	lookup.payByInv["INV-42"] = &model.Payment{OrderNo: testOrderNo}

	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{InvoiceID: "INV-42"})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "invoice_id", by)
}

func TestMatchByAPIRef(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByNo[testOrderNo] = &model.Order{OrderNo: testOrderNo}

	// 订单号内嵌在渠道自己拼的引用串里
	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{APIRef: "SBX-" + testOrderNo + "-retry2"})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, testOrderNo, matched.OrderNo)
	assert.Equal(t, "api_ref", by)
}

func TestMatchAPIRefWithoutEmbeddedOrderNo(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByNo[testOrderNo] = &model.Order{OrderNo: testOrderNo}

	// 串里没有合法订单号（位数不够），不允许猜
	matched, _, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{APIRef: "SBX-ORD123"})
	require.NoError(t, err)
	assert.Nil(t, matched)
}

func TestMatchPriorityOrder(t *testing.T) {
	lookup := newFakeLookup()
	first := &model.Order{OrderNo: testOrderNo}
	second := &model.Order{OrderNo: "ORD2026010112000000000002"}
	lookup.ordersByNo[testOrderNo] = first
	lookup.ordersByNo[second.OrderNo] = second
	lookup.payByRef["chk-1"] = &model.Payment{OrderNo: testOrderNo}

	// checkout_id 和 order_no 同时给且指向不同订单时，checkout_id 优先
	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{CheckoutID: "chk-1", OrderNo: second.OrderNo})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, first.OrderNo, matched.OrderNo)
	assert.Equal(t, "checkout_id", by)
}

func TestMatchFallsThroughToLaterStrategy(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ordersByNo[testOrderNo] = &model.Order{OrderNo: testOrderNo}

	// checkout_id 未命中时继续往后试
	matched, by, err := NewOrderMatcher(lookup).Match(context.Background(),
		&CallbackIdentifiers{CheckoutID: "no-such", OrderNo: testOrderNo})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "order_no", by)
}

func TestMatchNothing(t *testing.T) {
	matched, by, err := NewOrderMatcher(newFakeLookup()).Match(context.Background(),
		&CallbackIdentifiers{CheckoutID: "x", OrderNo: "y", Reference: "z", InvoiceID: "w", APIRef: "v"})
	require.NoError(t, err)
	assert.Nil(t, matched)
	assert.Empty(t, by)
}
