package service

import (
	"context"
	"errors"
	"regexp"

	"tixmarket/internal/model"
	"tixmarket/internal/repository"
)

// ============================================================================
// 订单匹配链
// ============================================================================
//
// 渠道回调时回传哪个标识完全看渠道心情：有的回传发起时给它的 checkout_id，
// 有的回传我们的订单号，有的只回传自己生成的 invoice_id，还有的把订单号
// 拼进 api_ref 里。匹配是按固定优先级逐个尝试的显式策略链，
// 全部未命中就放弃并记录人工对账 —— 绝不允许猜。
//
// ============================================================================

// OrderLookup 匹配链依赖的查询口径，未命中返回 (nil, nil)
type OrderLookup interface {
	OrderByNo(ctx context.Context, orderNo string) (*model.Order, error)
	OrderByProviderReference(ctx context.Context, ref string) (*model.Order, error)
	PaymentByProviderReference(ctx context.Context, ref string) (*model.Payment, error)
	PaymentByInvoiceID(ctx context.Context, invoiceID string) (*model.Payment, error)
}

// CallbackIdentifiers 从 webhook/redirect 报文里提取出来的候选标识
type CallbackIdentifiers struct {
	CheckoutID string // 渠道主标识（checkout_id / collection_id）
	OrderNo    string
	Reference  string // 订单表存的 provider_reference
	InvoiceID  string
	APIRef     string
}

// 订单号：ORD + 14位时间戳 + 8位序列
var orderNoPattern = regexp.MustCompile(`ORD\d{22}`)

type matchStrategy struct {
	name  string
	match func(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error)
}

type OrderMatcher struct {
	lookup     OrderLookup
	strategies []matchStrategy
}

func NewOrderMatcher(lookup OrderLookup) *OrderMatcher {
	m := &OrderMatcher{lookup: lookup}
	m.strategies = []matchStrategy{
		{name: "checkout_id", match: m.byCheckoutID},
		{name: "order_no", match: m.byOrderNo},
		{name: "provider_reference", match: m.byProviderReference},
		{name: "invoice_id", match: m.byInvoiceID},
		{name: "api_ref", match: m.byAPIRef},
	}
	return m
}

// Match 按优先级逐个尝试，返回命中的订单和命中的策略名
// 全部未命中返回 (nil, "", nil)，由调用方决定如何应答
func (m *OrderMatcher) Match(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, string, error) {
	for _, strategy := range m.strategies {
		order, err := strategy.match(ctx, idents)
		if err != nil {
			return nil, "", err
		}
		if order != nil {
			return order, strategy.name, nil
		}
	}
	return nil, "", nil
}

// 1. 渠道主标识 -> 支付记录 -> 订单
func (m *OrderMatcher) byCheckoutID(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error) {
	if idents.CheckoutID == "" {
		return nil, nil
	}
	payment, err := m.lookup.PaymentByProviderReference(ctx, idents.CheckoutID)
	if err != nil || payment == nil {
		return nil, err
	}
	return m.lookup.OrderByNo(ctx, payment.OrderNo)
}

// 2. 订单号直查
func (m *OrderMatcher) byOrderNo(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error) {
	if idents.OrderNo == "" {
		return nil, nil
	}
	return m.lookup.OrderByNo(ctx, idents.OrderNo)
}

// 3. 订单表自身存的渠道引用
func (m *OrderMatcher) byProviderReference(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error) {
	if idents.Reference == "" {
		return nil, nil
	}
	return m.lookup.OrderByProviderReference(ctx, idents.Reference)
}

// 4. 渠道 invoice_id -> 支付记录 -> 订单
func (m *OrderMatcher) byInvoiceID(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error) {
	if idents.InvoiceID == "" {
		return nil, nil
	}
	payment, err := m.lookup.PaymentByInvoiceID(ctx, idents.InvoiceID)
	if err != nil || payment == nil {
		return nil, err
	}
	return m.lookup.OrderByNo(ctx, payment.OrderNo)
}

// 5. api_ref 里可能内嵌订单号，正则抽出来再查
func (m *OrderMatcher) byAPIRef(ctx context.Context, idents *CallbackIdentifiers) (*model.Order, error) {
	if idents.APIRef == "" {
		return nil, nil
	}
	orderNo := orderNoPattern.FindString(idents.APIRef)
	if orderNo == "" {
		return nil, nil
	}
	return m.lookup.OrderByNo(ctx, orderNo)
}

// ============================================================
// 仓储实现
// ============================================================

type repoLookup struct {
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
}

func newRepoLookup(orderRepo *repository.OrderRepository, paymentRepo *repository.PaymentRepository) OrderLookup {
	return &repoLookup{orderRepo: orderRepo, paymentRepo: paymentRepo}
}

func (l *repoLookup) OrderByNo(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := l.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (l *repoLookup) OrderByProviderReference(ctx context.Context, ref string) (*model.Order, error) {
	return l.orderRepo.GetByProviderReference(ctx, ref)
}

func (l *repoLookup) PaymentByProviderReference(ctx context.Context, ref string) (*model.Payment, error) {
	return l.paymentRepo.GetByProviderReference(ctx, ref)
}

func (l *repoLookup) PaymentByInvoiceID(ctx context.Context, invoiceID string) (*model.Payment, error) {
	return l.paymentRepo.GetByInvoiceID(ctx, invoiceID)
}
