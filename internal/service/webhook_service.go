package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"tixmarket/internal/config"
	"tixmarket/internal/model"
	"tixmarket/internal/provider"
	"tixmarket/internal/repository"

	"gorm.io/gorm"
)

// ============================================================================
// 回调对账
// ============================================================================
//
// 两条入站通道：
//   - webhook（服务端推送）：带签名，验签不过不碰数据库
//   - redirect 回调（浏览器跳转）：无签名，只当线索，
//     必须向渠道主动查单确认后才能采信
//
// 渠道超时/非2xx会重试，所以处理必须幂等：行锁内做终态检查，
// 已是终态直接提交返回"已处理"应答，不产生任何变更。
//
// ============================================================================

type WebhookService struct {
	db          transactor
	cfg         *config.Config
	orderRepo   orderStore
	paymentRepo paymentStore
	historyRepo historyStore
	outboxRepo  outboxStore
	matcher     *OrderMatcher
}

func NewWebhookService(db *gorm.DB, cfg *config.Config) *WebhookService {
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	return &WebhookService{
		db:          db,
		cfg:         cfg,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		historyRepo: repository.NewHistoryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		matcher:     NewOrderMatcher(newRepoLookup(orderRepo, paymentRepo)),
	}
}

// PaymentUpdateResult 回调处理结果（给 handler 决定应答语义）
type PaymentUpdateResult struct {
	Matched          bool   `json:"matched"`
	AlreadyProcessed bool   `json:"already_processed"`
	OrderNo          string `json:"order_no,omitempty"`
	OrderStatus      string `json:"order_status,omitempty"`
	PaymentStatus    string `json:"payment_status,omitempty"`
	MatchedBy        string `json:"matched_by,omitempty"`
}

// 渠道字段名不统一，按候选键逐个找
func pickString(body map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := body[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func extractIdentifiers(body map[string]interface{}) *CallbackIdentifiers {
	return &CallbackIdentifiers{
		CheckoutID: pickString(body, "checkout_id", "collection_id", "checkout_request_id"),
		OrderNo:    pickString(body, "order_no", "order_number", "account_reference"),
		Reference:  pickString(body, "reference", "tracking_id", "provider_reference"),
		InvoiceID:  pickString(body, "invoice_id", "invoice"),
		APIRef:     pickString(body, "api_ref", "api_reference"),
	}
}

func extractRawStatus(body map[string]interface{}) string {
	return pickString(body, "status", "state", "transaction_status")
}

// HandleWebhook 处理渠道服务端推送
//
// 验签在一切数据库操作之前；验签失败返回 ErrInvalidSignature，无任何副作用。
func (s *WebhookService) HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*PaymentUpdateResult, error) {
	adapter, err := provider.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !adapter.VerifySignature(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	idents := extractIdentifiers(body)
	rawStatus := extractRawStatus(body)

	order, matchedBy, err := s.matcher.Match(ctx, idents)
	if err != nil {
		return nil, err
	}
	if order == nil {
		// 不猜。记录下来等人工对账
		log.Printf("[Webhook] 未匹配到订单: provider=%s, idents=%+v", providerName, idents)
		return &PaymentUpdateResult{Matched: false}, nil
	}

	result, err := s.applyPaymentUpdate(ctx, order.OrderNo, rawStatus, model.ActorTypeProvider,
		fmt.Sprintf("webhook(%s)", providerName))
	if err != nil {
		return nil, err
	}
	result.MatchedBy = matchedBy
	return result, nil
}

// HandleCallback 处理浏览器 redirect 回调
//
// 回调参数不可信（无签名），只用来定位订单；终态判定必须经过
// 服务端主动查单。任何内部错误都不暴露给终端用户，统一落到
// 前端结果页的 status=pending|error。
func (s *WebhookService) HandleCallback(ctx context.Context, providerName string, query url.Values) string {
	body := map[string]interface{}{}
	for key := range query {
		body[key] = query.Get(key)
	}
	idents := extractIdentifiers(body)

	order, _, err := s.matcher.Match(ctx, idents)
	if err != nil || order == nil {
		log.Printf("[Callback] 未匹配到订单: provider=%s, idents=%+v, err=%v", providerName, idents, err)
		return s.frontendRedirect("error", "")
	}

	// 已是终态直接给结果，不再查单
	if model.IsTerminalPaymentStatus(order.PaymentStatus) {
		return s.frontendRedirect(redirectStatusFor(order.PaymentStatus), order.OrderNo)
	}

	adapter, err := provider.Get(providerName)
	if err != nil {
		return s.frontendRedirect("pending", order.OrderNo)
	}

	ref := order.ProviderReference
	if ref == "" {
		ref = idents.Reference
	}
	statusResult, err := adapter.CheckStatus(ctx, ref)
	if err != nil {
		// 查单失败不能采信回调参数，挂起等 webhook 或下次查单
		log.Printf("[Callback] 查单失败: orderNo=%s, err=%v", order.OrderNo, err)
		return s.frontendRedirect("pending", order.OrderNo)
	}

	result, err := s.applyPaymentUpdate(ctx, order.OrderNo, statusResult.RawStatus,
		model.ActorTypeProvider, fmt.Sprintf("callback+查单(%s)", providerName))
	if err != nil {
		log.Printf("[Callback] 更新失败: orderNo=%s, err=%v", order.OrderNo, err)
		return s.frontendRedirect("pending", order.OrderNo)
	}

	return s.frontendRedirect(redirectStatusFor(result.PaymentStatus), order.OrderNo)
}

func redirectStatusFor(paymentStatus string) string {
	switch paymentStatus {
	case model.PaymentStatusCompleted:
		return "success"
	case model.PaymentStatusFailed, model.PaymentStatusCancelled:
		return "error"
	default:
		return "pending"
	}
}

func (s *WebhookService) frontendRedirect(status, reference string) string {
	return fmt.Sprintf("%s/payments/result?status=%s&reference=%s",
		s.cfg.Business.FrontendURL, status, url.QueryEscape(reference))
}

// applyPaymentUpdate 把归一化后的支付状态落到订单上（幂等）
//
// 一个事务内完成：锁订单行 -> 终态幂等检查 -> 归一化 -> 更新订单 ->
// 写状态历史 -> 更新支付记录 -> 提交。通知走发件箱，提交后异步投递。
func (s *WebhookService) applyPaymentUpdate(ctx context.Context, orderNo, rawStatus, actorType, source string) (*PaymentUpdateResult, error) {
	result := &PaymentUpdateResult{Matched: true, OrderNo: orderNo}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if err != nil {
			return err
		}

		result.OrderStatus = order.Status
		result.PaymentStatus = order.PaymentStatus

		// 幂等守卫：支付已是终态（或订单已终态）的重放直接提交返回
		if model.IsTerminalPaymentStatus(order.PaymentStatus) || model.IsTerminalOrderStatus(order.Status) {
			result.AlreadyProcessed = true
			return nil
		}

		newPaymentStatus := provider.Normalize(rawStatus)
		if newPaymentStatus == order.PaymentStatus {
			// 同一个非终态状态的重放，不刷历史
			result.AlreadyProcessed = true
			return nil
		}

		now := time.Now()
		fields := map[string]interface{}{"payment_status": newPaymentStatus}
		newOrderStatus := order.Status

		switch newPaymentStatus {
		case model.PaymentStatusCompleted:
			newOrderStatus = model.PostPaymentStatus(order.OrderType)
			fields["status"] = newOrderStatus
			fields["paid_at"] = &now

			if err := writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventOrderPaid, order.OrderNo, map[string]interface{}{
					"order_no":  order.OrderNo,
					"buyer_id":  order.BuyerID,
					"seller_id": order.SellerID,
					"amount":    order.TotalAmount,
				}); err != nil {
				return err
			}

		case model.PaymentStatusFailed, model.PaymentStatusCancelled, model.PaymentStatusRefunded:
			newOrderStatus = model.OrderStatusCancelled
			fields["status"] = newOrderStatus
			fields["cancelled_at"] = &now

			if err := writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventOrderCancelled, order.OrderNo, map[string]interface{}{
					"order_no": order.OrderNo,
					"buyer_id": order.BuyerID,
					"reason":   "支付" + newPaymentStatus,
				}); err != nil {
				return err
			}
		}

		if err := s.orderRepo.Updates(ctx, tx, order.ID, fields); err != nil {
			return err
		}

		if err := s.historyRepo.Create(ctx, tx, &model.OrderStatusHistory{
			OrderID:       order.ID,
			Status:        newOrderStatus,
			Notes:         fmt.Sprintf("渠道状态 %s -> %s（来源: %s）", rawStatus, newPaymentStatus, source),
			CreatedByType: actorType,
		}); err != nil {
			return err
		}

		payment, err := s.paymentRepo.GetByOrderNo(ctx, tx, order.OrderNo)
		if err != nil {
			return err
		}
		if payment != nil {
			if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, newPaymentStatus); err != nil {
				return err
			}
		}

		result.OrderStatus = newOrderStatus
		result.PaymentStatus = newPaymentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed {
		log.Printf("[Webhook] 支付状态更新: orderNo=%s, paymentStatus=%s, orderStatus=%s, source=%s",
			result.OrderNo, result.PaymentStatus, result.OrderStatus, source)
	}
	return result, nil
}
