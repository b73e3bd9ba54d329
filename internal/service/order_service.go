package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tixmarket/internal/config"
	"tixmarket/internal/infrastructure/lock"
	"tixmarket/internal/model"
	"tixmarket/internal/provider"
	"tixmarket/internal/repository"
	"tixmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actor 已认证的操作者（上游网关注入）
type Actor struct {
	ID   int64
	Role string
}

type OrderService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
	historyRepo *repository.HistoryRepository
	balanceRepo *repository.BalanceRepository
	txnRepo     *repository.TransactionRepository
	outboxRepo  *repository.OutboxRepository
	escrow      *EscrowService
}

func NewOrderService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *OrderService {
	return &OrderService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		escrow:      NewEscrowService(db, cfg),
	}
}

type CheckoutRequest struct {
	RequestID     string          `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	BuyerID       int64           `json:"-"`
	SellerID      int64           `json:"seller_id" binding:"required"`
	SellerType    string          `json:"seller_type"` // seller|organizer|event，默认 seller
	OrderType     string          `json:"order_type" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod string          `json:"payment_method"`
	Provider      string          `json:"provider"`
	CustomerPhone string          `json:"customer_phone"`
	Items         json.RawMessage `json:"items"`
}

type CheckoutResponse struct {
	OrderNo           string          `json:"order_no"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	Amount            decimal.Decimal `json:"amount"`
	ProviderReference string          `json:"provider_reference"`
	RedirectURL       string          `json:"redirect_url,omitempty"`
}

// Checkout 创建订单并向渠道发起代收
//
// 【关键点】发起渠道调用在事务之外：网络IO绝不能持有行锁。
// 订单先以 PENDING 落库，渠道发起成功后回填 provider_reference 并
// 建立支付记录（渠道侧各类标识的二级索引，供回调匹配链使用）。
func (s *OrderService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("金额必须大于0")
	}
	if req.SellerType == "" {
		req.SellerType = model.EntityTypeSeller
	}
	if req.Provider == "" {
		req.Provider = s.cfg.Provider.Default
	}

	adapter, err := provider.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	// 按买家维度加锁，挡住网络抖动导致的重复提交
	checkoutLock := lock.NewCheckoutLock(s.redisClient, req.BuyerID, req.RequestID)
	if err := checkoutLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer checkoutLock.Unlock(ctx)

	orderNo := idgen.GenerateOrderNo()
	metadata, _ := json.Marshal(map[string]interface{}{
		"request_id": req.RequestID,
		"items":      json.RawMessage(req.Items),
	})

	order := &model.Order{
		OrderNo:       orderNo,
		BuyerID:       req.BuyerID,
		SellerID:      req.SellerID,
		SellerType:    req.SellerType,
		OrderType:     req.OrderType,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   req.Amount,
		Currency:      s.cfg.Business.Currency,
		PaymentMethod: req.PaymentMethod,
		Provider:      req.Provider,
		Metadata:      datatypes.JSON(metadata),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}
		history := &model.OrderStatusHistory{
			OrderID:       order.ID,
			Status:        model.OrderStatusPending,
			Notes:         "订单创建",
			CreatedByType: model.ActorTypeBuyer,
		}
		return s.historyRepo.Create(ctx, tx, history)
	})
	if err != nil {
		return nil, err
	}

	// 渠道发起（事务外）
	initResult, err := adapter.Initiate(ctx, &provider.InitiateRequest{
		OrderNo:       orderNo,
		Amount:        req.Amount,
		Currency:      order.Currency,
		PaymentMethod: req.PaymentMethod,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		// 发起失败，订单直接关闭，买家重新下单
		s.closeUnpaidOrder(ctx, order, "渠道发起代收失败")
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}

	rawJSON, _ := json.Marshal(initResult.Raw)
	payment := &model.Payment{
		OrderNo:           orderNo,
		Provider:          req.Provider,
		InvoiceID:         initResult.InvoiceID,
		ProviderReference: initResult.ProviderReference,
		APIRef:            initResult.APIRef,
		Amount:            req.Amount,
		Status:            model.PaymentStatusPending,
		Metadata:          datatypes.JSON(rawJSON),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Updates(ctx, tx, order.ID, map[string]interface{}{
			"provider_reference": initResult.ProviderReference,
		}); err != nil {
			return err
		}
		return s.paymentRepo.Create(ctx, tx, payment)
	})
	if err != nil {
		return nil, fmt.Errorf("保存支付记录失败: %w", err)
	}

	log.Printf("订单创建成功: orderNo=%s, buyerID=%d, amount=%s, provider=%s",
		orderNo, req.BuyerID, req.Amount.String(), req.Provider)

	return &CheckoutResponse{
		OrderNo:           orderNo,
		Status:            model.OrderStatusPending,
		PaymentStatus:     model.PaymentStatusPending,
		Amount:            req.Amount,
		ProviderReference: initResult.ProviderReference,
		RedirectURL:       initResult.RedirectURL,
	}, nil
}

func (s *OrderService) closeUnpaidOrder(ctx context.Context, order *model.Order, reason string) {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Updates(ctx, tx, order.ID, map[string]interface{}{
			"status":       model.OrderStatusCancelled,
			"cancelled_at": &now,
		}); err != nil {
			return err
		}
		return s.historyRepo.Create(ctx, tx, &model.OrderStatusHistory{
			OrderID:       order.ID,
			Status:        model.OrderStatusCancelled,
			Notes:         reason,
			CreatedByType: model.ActorTypeSystem,
		})
	})
	if err != nil {
		log.Printf("关闭未支付订单失败: orderNo=%s, err=%v", order.OrderNo, err)
	}
}

// TransitionStatus 订单状态流转（唯一入口）
//
// 【关键点】整个流转在一个事务内完成：
//  1. FOR UPDATE 锁订单行，先锁再读
//  2. 终态拒绝（ErrOrderTerminal）、非法流转拒绝（ErrOrderStatusInvalid）
//  3. 角色准入 + 归属校验（ErrForbidden）
//  4. COMPLETED 流转触发托管结算（同事务，订单锁在前余额锁在后）
//  5. 状态更新 + 历史记录同事务落库
//
// 任何校验失败都不产生任何变更。
func (s *OrderService) TransitionStatus(ctx context.Context, actor Actor, orderNo, targetStatus, notes string) (*model.Order, error) {
	var updated *model.Order

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByOrderNoForUpdate(ctx, tx, orderNo)
		if err != nil {
			return err
		}

		if model.IsTerminalOrderStatus(order.Status) {
			return repository.ErrOrderTerminal
		}
		if !model.CanTransitionTo(order.Status, targetStatus) {
			return fmt.Errorf("%w: %s -> %s", repository.ErrOrderStatusInvalid, order.Status, targetStatus)
		}
		if !model.RoleCanSetStatus(actor.Role, targetStatus) {
			return ErrForbidden
		}
		// 归属校验：买家只能操作自己的订单，卖家只能操作自己收款的订单
		switch actor.Role {
		case model.RoleBuyer:
			if order.BuyerID != actor.ID {
				return ErrForbidden
			}
		case model.RoleSeller:
			if order.SellerID != actor.ID {
				return ErrForbidden
			}
		}

		now := time.Now()
		fields := map[string]interface{}{"status": targetStatus}

		switch targetStatus {
		case model.OrderStatusCompleted:
			fee, net, err := s.escrow.ReleaseFunds(ctx, tx, order)
			if err != nil {
				return err
			}
			fields["platform_fee_amount"] = fee
			fields["seller_payout_amount"] = net
			fields["completed_at"] = &now

			if err := writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventOrderCompleted, order.OrderNo, map[string]interface{}{
					"order_no":             order.OrderNo,
					"seller_type":          order.SellerType,
					"seller_id":            order.SellerID,
					"platform_fee_amount":  fee,
					"seller_payout_amount": net,
				}); err != nil {
				return err
			}

		case model.OrderStatusCancelled:
			fields["cancelled_at"] = &now
			// 已付款订单取消：支付金额转入买家可退余额，等退款流程处理
			if order.PaymentStatus == model.PaymentStatusCompleted {
				if err := s.creditBuyerRefund(ctx, tx, order); err != nil {
					return err
				}
			}
			if err := writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventOrderCancelled, order.OrderNo, map[string]interface{}{
					"order_no": order.OrderNo,
					"buyer_id": order.BuyerID,
				}); err != nil {
				return err
			}
		}

		if err := s.orderRepo.Updates(ctx, tx, order.ID, fields); err != nil {
			return err
		}

		if err := s.historyRepo.Create(ctx, tx, &model.OrderStatusHistory{
			OrderID:       order.ID,
			Status:        targetStatus,
			Notes:         notes,
			CreatedByType: actor.Role,
		}); err != nil {
			return err
		}

		updated = order
		updated.Status = targetStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("订单状态流转: orderNo=%s, target=%s, role=%s", orderNo, targetStatus, actor.Role)
	return updated, nil
}

// creditBuyerRefund 已付款订单取消时，把支付金额记入买家可退余额
func (s *OrderService) creditBuyerRefund(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	before, err := s.balanceRepo.GetBuyerRefundForUpdate(ctx, tx, order.BuyerID)
	if err != nil {
		return err
	}
	if err := s.balanceRepo.CreditBuyerRefund(ctx, tx, order.BuyerID, order.TotalAmount); err != nil {
		return err
	}
	return s.txnRepo.Create(ctx, tx, &model.BalanceTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		EntityType:    "buyer",
		EntityID:      order.BuyerID,
		RefNo:         order.OrderNo,
		Amount:        order.TotalAmount,
		Type:          model.TransactionTypeCancelCredit,
		BalanceBefore: before,
		BalanceAfter:  before.Add(order.TotalAmount),
		Remark:        "订单取消，支付金额转入可退余额",
	})
}

// ConfirmReceipt 买家确认收货，唯一触发资金结算的入口
func (s *OrderService) ConfirmReceipt(ctx context.Context, buyerID int64, orderNo string) (*model.Order, error) {
	return s.TransitionStatus(ctx, Actor{ID: buyerID, Role: model.RoleBuyer},
		orderNo, model.OrderStatusCompleted, "买家确认收货")
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) GetOrderHistory(ctx context.Context, orderNo string) ([]*model.OrderStatusHistory, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	return s.historyRepo.ListByOrderID(ctx, order.ID)
}

func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByBuyerID(ctx, buyerID, page, pageSize)
}
