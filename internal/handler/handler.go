package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"tixmarket/internal/config"
	"tixmarket/internal/infrastructure/lock"
	"tixmarket/internal/model"
	"tixmarket/internal/provider"
	"tixmarket/internal/repository"
	"tixmarket/internal/service"
	"tixmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	orderService      *service.OrderService
	webhookService    *service.WebhookService
	withdrawalService *service.WithdrawalService
	refundService     *service.RefundService
	balanceRepo       *repository.BalanceRepository
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		orderService:      service.NewOrderService(db, rdb, cfg),
		webhookService:    service.NewWebhookService(db, cfg),
		withdrawalService: service.NewWithdrawalService(db, rdb, cfg),
		refundService:     service.NewRefundService(db, cfg),
		balanceRepo:       repository.NewBalanceRepository(db),
	}
}

// handleServiceError 把服务层/仓储层的哨兵错误映射为业务码
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeOrderStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrOrderTerminal),
		errors.Is(err, repository.ErrWithdrawalTerminal),
		errors.Is(err, repository.ErrRefundTerminal):
		response.BusinessError(c, response.CodeAlreadyTerminal, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrEntityNotFound):
		response.BusinessError(c, response.CodeEntityNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateRequest), errors.Is(err, lock.ErrLockFailed):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		response.BusinessError(c, response.CodeWithdrawalNotFound, err.Error())
	case errors.Is(err, repository.ErrRefundNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, provider.ErrProviderCall):
		response.BusinessError(c, response.CodeProviderError, err.Error())
	case errors.Is(err, provider.ErrAdapterNotFound):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 订单相关接口
// ============================================================

// Checkout 创建订单并发起代收
// POST /api/v1/order/checkout
func (h *Handler) Checkout(c *gin.Context) {
	actor := CurrentActor(c)

	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.BuyerID = actor.ID

	result, err := h.orderService.Checkout(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询买家订单列表
// GET /api/v1/order/list?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	actor := CurrentActor(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListBuyerOrders(c.Request.Context(), actor.ID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetOrderHistory 查询订单状态流转历史
// GET /api/v1/order/history?order_no=xxx
func (h *Handler) GetOrderHistory(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	history, err := h.orderService.GetOrderHistory(c.Request.Context(), orderNo)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, history)
}

// TransitionStatusRequest 订单状态流转请求
type TransitionStatusRequest struct {
	OrderNo      string `json:"order_no" binding:"required"`
	TargetStatus string `json:"target_status" binding:"required"`
	Notes        string `json:"notes"`
}

// TransitionStatus 推进订单状态
// POST /api/v1/order/status
//
// 角色权限在服务层统一校验：卖家不能置 COMPLETED，
// 买家只能确认收货或取消。
func (h *Handler) TransitionStatus(c *gin.Context) {
	actor := CurrentActor(c)

	var req TransitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.TransitionStatus(c.Request.Context(), actor, req.OrderNo, req.TargetStatus, req.Notes)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no": order.OrderNo,
		"status":   order.Status,
	})
}

// ConfirmReceipt 买家确认收货（触发资金入账）
// POST /api/v1/order/confirm
func (h *Handler) ConfirmReceipt(c *gin.Context) {
	actor := CurrentActor(c)

	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.ConfirmReceipt(c.Request.Context(), actor.ID, req.OrderNo)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no": order.OrderNo,
		"status":   order.Status,
	})
}

// CancelOrder 取消订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	actor := CurrentActor(c)

	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.TransitionStatus(c.Request.Context(), actor, req.OrderNo, model.OrderStatusCancelled, req.Notes)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no": order.OrderNo,
		"status":   order.Status,
	})
}

// ============================================================
// 渠道回调接口
// ============================================================
//
// webhook 的响应对象是外部渠道而不是前端，所以不走统一业务码
// 信封，用真实的 HTTP 状态码说话：
//   200 已处理（含重放，给 200 让渠道停止重试）
//   400 签名/报文不合法（渠道配置错误，重试也没用）
//   404 匹配不到订单
//   500 内部错误（渠道会重试，靠幂等守卫兜底）

// PaymentWebhook 代收结果 webhook
// POST /webhooks/:provider
func (h *Handler) PaymentWebhook(c *gin.Context) {
	providerName := c.Param("provider")
	signature := c.GetHeader("X-Signature")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取报文失败"})
		return
	}

	result, err := h.webhookService.HandleWebhook(c.Request.Context(), providerName, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature), errors.Is(err, service.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrAdapterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "处理失败"})
		}
		return
	}

	if !result.Matched {
		c.JSON(http.StatusNotFound, gin.H{"error": "未匹配到订单"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PayoutWebhook 打款结果 webhook
// POST /webhooks/:provider/payout
func (h *Handler) PayoutWebhook(c *gin.Context) {
	providerName := c.Param("provider")
	signature := c.GetHeader("X-Signature")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取报文失败"})
		return
	}

	result, err := h.withdrawalService.HandleProviderCallback(c.Request.Context(), providerName, payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature), errors.Is(err, service.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrAdapterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "处理失败"})
		}
		return
	}

	if !result.Matched {
		c.JSON(http.StatusNotFound, gin.H{"error": "未匹配到提现单"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PaymentCallback 浏览器跳转回调（用户支付完成后渠道重定向回来）
// GET /payments/callback/:provider?reference=xxx&status=xxx
//
// 无论内部发生什么，都要把用户 302 回前端，绝不给用户看 JSON。
func (h *Handler) PaymentCallback(c *gin.Context) {
	providerName := c.Param("provider")
	redirectURL := h.webhookService.HandleCallback(c.Request.Context(), providerName, c.Request.URL.Query())
	c.Redirect(http.StatusFound, redirectURL)
}

// ============================================================
// 提现相关接口
// ============================================================

// CreateWithdrawal 提交提现申请
// POST /api/v1/withdrawal/create
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	actor := CurrentActor(c)

	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.EntityType == "" {
		req.EntityType = model.EntityTypeSeller
	}
	if req.EntityID == 0 {
		req.EntityID = actor.ID
	}

	result, err := h.withdrawalService.Create(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, result)
}

// GetWithdrawal 查询提现单详情
// GET /api/v1/withdrawal/detail?id=xxx
func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	wd, err := h.withdrawalService.GetByID(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, wd)
}

// ListWithdrawals 查询主体提现列表
// GET /api/v1/withdrawal/list?entity_type=seller&page=1&page_size=10
func (h *Handler) ListWithdrawals(c *gin.Context) {
	actor := CurrentActor(c)
	entityType := c.DefaultQuery("entity_type", model.EntityTypeSeller)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entityID := actor.ID
	if idStr := c.Query("entity_id"); idStr != "" {
		if parsed, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			entityID = parsed
		}
	}

	list, total, err := h.withdrawalService.ListByEntity(c.Request.Context(), entityType, entityID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// OverrideWithdrawalRequest 管理员强制终态请求
type OverrideWithdrawalRequest struct {
	WithdrawalID int64  `json:"withdrawal_id" binding:"required"`
	TargetStatus string `json:"target_status" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
}

// OverrideWithdrawal 管理员强制提现单终态
// POST /api/v1/admin/withdrawal/override
//
// 已终态的单子明确报冲突（区别于渠道 webhook 的静默成功）。
func (h *Handler) OverrideWithdrawal(c *gin.Context) {
	actor := CurrentActor(c)
	if actor.Role != model.RoleAdmin {
		response.Forbidden(c, "仅管理员可操作")
		return
	}

	var req OverrideWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	wd, err := h.withdrawalService.AdminOverride(c.Request.Context(), actor.ID, req.WithdrawalID, req.TargetStatus, req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"withdrawal_no": wd.WithdrawalNo,
		"status":        wd.Status,
	})
}

// ============================================================
// 买家退款相关接口
// ============================================================

// CreateRefund 买家提交退款申请
// POST /api/v1/refund/create
func (h *Handler) CreateRefund(c *gin.Context) {
	actor := CurrentActor(c)

	var req service.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.BuyerID = actor.ID

	refund, err := h.refundService.CreateRequest(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, gin.H{
		"refund_no": refund.RefundNo,
		"status":    refund.Status,
		"amount":    refund.Amount,
	})
}

// ListRefunds 查询买家退款申请列表
// GET /api/v1/refund/list?page=1&page_size=10
func (h *Handler) ListRefunds(c *gin.Context) {
	actor := CurrentActor(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	list, total, err := h.refundService.ListByBuyerID(c.Request.Context(), actor.ID, page, pageSize)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ResolveRefundRequest 管理员审核退款请求
type ResolveRefundRequest struct {
	RefundID int64  `json:"refund_id" binding:"required"`
	Approve  *bool  `json:"approve" binding:"required"`
	Notes    string `json:"notes"`
}

// ResolveRefund 管理员审核退款申请
// POST /api/v1/admin/refund/resolve
func (h *Handler) ResolveRefund(c *gin.Context) {
	actor := CurrentActor(c)
	if actor.Role != model.RoleAdmin {
		response.Forbidden(c, "仅管理员可操作")
		return
	}

	var req ResolveRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.refundService.Resolve(c.Request.Context(), actor.ID, req.RefundID, *req.Approve, req.Notes)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"refund_no": refund.RefundNo,
		"status":    refund.Status,
	})
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalance 查询余额
// GET /api/v1/account/balance?entity_type=seller&entity_id=xxx
//
// 买家传 entity_type=buyer 查退款余额。
func (h *Handler) GetBalance(c *gin.Context) {
	actor := CurrentActor(c)
	entityType := c.DefaultQuery("entity_type", model.EntityTypeSeller)

	entityID := actor.ID
	if idStr := c.Query("entity_id"); idStr != "" {
		if parsed, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			entityID = parsed
		}
	}

	var balance decimal.Decimal
	var err error
	if entityType == "buyer" {
		balance, err = h.balanceRepo.GetBuyerRefund(c.Request.Context(), entityID)
	} else {
		balance, err = h.balanceRepo.Get(c.Request.Context(), entityType, entityID)
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"entity_type": entityType,
		"entity_id":   entityID,
		"balance":     balance,
	})
}
