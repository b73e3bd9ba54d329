package handler

import (
	"tixmarket/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// 渠道侧入口：webhook / 浏览器跳转回调，不走身份中间件
	r.POST("/webhooks/:provider", h.PaymentWebhook)
	r.POST("/webhooks/:provider/payout", h.PayoutWebhook)
	r.GET("/payments/callback/:provider", h.PaymentCallback)

	// API 路由组（网关注入身份）
	api := r.Group("/api/v1")
	api.Use(PrincipalMiddleware())
	{
		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/checkout", h.Checkout)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.GET("/history", h.GetOrderHistory)
			order.POST("/status", h.TransitionStatus)
			order.POST("/confirm", h.ConfirmReceipt)
			order.POST("/cancel", h.CancelOrder)
		}

		// 提现相关
		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/create", h.CreateWithdrawal)
			withdrawal.GET("/detail", h.GetWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}

		// 退款相关
		refund := api.Group("/refund")
		{
			refund.POST("/create", h.CreateRefund)
			refund.GET("/list", h.ListRefunds)
		}

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/withdrawal/override", h.OverrideWithdrawal)
			admin.POST("/refund/resolve", h.ResolveRefund)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
