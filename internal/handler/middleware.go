package handler

import (
	"log"
	"strconv"
	"time"

	"tixmarket/internal/model"
	"tixmarket/internal/service"
	"tixmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

const actorContextKey = "actor"

// PrincipalMiddleware 身份注入中间件
//
// 身份认证由上游网关完成，这里只消费网关注入的头：
//
//	X-User-ID   操作者ID
//	X-User-Role buyer|seller|admin
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			response.Error(c, response.CodeUnauthorized, "缺少有效的用户身份")
			c.Abort()
			return
		}

		role := c.GetHeader("X-User-Role")
		switch role {
		case model.RoleBuyer, model.RoleSeller, model.RoleAdmin:
		default:
			response.Error(c, response.CodeUnauthorized, "用户角色不合法")
			c.Abort()
			return
		}

		c.Set(actorContextKey, service.Actor{ID: userID, Role: role})
		c.Next()
	}
}

// CurrentActor 取出当前请求的操作者（必须在 PrincipalMiddleware 之后）
func CurrentActor(c *gin.Context) service.Actor {
	actor, _ := c.Get(actorContextKey)
	a, ok := actor.(service.Actor)
	if !ok {
		return service.Actor{}
	}
	return a
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID, X-User-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
