package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tixmarket/internal/model"

	"gorm.io/gorm"
)

// 服务层公共错误
var (
	ErrForbidden        = errors.New("无权执行该操作")
	ErrInvalidSignature = errors.New("webhook 签名校验失败")
	ErrInvalidPayload   = errors.New("回调报文解析失败")
)

// writeNotify 把通知事件写进发件箱（与业务变更同一个事务）
//
// 邮件/WhatsApp 等通知消费方订阅 Kafka 主题，投递由 OutboxSender 在
// 事务提交后异步完成 —— 通知失败永远不会阻塞业务接口或回滚业务变更。
func writeNotify(ctx context.Context, tx *gorm.DB, outboxRepo outboxStore,
	topic, eventType, key string, payload map[string]interface{}) error {

	body, err := json.Marshal(map[string]interface{}{
		"event":      eventType,
		"payload":    payload,
		"emitted_at": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	return outboxRepo.Create(ctx, tx, msg)
}
