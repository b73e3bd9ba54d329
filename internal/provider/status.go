package provider

import (
	"strings"

	"tixmarket/internal/model"
)

// ============================================================================
// 渠道状态归一化
// ============================================================================
//
// 渠道方的状态词汇五花八门（SUCCESS / SETTLED / TXN_SUCCESSFUL ...），
// 这里是唯一的翻译入口。查不到的词一律归 pending —— 宁可挂起等人工对账，
// 也不能让未知词汇误把订单推到终态。
//
// ============================================================================

var statusMapping = map[string]string{
	// 成功
	"SUCCESS":        model.PaymentStatusCompleted,
	"SUCCESSFUL":     model.PaymentStatusCompleted,
	"COMPLETE":       model.PaymentStatusCompleted,
	"COMPLETED":      model.PaymentStatusCompleted,
	"SETTLED":        model.PaymentStatusCompleted,
	"PAID":           model.PaymentStatusCompleted,
	"TXN_SUCCESSFUL": model.PaymentStatusCompleted,

	// 失败
	"FAILED":       model.PaymentStatusFailed,
	"FAILURE":      model.PaymentStatusFailed,
	"ERROR":        model.PaymentStatusFailed,
	"DECLINED":     model.PaymentStatusFailed,
	"REJECTED":     model.PaymentStatusFailed,
	"INSUFFICIENT": model.PaymentStatusFailed,

	// 取消/过期
	"CANCELLED": model.PaymentStatusCancelled,
	"CANCELED":  model.PaymentStatusCancelled,
	"EXPIRED":   model.PaymentStatusCancelled,
	"TIMEOUT":   model.PaymentStatusCancelled,

	// 冲正/退款
	"REVERSED":   model.PaymentStatusRefunded,
	"REFUNDED":   model.PaymentStatusRefunded,
	"CHARGEBACK": model.PaymentStatusRefunded,

	// 进行中
	"PROCESSING":           model.PaymentStatusProcessing,
	"IN_PROGRESS":          model.PaymentStatusProcessing,
	"PENDING_CONFIRMATION": model.PaymentStatusProcessing,

	"PENDING": model.PaymentStatusPending,
	"CREATED": model.PaymentStatusPending,
	"NEW":     model.PaymentStatusPending,
}

// Normalize 渠道原始状态 -> 内部统一支付状态
func Normalize(rawStatus string) string {
	key := strings.ToUpper(strings.TrimSpace(rawStatus))
	if status, ok := statusMapping[key]; ok {
		return status
	}
	return model.PaymentStatusPending
}
