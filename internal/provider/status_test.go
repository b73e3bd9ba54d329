package provider

import (
	"testing"

	"tixmarket/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"SUCCESS", model.PaymentStatusCompleted},
		{"TXN_SUCCESSFUL", model.PaymentStatusCompleted},
		{"SETTLED", model.PaymentStatusCompleted},
		{"FAILED", model.PaymentStatusFailed},
		{"DECLINED", model.PaymentStatusFailed},
		{"CANCELLED", model.PaymentStatusCancelled},
		{"EXPIRED", model.PaymentStatusCancelled},
		{"REVERSED", model.PaymentStatusRefunded},
		{"PROCESSING", model.PaymentStatusProcessing},
		{"PENDING", model.PaymentStatusPending},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.raw), "raw=%s", tt.raw)
	}
}

func TestNormalizeCaseAndWhitespace(t *testing.T) {
	// 渠道回传的状态词大小写和空白不可控
	assert.Equal(t, model.PaymentStatusCompleted, Normalize("success"))
	assert.Equal(t, model.PaymentStatusCompleted, Normalize("  Success  "))
	assert.Equal(t, model.PaymentStatusFailed, Normalize("failed\n"))
}

func TestNormalizeUnknownFallsBackToPending(t *testing.T) {
	// 未知词汇绝不能推到终态，一律挂起
	assert.Equal(t, model.PaymentStatusPending, Normalize("SOMETHING_NEW"))
	assert.Equal(t, model.PaymentStatusPending, Normalize(""))
	assert.Equal(t, model.PaymentStatusPending, Normalize("银行处理中"))
}
