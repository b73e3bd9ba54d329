package service

import (
	"testing"

	"tixmarket/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPickString(t *testing.T) {
	body := map[string]interface{}{
		"checkout_id": "chk-1",
		"empty":       "",
		"number":      float64(42), // json 数字不算
	}

	assert.Equal(t, "chk-1", pickString(body, "checkout_id"))
	assert.Equal(t, "chk-1", pickString(body, "missing", "checkout_id"))
	assert.Equal(t, "", pickString(body, "empty"))
	assert.Equal(t, "", pickString(body, "number"))
	assert.Equal(t, "", pickString(body, "missing"))
}

func TestExtractIdentifiers(t *testing.T) {
	// 不同渠道字段名不同，候选键都要能认
	idents := extractIdentifiers(map[string]interface{}{
		"collection_id":     "col-7",
		"account_reference": "ORD2026010112000000000001",
		"tracking_id":       "trk-9",
		"invoice":           "INV-3",
		"api_reference":     "api-5",
	})

	assert.Equal(t, "col-7", idents.CheckoutID)
	assert.Equal(t, "ORD2026010112000000000001", idents.OrderNo)
	assert.Equal(t, "trk-9", idents.Reference)
	assert.Equal(t, "INV-3", idents.InvoiceID)
	assert.Equal(t, "api-5", idents.APIRef)
}

func TestExtractIdentifiersPrimaryKeysWin(t *testing.T) {
	idents := extractIdentifiers(map[string]interface{}{
		"checkout_id":   "primary",
		"collection_id": "secondary",
	})
	assert.Equal(t, "primary", idents.CheckoutID)
}

func TestExtractRawStatus(t *testing.T) {
	assert.Equal(t, "SUCCESS", extractRawStatus(map[string]interface{}{"status": "SUCCESS"}))
	assert.Equal(t, "FAILED", extractRawStatus(map[string]interface{}{"state": "FAILED"}))
	assert.Equal(t, "SETTLED", extractRawStatus(map[string]interface{}{"transaction_status": "SETTLED"}))
	assert.Equal(t, "", extractRawStatus(map[string]interface{}{}))
}

func TestRedirectStatusFor(t *testing.T) {
	assert.Equal(t, "success", redirectStatusFor(model.PaymentStatusCompleted))
	assert.Equal(t, "error", redirectStatusFor(model.PaymentStatusFailed))
	assert.Equal(t, "error", redirectStatusFor(model.PaymentStatusCancelled))
	assert.Equal(t, "pending", redirectStatusFor(model.PaymentStatusPending))
	assert.Equal(t, "pending", redirectStatusFor(model.PaymentStatusProcessing))
}
