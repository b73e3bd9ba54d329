package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// SandboxAdapter 沙箱渠道
//
// 本地开发和测试环境用，不发真实网络请求：发起即成功返回一组渠道标识，
// 打款结果可以预先设定，webhook 签名用 HMAC-SHA256 校验（与真实渠道一致的约定）。
type SandboxAdapter struct {
	Secret string

	// 预设行为，零值表示全部成功
	InitiateErr  error
	PayoutErr    error
	PayoutStatus string // 为空时返回 PROCESSING
	CheckResult  string // 为空时返回 PENDING
}

func NewSandboxAdapter(secret string) *SandboxAdapter {
	return &SandboxAdapter{Secret: secret}
}

func (a *SandboxAdapter) Name() string {
	return "sandbox"
}

func (a *SandboxAdapter) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	if a.InitiateErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, a.InitiateErr)
	}
	checkoutID := uuid.NewString()
	return &InitiateResult{
		ProviderReference: checkoutID,
		InvoiceID:         "INV-" + uuid.NewString()[:8],
		APIRef:            "SBX-" + req.OrderNo,
		RedirectURL:       "https://sandbox.pay/checkout/" + checkoutID,
		RawStatus:         "PENDING",
	}, nil
}

func (a *SandboxAdapter) CheckStatus(ctx context.Context, providerReference string) (*StatusResult, error) {
	status := a.CheckResult
	if status == "" {
		status = "PENDING"
	}
	return &StatusResult{
		ProviderReference: providerReference,
		RawStatus:         status,
	}, nil
}

func (a *SandboxAdapter) Payout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error) {
	if a.PayoutErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderCall, a.PayoutErr)
	}
	status := a.PayoutStatus
	if status == "" {
		status = "PROCESSING"
	}
	return &PayoutResult{
		ProviderReference: req.Reference,
		RawStatus:         status,
	}, nil
}

// VerifySignature HMAC-SHA256(payload, secret) 的十六进制摘要比对
func (a *SandboxAdapter) VerifySignature(payload []byte, signature string) bool {
	if a.Secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
