package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 支付渠道适配器
// ============================================================================
//
// 三家外部支付渠道的 SDK 各不相同，这里统一收敛成一个接口：
//   - Initiate:        发起代收（买家付款）
//   - CheckStatus:     服务端主动查单（redirect 回调不可信，必须查单确认）
//   - Payout:          发起代付（提现打款）
//   - VerifySignature: webhook 签名校验，校验不过不允许碰数据库
//
// 渠道返回的状态是自由文本，统一经 Normalize 翻译后才能进入业务层，
// 业务代码不允许直接判断渠道原始状态串。
//
// ============================================================================

var (
	ErrAdapterNotFound = errors.New("支付渠道不存在")
	ErrProviderCall    = errors.New("支付渠道调用失败")
)

// InitiateRequest 发起代收
type InitiateRequest struct {
	OrderNo       string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	CustomerPhone string
}

// InitiateResult 渠道返回的各类标识全部保留，供回调匹配链使用
type InitiateResult struct {
	ProviderReference string // checkout_id / collection_id
	InvoiceID         string
	APIRef            string
	RedirectURL       string
	RawStatus         string
	Raw               map[string]interface{}
}

type StatusResult struct {
	ProviderReference string
	RawStatus         string
	Raw               map[string]interface{}
}

// PayoutRequest 发起代付（提现）
type PayoutRequest struct {
	Reference    string // 我方幂等引用，渠道原样回传
	Amount       decimal.Decimal
	Currency     string
	PayoutNumber string
	PayoutName   string
}

type PayoutResult struct {
	ProviderReference string
	RawStatus         string
	Raw               map[string]interface{}
}

type Adapter interface {
	Name() string
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, providerReference string) (*StatusResult, error)
	Payout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error)
	VerifySignature(payload []byte, signature string) bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Adapter)
)

// Register 注册渠道适配器（启动时调用）
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[a.Name()] = a
}

// Get 按渠道名取适配器
func Get(name string) (Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	return a, nil
}
