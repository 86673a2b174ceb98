// Package paygate 定义支付网关的适配器契约
//
// 每个供应商的响应差异（字段名、成功状态字符串、金额单位）全部封装在
// 各自的适配器里，对账引擎只消费这里的归一化结构，绝不感知供应商字段。
package paygate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Provider 支付供应商类型
type Provider string

const (
	ProviderChapa       Provider = "chapa"
	ProviderFlutterwave Provider = "flutterwave"
)

// 错误分类，调用方通过 errors.Is 判断
var (
	// ErrProviderUnavailable 网络或超时故障，可重试
	ErrProviderUnavailable = errors.New("paygate: provider unavailable")

	// ErrProviderResponseInvalid 响应结构不合法，不可重试，原始报文需落日志
	ErrProviderResponseInvalid = errors.New("paygate: provider response invalid")

	// ErrProviderUnsupported 未知供应商，请求在进入适配器前就被拒绝
	ErrProviderUnsupported = errors.New("paygate: provider unsupported")

	// ErrWebhookAuth webhook 签名校验失败
	ErrWebhookAuth = errors.New("paygate: webhook authentication failed")
)

// NormalizedVerification 归一化后的核账结果
// AmountMinor 统一为最小货币单位，由各适配器自行换算
type NormalizedVerification struct {
	Succeeded    bool                   `json:"succeeded"`
	RawStatus    string                 `json:"raw_status"`
	AmountMinor  int64                  `json:"amount_minor"`
	Currency     string                 `json:"currency"`
	ProviderTxID string                 `json:"provider_tx_id"`
	Raw          map[string]interface{} `json:"raw,omitempty"` // 供应商原始响应，审计用
}

// InitializeRequest 发起交易的入参
type InitializeRequest struct {
	Reference    string // 本系统生成的对账键
	AmountMinor  int64  // 最小货币单位
	Currency     string
	PayerContact string // 邮箱或手机号，供应商收银台使用
	ReturnURL    string
}

// InitializeResult 发起交易的结果
type InitializeResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

// Adapter 支付供应商适配器接口
//
// Initialize 有外部副作用（供应商侧建单），调用方必须先以 Reference 去重，
// 不可盲目重试。Verify 拉取供应商侧的交易真相。
// AuthenticateWebhook 校验回调报文确实来自该供应商，返回对账键，
// 签名取自 SignatureHeader 指定的 HTTP 头。
type Adapter interface {
	Name() Provider
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*NormalizedVerification, error)
	SignatureHeader() string
	AuthenticateWebhook(signature string, body []byte) (reference string, err error)
}

// Registry 适配器注册表，按供应商名称查找
// 调用点只做一次查找，不允许出现按供应商分支的条件链
type Registry struct {
	mu       sync.RWMutex
	adapters map[Provider]Adapter
}

// NewRegistry 创建适配器注册表
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Provider]Adapter),
	}
}

// Register 注册适配器
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get 按名称获取适配器，未知名称返回 ErrProviderUnsupported
func (r *Registry) Get(name Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnsupported, name)
	}
	return adapter, nil
}

// Names 返回已注册的供应商列表
func (r *Registry) Names() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
