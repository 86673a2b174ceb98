// Package chapa Chapa 支付适配器
//
// Chapa 的金额是主单位的浮点数（如 500.00 ETB），这里统一换算为最小单位；
// 成功状态字符串为 "success"。webhook 以 Chapa-Signature 头携带
// HMAC-SHA256(body, webhook_secret) 的十六进制摘要。
package chapa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
)

// Config Chapa 适配器配置
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Chapa 适配器实现
type Chapa struct {
	client        *resty.Client
	webhookSecret string
}

// New 创建 Chapa 适配器
func New(cfg Config) *Chapa {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Chapa{
		client:        client,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name 实现 paygate.Adapter
func (c *Chapa) Name() paygate.Provider {
	return paygate.ProviderChapa
}

// initRequest Chapa 建单请求体，金额要求字符串
type initRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Email     string `json:"email"`
	TxRef     string `json:"tx_ref"`
	ReturnURL string `json:"return_url"`
}

// initResponse Chapa 建单响应
type initResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// verifyResponse Chapa 核账响应
type verifyResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Data    struct {
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		Status    string  `json:"status"`
		TxRef     string  `json:"tx_ref"`
		Reference string  `json:"reference"` // Chapa 侧交易号
	} `json:"data"`
}

// Initialize 发起交易，拿收银台跳转地址
// 有供应商侧副作用，调用方需先按 Reference 去重
func (c *Chapa) Initialize(ctx context.Context, req paygate.InitializeRequest) (*paygate.InitializeResult, error) {
	body := initRequest{
		Amount:    fmt.Sprintf("%.2f", float64(req.AmountMinor)/100),
		Currency:  req.Currency,
		Email:     req.PayerContact,
		TxRef:     req.Reference,
		ReturnURL: req.ReturnURL,
	}

	var result initResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/transaction/initialize")
	if err != nil {
		return nil, fmt.Errorf("%w: chapa initialize: %v", paygate.ErrProviderUnavailable, err)
	}

	if resp.IsError() || result.Status != "success" || result.Data.CheckoutURL == "" {
		logger.ErrorString("Chapa", "Initialize", fmt.Sprintf("ref=%s status=%s body=%s", req.Reference, resp.Status(), resp.String()))
		return nil, fmt.Errorf("%w: chapa initialize: %s", paygate.ErrProviderResponseInvalid, result.Message)
	}

	return &paygate.InitializeResult{
		Reference:   req.Reference,
		RedirectURL: result.Data.CheckoutURL,
	}, nil
}

// Verify 拉取交易真相并归一化
func (c *Chapa) Verify(ctx context.Context, reference string) (*paygate.NormalizedVerification, error) {
	var result verifyResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/transaction/verify/" + reference)
	if err != nil {
		return nil, fmt.Errorf("%w: chapa verify %s: %v", paygate.ErrProviderUnavailable, reference, err)
	}

	// 5xx 视为供应商暂不可用，可重试
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: chapa verify %s: status %s", paygate.ErrProviderUnavailable, reference, resp.Status())
	}

	if resp.IsError() || result.Data.Status == "" {
		// 原始报文落日志供审计
		logger.ErrorString("Chapa", "Verify", fmt.Sprintf("ref=%s status=%s body=%s", reference, resp.Status(), resp.String()))
		return nil, fmt.Errorf("%w: chapa verify %s", paygate.ErrProviderResponseInvalid, reference)
	}

	providerTxID := result.Data.Reference
	if providerTxID == "" {
		providerTxID = result.Data.TxRef
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(resp.Body(), &raw)

	return &paygate.NormalizedVerification{
		Succeeded:    result.Data.Status == "success",
		RawStatus:    result.Data.Status,
		AmountMinor:  int64(math.Round(result.Data.Amount * 100)),
		Currency:     result.Data.Currency,
		ProviderTxID: providerTxID,
		Raw:          raw,
	}, nil
}

// SignatureHeader webhook 签名所在的 HTTP 头
func (c *Chapa) SignatureHeader() string {
	return "Chapa-Signature"
}

// webhookPayload Chapa 回调报文里需要的字段
type webhookPayload struct {
	TxRef  string `json:"tx_ref"`
	TrxRef string `json:"trx_ref"` // Chapa 的另一种回调风格
}

// AuthenticateWebhook 校验 Chapa-Signature 并提取对账键
func (c *Chapa) AuthenticateWebhook(signature string, body []byte) (string, error) {
	if signature == "" {
		return "", fmt.Errorf("%w: missing Chapa-Signature header", paygate.ErrWebhookAuth)
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", fmt.Errorf("%w: invalid Chapa signature", paygate.ErrWebhookAuth)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: chapa webhook body: %v", paygate.ErrProviderResponseInvalid, err)
	}

	reference := payload.TxRef
	if reference == "" {
		reference = payload.TrxRef
	}
	if reference == "" {
		return "", fmt.Errorf("%w: chapa webhook missing tx_ref", paygate.ErrProviderResponseInvalid)
	}
	return reference, nil
}
