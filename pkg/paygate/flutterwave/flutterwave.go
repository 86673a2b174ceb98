// Package flutterwave Flutterwave 支付适配器
//
// Flutterwave 的金额同样是主单位浮点数，成功状态字符串为 "successful"，
// 与 Chapa 的 "success" 不同——这种差异只允许存在于适配器内部。
// webhook 以 verif-hash 头携带商户侧预共享的校验串。
package flutterwave

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
)

// Config Flutterwave 适配器配置
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Flutterwave 适配器实现
type Flutterwave struct {
	client        *resty.Client
	webhookSecret string
}

// New 创建 Flutterwave 适配器
func New(cfg Config) *Flutterwave {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Flutterwave{
		client:        client,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name 实现 paygate.Adapter
func (f *Flutterwave) Name() paygate.Provider {
	return paygate.ProviderFlutterwave
}

type initRequest struct {
	TxRef       string       `json:"tx_ref"`
	Amount      string       `json:"amount"`
	Currency    string       `json:"currency"`
	RedirectURL string       `json:"redirect_url"`
	Customer    initCustomer `json:"customer"`
}

type initCustomer struct {
	Email string `json:"email"`
}

type initResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

type verifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID       int64   `json:"id"`
		TxRef    string  `json:"tx_ref"`
		FlwRef   string  `json:"flw_ref"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Status   string  `json:"status"`
	} `json:"data"`
}

// Initialize 发起交易，拿收银台跳转地址
func (f *Flutterwave) Initialize(ctx context.Context, req paygate.InitializeRequest) (*paygate.InitializeResult, error) {
	body := initRequest{
		TxRef:       req.Reference,
		Amount:      fmt.Sprintf("%.2f", float64(req.AmountMinor)/100),
		Currency:    req.Currency,
		RedirectURL: req.ReturnURL,
		Customer:    initCustomer{Email: req.PayerContact},
	}

	var result initResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/payments")
	if err != nil {
		return nil, fmt.Errorf("%w: flutterwave initialize: %v", paygate.ErrProviderUnavailable, err)
	}

	if resp.IsError() || result.Status != "success" || result.Data.Link == "" {
		logger.ErrorString("Flutterwave", "Initialize", fmt.Sprintf("ref=%s status=%s body=%s", req.Reference, resp.Status(), resp.String()))
		return nil, fmt.Errorf("%w: flutterwave initialize: %s", paygate.ErrProviderResponseInvalid, result.Message)
	}

	return &paygate.InitializeResult{
		Reference:   req.Reference,
		RedirectURL: result.Data.Link,
	}, nil
}

// Verify 拉取交易真相并归一化
func (f *Flutterwave) Verify(ctx context.Context, reference string) (*paygate.NormalizedVerification, error) {
	var result verifyResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("tx_ref", reference).
		SetResult(&result).
		Get("/transactions/verify_by_reference")
	if err != nil {
		return nil, fmt.Errorf("%w: flutterwave verify %s: %v", paygate.ErrProviderUnavailable, reference, err)
	}

	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: flutterwave verify %s: status %s", paygate.ErrProviderUnavailable, reference, resp.Status())
	}

	if resp.IsError() || result.Data.Status == "" {
		logger.ErrorString("Flutterwave", "Verify", fmt.Sprintf("ref=%s status=%s body=%s", reference, resp.Status(), resp.String()))
		return nil, fmt.Errorf("%w: flutterwave verify %s", paygate.ErrProviderResponseInvalid, reference)
	}

	providerTxID := result.Data.FlwRef
	if providerTxID == "" {
		providerTxID = result.Data.TxRef
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(resp.Body(), &raw)

	return &paygate.NormalizedVerification{
		Succeeded:    result.Data.Status == "successful",
		RawStatus:    result.Data.Status,
		AmountMinor:  int64(math.Round(result.Data.Amount * 100)),
		Currency:     result.Data.Currency,
		ProviderTxID: providerTxID,
		Raw:          raw,
	}, nil
}

// SignatureHeader webhook 签名所在的 HTTP 头
func (f *Flutterwave) SignatureHeader() string {
	return "verif-hash"
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef string `json:"tx_ref"`
	} `json:"data"`
}

// AuthenticateWebhook 校验 verif-hash 并提取对账键
func (f *Flutterwave) AuthenticateWebhook(signature string, body []byte) (string, error) {
	if signature == "" {
		return "", fmt.Errorf("%w: missing verif-hash header", paygate.ErrWebhookAuth)
	}

	if subtle.ConstantTimeCompare([]byte(signature), []byte(f.webhookSecret)) != 1 {
		return "", fmt.Errorf("%w: invalid verif-hash", paygate.ErrWebhookAuth)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: flutterwave webhook body: %v", paygate.ErrProviderResponseInvalid, err)
	}
	if payload.Data.TxRef == "" {
		return "", fmt.Errorf("%w: flutterwave webhook missing tx_ref", paygate.ErrProviderResponseInvalid)
	}
	return payload.Data.TxRef, nil
}
