// Package reconcile 对账引擎
//
// 以 provider_reference 为对账键，把供应商侧的交易真相归一化后幂等地
// 落进本地支付记录。webhook 和客户端 verify 两个入口都汇聚到这里，
// 状态发生变化时通过注入的 Notifier 发出通知，两条入口共用同一发射点。
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gebeya/app/models/payment"
	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
)

// Repository 支付记录的窄接口，存储层只通过它被消费
type Repository interface {
	Create(ctx context.Context, p *payment.Payment) error
	Save(ctx context.Context, p *payment.Payment) error
	// GetByReference 不存在时返回 (nil, nil)
	GetByReference(ctx context.Context, reference string) (*payment.Payment, error)
}

// Notifier 状态变化时的通知出口
type Notifier interface {
	NotifyPaymentUpdated(p *payment.Payment, buyerID, sellerID string)
}

// Outcome 一次对账的结果
type Outcome struct {
	Payment        *payment.Payment
	Verification   *paygate.NormalizedVerification
	PreviousStatus payment.Status // 新建记录时为空串
	StatusChanged  bool
}

// Engine 对账引擎
type Engine struct {
	registry        *paygate.Registry
	repo            Repository
	notifier        Notifier // 可为 nil（如离线工具）
	defaultCurrency string
	timeout         time.Duration

	// 同一对账键的读改写必须串行，两个并发对账不允许产生两条记录
	// 存储层的唯一索引是多实例部署时的兜底
	locks sync.Map // reference -> *sync.Mutex
}

// NewEngine 创建对账引擎
func NewEngine(registry *paygate.Registry, repo Repository, notifier Notifier, defaultCurrency string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if defaultCurrency == "" {
		defaultCurrency = "ETB"
	}
	return &Engine{
		registry:        registry,
		repo:            repo,
		notifier:        notifier,
		defaultCurrency: defaultCurrency,
		timeout:         timeout,
	}
}

// Reconcile 核账并更新本地记录
//
// 调用方取消不会中断落库：支付真相不依赖发起方是否还在线，
// 所以这里会脱离调用方的取消信号，只保留引擎自身的超时上界。
// 适配器层的错误原样向上传递，由入口各自翻译。
func (e *Engine) Reconcile(ctx context.Context, provider paygate.Provider, reference string) (*Outcome, error) {
	adapter, err := e.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	verification, err := adapter.Verify(detached, reference)
	if err != nil {
		return nil, err
	}

	outcome, err := e.apply(detached, provider, reference, verification)
	if err != nil {
		return nil, err
	}

	// 通知在临界区之外发出，推送失败不影响对账结果
	if e.notifier != nil && outcome.StatusChanged {
		e.notifier.NotifyPaymentUpdated(outcome.Payment, outcome.Payment.BuyerID, outcome.Payment.SellerID)
	}

	return outcome, nil
}

// apply 在对账键级别的临界区里完成读改写
func (e *Engine) apply(ctx context.Context, provider paygate.Provider, reference string, v *paygate.NormalizedVerification) (*Outcome, error) {
	mu := e.lockFor(reference)
	mu.Lock()
	defer mu.Unlock()

	newStatus := payment.StatusFailed
	if v.Succeeded {
		newStatus = payment.StatusSuccess
	}

	currency := v.Currency
	if currency == "" {
		currency = e.defaultCurrency
	}

	if v.AmountMinor <= 0 {
		// 零金额不应出现在正常交易里，记 0 并告警
		logger.Warn("Reconcile", zap.String("reference", reference), zap.Int64("amount", v.AmountMinor), zap.String("anomaly", "non-positive amount"))
		v.AmountMinor = 0
	}

	existing, err := e.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load payment %s: %w", reference, err)
	}

	if existing == nil {
		return e.createRecord(ctx, provider, reference, v, newStatus, currency)
	}
	return e.updateRecord(ctx, existing, v, newStatus, currency)
}

// createRecord webhook 先于 initialize 到达时没有在途记录，直接按核账结果建档
// buyer/seller 此时为空，待后续上下文回填
func (e *Engine) createRecord(ctx context.Context, provider paygate.Provider, reference string, v *paygate.NormalizedVerification, newStatus payment.Status, currency string) (*Outcome, error) {
	p := &payment.Payment{
		Provider:          string(provider),
		ProviderReference: reference,
		Amount:            v.AmountMinor,
		Currency:          currency,
		Status:            string(newStatus),
		ProviderMeta:      metaFromVerification(v),
	}
	if newStatus == payment.StatusSuccess {
		now := time.Now()
		p.PayAt = &now
	}

	if err := e.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("reconcile: create payment %s: %w", reference, err)
	}

	return &Outcome{
		Payment:        p,
		Verification:   v,
		PreviousStatus: "",
		StatusChanged:  true,
	}, nil
}

// updateRecord 按核账结果更新可变字段，身份字段永不改写
func (e *Engine) updateRecord(ctx context.Context, p *payment.Payment, v *paygate.NormalizedVerification, newStatus payment.Status, currency string) (*Outcome, error) {
	prev := payment.Status(p.Status)
	meta := metaFromVerification(v)

	// refunded 是管理员写下的真相，引擎不再自动迁移，只刷新审计载荷
	if prev == payment.StatusRefunded {
		p.ProviderMeta = meta
		if err := e.repo.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("reconcile: save payment %s: %w", p.ProviderReference, err)
		}
		return &Outcome{Payment: p, Verification: v, PreviousStatus: prev, StatusChanged: false}, nil
	}

	// 两次对账观察到不同终态：数据完整性告警，保留最近一次观察并留痕，
	// 不做启发式裁决
	if prev != newStatus && prev != payment.StatusPending && !payment.CanTransition(prev, newStatus) {
		logger.Error("Reconcile",
			zap.String("alert", "status conflict"),
			zap.String("reference", p.ProviderReference),
			zap.String("prior", string(prev)),
			zap.String("observed", string(newStatus)),
		)
		meta["status_conflict"] = map[string]interface{}{
			"prior":       string(prev),
			"observed":    string(newStatus),
			"recorded_at": time.Now().Format(time.RFC3339),
		}
	}

	// 已成功的单子金额/货币对不上同样是完整性问题：上报并保留原值，
	// 不做静默覆盖
	if prev == payment.StatusSuccess && (p.Amount != v.AmountMinor || p.Currency != currency) {
		logger.Error("Reconcile",
			zap.String("alert", "amount mismatch after success"),
			zap.String("reference", p.ProviderReference),
			zap.Int64("stored_amount", p.Amount),
			zap.Int64("observed_amount", v.AmountMinor),
			zap.String("stored_currency", p.Currency),
			zap.String("observed_currency", currency),
		)
		meta["amount_mismatch"] = map[string]interface{}{
			"observed_amount":   v.AmountMinor,
			"observed_currency": currency,
			"recorded_at":       time.Now().Format(time.RFC3339),
		}
	} else {
		p.Amount = v.AmountMinor
		p.Currency = currency
	}

	p.Status = string(newStatus)
	p.ProviderMeta = meta
	if newStatus == payment.StatusSuccess && p.PayAt == nil {
		now := time.Now()
		p.PayAt = &now
	}

	if err := e.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("reconcile: save payment %s: %w", p.ProviderReference, err)
	}

	return &Outcome{
		Payment:        p,
		Verification:   v,
		PreviousStatus: prev,
		StatusChanged:  prev != newStatus,
	}, nil
}

// lockFor 获取对账键对应的互斥锁
func (e *Engine) lockFor(reference string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(reference, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// metaFromVerification 供应商原始响应整体落入 provider_meta，每次对账全量覆盖
func metaFromVerification(v *paygate.NormalizedVerification) payment.JSON {
	return payment.JSON{
		"succeeded":      v.Succeeded,
		"raw_status":     v.RawStatus,
		"amount_minor":   v.AmountMinor,
		"currency":       v.Currency,
		"provider_tx_id": v.ProviderTxID,
		"raw":            v.Raw,
	}
}
