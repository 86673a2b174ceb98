package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gebeya/app/models/payment"
	"gebeya/pkg/database"
)

// ErrNotRefundable 仅 success 状态可退款
var ErrNotRefundable = errors.New("payment is not refundable")

// PaymentRepository 支付记录仓库
// provider_reference 上有唯一索引，对账写入永远是按它的 upsert，不做盲插
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建仓库实例
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		db: database.DB,
	}
}

// NewPaymentRepositoryWithDB 指定连接创建仓库，测试用
func NewPaymentRepositoryWithDB(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 创建支付记录
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Save 更新支付记录
func (r *PaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// GetByReference 根据对账键获取支付记录，不存在时返回 (nil, nil)
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("provider_reference = ?", reference).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListBySeller 卖家维度的支付列表，按创建时间倒序
// 轮询兜底通道依赖这里的稳定排序做客户端 diff
func (r *PaymentRepository) ListBySeller(ctx context.Context, sellerID string) ([]payment.Payment, error) {
	var payments []payment.Payment
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// ListAdmin 管理端全量列表，支持状态和供应商过滤，附带总数与各状态计数
func (r *PaymentRepository) ListAdmin(ctx context.Context, status, provider string) ([]payment.Payment, int64, map[string]int64, error) {
	query := r.db.WithContext(ctx).Model(&payment.Payment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	// 同一组条件跑两条查询，开新 Session 避免语句污染
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, nil, err
	}

	var payments []payment.Payment
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, 0, nil, err
	}

	counts, err := r.CountsByStatus(ctx)
	if err != nil {
		return nil, 0, nil, err
	}

	return payments, total, counts, nil
}

// CountsByStatus 各状态的记录数
func (r *PaymentRepository) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, item := range rows {
		counts[item.Status] = item.Count
	}
	return counts, nil
}

// MarkRefunded 管理员退款入口，只允许 success -> refunded
func (r *PaymentRepository) MarkRefunded(ctx context.Context, reference string) (*payment.Payment, error) {
	p, err := r.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if !payment.CanTransition(payment.Status(p.Status), payment.StatusRefunded) {
		return nil, fmt.Errorf("%w: status=%s", ErrNotRefundable, p.Status)
	}

	p.Status = string(payment.StatusRefunded)
	if err := r.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
