package payments

import (
	"errors"
	"math"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gebeya/app/http/middlewares"
	"gebeya/app/models/payment"
	"gebeya/app/models/user"
	"gebeya/app/repositories"
	"gebeya/app/requests"
	"gebeya/pkg/config"
	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
	"gebeya/pkg/paygate/utils"
	"gebeya/pkg/reconcile"
	"gebeya/pkg/response"
	"gorm.io/gorm"
)

type PaymentsController struct {
	registry *paygate.Registry
	repo     *repositories.PaymentRepository
	engine   *reconcile.Engine
}

// NewPaymentsController 创建支付控制器
func NewPaymentsController(registry *paygate.Registry, repo *repositories.PaymentRepository, engine *reconcile.Engine) *PaymentsController {
	return &PaymentsController{
		registry: registry,
		repo:     repo,
		engine:   engine,
	}
}

// Initialize 发起支付，返回收银台跳转地址和对账键
func (pc *PaymentsController) Initialize(c *gin.Context) {
	provider := c.Param("provider")
	adapter, err := pc.registry.Get(paygate.Provider(provider))
	if err != nil {
		response.AbortWithReason(c, 400, "provider_unsupported", "不支持的支付渠道")
		return
	}

	request := requests.PaymentInitializeRequest{}
	if ok := requests.Validate(c, &request, requests.PaymentInitialize); !ok {
		return
	}

	currency := request.Currency
	if currency == "" {
		currency = config.GetString("payment.default_currency", "ETB")
	}

	// 对账键由本系统生成，供应商侧以它建单
	reference := utils.GenerateTxRef()
	amountMinor := int64(math.Round(request.Amount * 100))

	result, err := adapter.Initialize(c.Request.Context(), paygate.InitializeRequest{
		Reference:    reference,
		AmountMinor:  amountMinor,
		Currency:     currency,
		PayerContact: request.PayerContact,
		ReturnURL:    request.ReturnURL,
	})
	if err != nil {
		pc.abortProviderError(c, err)
		return
	}

	// 供应商侧已建单，本地记 pending 在途记录
	p := &payment.Payment{
		Provider:          provider,
		ProviderReference: reference,
		Amount:            amountMinor,
		Currency:          currency,
		Status:            string(payment.StatusPending),
		ListingID:         request.ListingID,
		BuyerID:           request.BuyerID,
		SellerID:          request.SellerID,
	}
	if err := pc.repo.Create(c.Request.Context(), p); err != nil {
		logger.Error("Payments", zap.String("action", "initialize"), zap.String("reference", reference), zap.Error(err))
		response.ServerError(c, err, "支付记录创建失败")
		return
	}

	response.Created(c, gin.H{
		"reference":    result.Reference,
		"redirect_url": result.RedirectURL,
	})
}

// Verify 主动核账入口，买家回跳后前端调用
// 与 webhook 汇聚到同一对账引擎，重复调用幂等
func (pc *PaymentsController) Verify(c *gin.Context) {
	provider := c.Query("provider")
	reference := c.Query("reference")
	if provider == "" || reference == "" {
		response.Abort400(c, "provider 和 reference 为必填参数")
		return
	}

	outcome, err := pc.engine.Reconcile(c.Request.Context(), paygate.Provider(provider), reference)
	if err != nil {
		pc.abortProviderError(c, err)
		return
	}

	response.Data(c, gin.H{
		"payment":        outcome.Payment,
		"verification":   outcome.Verification,
		"status_changed": outcome.StatusChanged,
	})
}

// SellerPayments 卖家维度的支付列表，按创建时间倒序
// 推送通道不可用时的轮询兜底。卖家只能看自己的，管理员不受限
func (pc *PaymentsController) SellerPayments(c *gin.Context) {
	sellerID := c.Param("seller_id")

	role := c.GetString(middlewares.CtxIdentityRole)
	if role != string(user.RoleAdmin) && c.GetString(middlewares.CtxIdentityID) != sellerID {
		response.AbortWithReason(c, 403, "forbidden", "只能查看本人的支付记录")
		return
	}

	payments, err := pc.repo.ListBySeller(c.Request.Context(), sellerID)
	if err != nil {
		response.ServerError(c, err, "支付列表查询失败")
		return
	}

	response.Data(c, gin.H{
		"payments": payments,
	})
}

// AdminPayments 管理端全量列表，支持 status/provider 过滤
func (pc *PaymentsController) AdminPayments(c *gin.Context) {
	status := c.Query("status")
	provider := c.Query("provider")

	payments, total, counts, err := pc.repo.ListAdmin(c.Request.Context(), status, provider)
	if err != nil {
		response.ServerError(c, err, "支付列表查询失败")
		return
	}

	response.Data(c, gin.H{
		"payments":         payments,
		"total":            total,
		"counts_by_status": counts,
	})
}

// Refund 管理员标记退款，仅 success 状态可退
func (pc *PaymentsController) Refund(c *gin.Context) {
	reference := c.Param("reference")

	p, err := pc.repo.MarkRefunded(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Abort404(c, "支付记录不存在")
			return
		}
		if errors.Is(err, repositories.ErrNotRefundable) {
			response.AbortWithReason(c, 409, "not_refundable", "当前状态不可退款")
			return
		}
		response.ServerError(c, err, "退款标记失败")
		return
	}

	response.Data(c, gin.H{
		"reference": p.ProviderReference,
		"status":    p.Status,
	})
}

// abortProviderError 把适配器错误翻译为稳定的 HTTP 语义
func (pc *PaymentsController) abortProviderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, paygate.ErrProviderUnsupported):
		response.AbortWithReason(c, 400, "provider_unsupported", "不支持的支付渠道")
	case errors.Is(err, paygate.ErrProviderUnavailable):
		response.AbortWithReason(c, 503, "provider_unavailable", "支付渠道暂不可用，请稍后重试")
	case errors.Is(err, paygate.ErrProviderResponseInvalid):
		response.AbortWithReason(c, 502, "provider_response_invalid", "支付渠道响应异常")
	default:
		response.ServerError(c, err)
	}
}
