package webhooks

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
	"gebeya/pkg/queue"
	"gebeya/pkg/response"
)

type WebhooksController struct {
	registry *paygate.Registry
	queue    *queue.QueueService
}

// NewWebhooksController 创建 webhook 控制器
func NewWebhooksController(registry *paygate.Registry, q *queue.QueueService) *WebhooksController {
	return &WebhooksController{
		registry: registry,
		queue:    q,
	}
}

// Handle 供应商回调入口
//
// 只做两件事：验签、入队。真正的对账由队列 worker 异步完成，
// 入队成功即回 200，避免供应商因我们内部故障而重试风暴。
// 验签失败回 401，报文一律不入队。
func (wc *WebhooksController) Handle(c *gin.Context) {
	provider := c.Param("provider")

	adapter, err := wc.registry.Get(paygate.Provider(provider))
	if err != nil {
		response.AbortWithReason(c, 400, "provider_unsupported", "不支持的支付渠道")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Abort400(c, "读取请求体失败")
		return
	}

	signature := c.GetHeader(adapter.SignatureHeader())
	reference, err := adapter.AuthenticateWebhook(signature, body)
	if err != nil {
		if errors.Is(err, paygate.ErrWebhookAuth) {
			logger.WarnString("Webhook", "Auth", provider+": "+err.Error())
			response.AbortWithReason(c, 401, "webhook_auth_failed", "签名校验失败")
			return
		}
		// 签名合法但报文取不出对账键，无法继续
		logger.ErrorString("Webhook", "Payload", provider+": "+err.Error())
		response.AbortWithReason(c, 400, "webhook_payload_invalid", "回调报文无法解析")
		return
	}

	task := &queue.WebhookTask{
		ID:         uuid.NewString(),
		Provider:   provider,
		Reference:  reference,
		ReceivedAt: time.Now(),
	}
	if err := wc.queue.PushTask(c.Request.Context(), task); err != nil {
		// 入队失败仍回 200：供应商会按自己的策略重发，
		// 客户端 verify 入口也能兜住这次丢失
		logger.Error("Webhook",
			zap.String("action", "enqueue"),
			zap.String("provider", provider),
			zap.String("reference", reference),
			zap.Error(err),
		)
	}

	response.JSON(c, gin.H{"status": "ok"})
}
