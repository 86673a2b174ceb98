package routes

import (
	"gebeya/app/http/controllers/api/v1/payments"
	"gebeya/app/http/controllers/api/v1/push"
	"gebeya/app/http/controllers/api/v1/webhooks"
	"gebeya/app/http/middlewares"
	"gebeya/app/repositories"
	"gebeya/pkg/hub"
	"gebeya/pkg/paygate"
	"gebeya/pkg/queue"
	"gebeya/pkg/reconcile"

	"github.com/gin-gonic/gin"
)

// 路由限流配置
const (
	// 🌍 全局限流：每小时每IP 30000 请求
	GlobalRateLimit = "30000-H"
	// 💳 发起支付限流：每小时每IP 200 请求
	InitializeLimit = "200-H"
	// 🔍 核账查询限流：每分钟每IP 300 请求
	VerifyLimit = "300-M"
	// 📨 webhook 限流：每分钟每IP 600 请求
	WebhookLimit = "600-M"
)

// Services 路由层依赖的共享服务，由 bootstrap 组装
type Services struct {
	Gateway *paygate.Registry
	Repo    *repositories.PaymentRepository
	Engine  *reconcile.Engine
	Queue   *queue.QueueService
	Hub     *hub.Registry
}

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine, svc *Services) {
	v1 := r.Group("/v1")

	v1.Use(
		middlewares.SecurityHeaders(),
		middlewares.LimitIP(GlobalRateLimit),
		middlewares.Cors(),
	)

	// 💳 支付相关路由
	paymentRoutes := v1.Group("/payments")
	{
		pc := payments.NewPaymentsController(svc.Gateway, svc.Repo, svc.Engine)
		wc := webhooks.NewWebhooksController(svc.Gateway, svc.Queue)

		// 📝 发起支付
		// POST /v1/payments/:provider/initialize
		paymentRoutes.POST("/:provider/initialize",
			middlewares.LimitIP(InitializeLimit),
			pc.Initialize,
		)

		// 🔍 主动核账（买家回跳后调用，与 webhook 幂等汇聚）
		// GET /v1/payments/verify?provider=&reference=
		paymentRoutes.GET("/verify",
			middlewares.LimitIP(VerifyLimit),
			pc.Verify,
		)

		// 📨 供应商回调，验签后入队异步对账
		// POST /v1/payments/:provider/webhook
		paymentRoutes.POST("/:provider/webhook",
			middlewares.LimitIP(WebhookLimit),
			wc.Handle,
		)

		// 📊 卖家支付列表，推送不可用时的轮询兜底
		// GET /v1/payments/seller/:seller_id
		paymentRoutes.GET("/seller/:seller_id",
			middlewares.AuthJWT(),
			pc.SellerPayments,
		)

		// 🛡 管理端全量列表
		// GET /v1/payments/admin/all?status=&provider=
		paymentRoutes.GET("/admin/all",
			middlewares.AuthJWT(),
			middlewares.AuthAdmin(),
			pc.AdminPayments,
		)

		// 💸 管理员标记退款
		// POST /v1/payments/admin/:reference/refund
		paymentRoutes.POST("/admin/:reference/refund",
			middlewares.AuthJWT(),
			middlewares.AuthAdmin(),
			pc.Refund,
		)
	}

	// 📡 推送通道
	// GET /v1/ws?token=
	{
		sc := push.NewPushController(svc.Hub)
		v1.GET("/ws", sc.Connect)
	}
}
