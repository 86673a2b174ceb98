package push

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gebeya/pkg/hub"
	"gebeya/pkg/jwtauth"
	"gebeya/pkg/logger"
	"gebeya/pkg/response"
)

// upgrader 跨域校验交给 Cors 中间件，这里不再限制 Origin
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 心跳默认参数：服务端定期发 ping，pongWait 内收不到任何帧即判定连接死亡
const (
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 54 * time.Second
	defaultWriteWait  = 10 * time.Second
)

type PushController struct {
	registry *hub.Registry

	// 心跳参数，测试里会压缩到毫秒级
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
}

// NewPushController 创建推送控制器
func NewPushController(registry *hub.Registry) *PushController {
	return &PushController{
		registry:   registry,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPingPeriod,
		writeWait:  defaultWriteWait,
	}
}

// Connect 建立推送连接
//
// 浏览器 WebSocket 不能携带自定义头，凭证走 query 参数。
// 身份校验在升级协议之前完成：校验不过直接回 401，连接不登记。
func (pc *PushController) Connect(c *gin.Context) {
	token := c.Query("token")
	claims, err := jwtauth.ParseToken(token)
	if err != nil {
		response.AbortWithReason(c, 401, "identity_rejected", "凭证校验失败")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已经写过响应
		logger.WarnString("Push", "Upgrade", err.Error())
		return
	}

	pc.registry.Register(claims.Subject, claims.Role, conn)
	logger.Info("Push",
		zap.String("action", "connected"),
		zap.String("identity", claims.Subject),
		zap.String("role", claims.Role),
		zap.Int("connections", pc.registry.Count(claims.Subject)),
	)

	go pc.readLoop(claims.Subject, conn)
}

// readLoop 消费入站帧直到连接断开
// 推送是单向的，入站内容直接丢弃；读出错即视为断开，摘除登记
func (pc *PushController) readLoop(identityID string, conn *websocket.Conn) {
	defer func() {
		pc.registry.Remove(identityID, conn)
		_ = conn.Close()
		logger.Info("Push",
			zap.String("action", "disconnected"),
			zap.String("identity", identityID),
			zap.Int("connections", pc.registry.Count(identityID)),
		)
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pc.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pc.pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go pc.keepAlive(conn, stop)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pc.pongWait))
	}
}

// keepAlive 定期发送 ping，读循环退出时随之退出
// WriteControl 允许与其他写操作并发，不必经过注册表的写锁
func (pc *PushController) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pc.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pc.writeWait)); err != nil {
				return
			}
		}
	}
}
