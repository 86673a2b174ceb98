// Package notify 支付状态变化的通知分发
//
// 对账引擎确认状态变化后，由这里对买家、卖家和管理员广播组各发一次事件。
// 推送是尽力而为：写失败只记日志，不重投——轮询端点是可靠兜底，
// 丢一次推送只损失时效，不丢信息。
package notify

import (
	"go.uber.org/zap"

	"gebeya/app/models/payment"
	"gebeya/pkg/hub"
	"gebeya/pkg/logger"
)

// 推送事件名，客户端按身份隐式订阅
const (
	EventSellerVerified = "payment:verified:seller"
	EventBuyerVerified  = "payment:verified:buyer"
	EventAdminVerified  = "payment:verified:admin"
)

// Event 推送给客户端的事件载荷
type Event struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Payload 事件内容，支付记录快照
type Payload struct {
	Payment *payment.Payment `json:"payment"`
}

// ConnectionSource 分发器对注册表的只读视图
type ConnectionSource interface {
	ConnectionsFor(identityID string) []hub.Conn
	AdminBroadcastGroup() []hub.Conn
}

// Dispatcher 通知分发器
type Dispatcher struct {
	registry ConnectionSource
}

// NewDispatcher 创建分发器
func NewDispatcher(registry ConnectionSource) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// NotifyPaymentUpdated 状态变化后的扇出
// 固定顺序：卖家、买家、管理员广播——顺序无业务含义，但保持确定性便于测试
func (d *Dispatcher) NotifyPaymentUpdated(p *payment.Payment, buyerID, sellerID string) {
	if sellerID != "" {
		d.push(d.registry.ConnectionsFor(sellerID), EventSellerVerified, p)
	}
	if buyerID != "" {
		d.push(d.registry.ConnectionsFor(buyerID), EventBuyerVerified, p)
	}
	d.push(d.registry.AdminBroadcastGroup(), EventAdminVerified, p)
}

// push 向一组连接逐个写入事件
func (d *Dispatcher) push(conns []hub.Conn, event string, p *payment.Payment) {
	if len(conns) == 0 {
		return
	}

	msg := Event{
		Event:   event,
		Payload: Payload{Payment: p},
	}

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			// 断开的连接由读循环负责摘除，这里只留痕
			logger.Warn("Notify",
				zap.String("event", event),
				zap.String("reference", p.ProviderReference),
				zap.Error(err),
			)
		}
	}
}
