package notify

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gebeya/app/models/payment"
	"gebeya/pkg/hub"
)

// fakeConn 按标签记录收到的事件
type fakeConn struct {
	label  string
	events []Event
	fail   bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.fail {
		return errors.New("write: broken pipe")
	}
	c.events = append(c.events, v.(Event))
	return nil
}

func (c *fakeConn) Close() error { return nil }

// fakeSource 固定返回配置好的连接集合
type fakeSource struct {
	byIdentity map[string][]hub.Conn
	admins     []hub.Conn
}

func (s *fakeSource) ConnectionsFor(identityID string) []hub.Conn {
	return s.byIdentity[identityID]
}

func (s *fakeSource) AdminBroadcastGroup() []hub.Conn {
	return s.admins
}

func testPayment() *payment.Payment {
	return &payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusSuccess),
	}
}

func TestNotifyFansOutToAllParties(t *testing.T) {
	seller := &fakeConn{label: "seller"}
	buyer := &fakeConn{label: "buyer"}
	admin := &fakeConn{label: "admin"}
	source := &fakeSource{
		byIdentity: map[string][]hub.Conn{
			"seller-1": {seller},
			"buyer-1":  {buyer},
		},
		admins: []hub.Conn{admin},
	}

	NewDispatcher(source).NotifyPaymentUpdated(testPayment(), "buyer-1", "seller-1")

	cases := []struct {
		conn  *fakeConn
		event string
	}{
		{seller, EventSellerVerified},
		{buyer, EventBuyerVerified},
		{admin, EventAdminVerified},
	}
	for _, c := range cases {
		if len(c.conn.events) != 1 {
			t.Fatalf("%s received %d events, want 1", c.conn.label, len(c.conn.events))
		}
		if c.conn.events[0].Event != c.event {
			t.Errorf("%s event = %s, want %s", c.conn.label, c.conn.events[0].Event, c.event)
		}
		if c.conn.events[0].Payload.Payment.ProviderReference != "gby-1" {
			t.Errorf("%s payload reference = %s, want gby-1", c.conn.label, c.conn.events[0].Payload.Payment.ProviderReference)
		}
	}
}

func TestNotifySkipsEmptyIdentities(t *testing.T) {
	admin := &fakeConn{label: "admin"}
	source := &fakeSource{
		byIdentity: map[string][]hub.Conn{},
		admins:     []hub.Conn{admin},
	}

	// webhook 先到时 buyer/seller 还未回填
	NewDispatcher(source).NotifyPaymentUpdated(testPayment(), "", "")

	if len(admin.events) != 1 {
		t.Errorf("admin received %d events, want 1", len(admin.events))
	}
}

func TestNotifyWriteFailureDoesNotBlockOthers(t *testing.T) {
	broken := &fakeConn{label: "broken", fail: true}
	healthy := &fakeConn{label: "healthy"}
	source := &fakeSource{
		byIdentity: map[string][]hub.Conn{
			"seller-1": {broken, healthy},
		},
	}

	NewDispatcher(source).NotifyPaymentUpdated(testPayment(), "", "seller-1")

	if len(healthy.events) != 1 {
		t.Errorf("healthy conn received %d events, want 1 despite sibling failure", len(healthy.events))
	}
}

func TestNotifyOfflinePartiesIsNoop(t *testing.T) {
	source := &fakeSource{byIdentity: map[string][]hub.Conn{}}

	// 不应 panic，也没有可观察副作用
	NewDispatcher(source).NotifyPaymentUpdated(testPayment(), "buyer-1", "seller-1")
}

// racyConn 检测同一连接上的并发写入
type racyConn struct {
	inflight   int32
	violations int32
	writes     int32
}

func (c *racyConn) WriteJSON(v interface{}) error {
	if atomic.AddInt32(&c.inflight, 1) > 1 {
		atomic.AddInt32(&c.violations, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&c.inflight, -1)
	atomic.AddInt32(&c.writes, 1)
	return nil
}

func (c *racyConn) Close() error { return nil }

// 验证接口的队列工作器和客户端核验可以同时为同一笔支付扇出，
// 两次扇出命中同一条活跃连接时写入必须排队，而不是并发写同一个底层连接
func TestConcurrentFanOutToSameConnection(t *testing.T) {
	registry := hub.NewRegistry()
	conn := &racyConn{}
	registry.Register("seller-7", "seller", conn)
	d := NewDispatcher(registry)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.NotifyPaymentUpdated(testPayment(), "", "seller-7")
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&conn.violations); got != 0 {
		t.Errorf("detected %d overlapping writes, want 0", got)
	}
	if got := atomic.LoadInt32(&conn.writes); got != 32 {
		t.Errorf("writes = %d, want 32", got)
	}
}
