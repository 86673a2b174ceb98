package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gebeya/app/models/payment"
	"gebeya/pkg/config"
	"gebeya/pkg/hub"
	"gebeya/pkg/jwtauth"
	"gebeya/pkg/notify"
)

func newPushServer(t *testing.T) (*hub.Registry, *PushController, *httptest.Server) {
	t.Helper()
	config.Set("jwt.secret", "test-signing-secret")
	config.Set("jwt.expire_time", 60)
	config.Set("jwt.issuer", "gebeya-api")

	gin.SetMode(gin.TestMode)
	registry := hub.NewRegistry()
	pc := NewPushController(registry)
	router := gin.New()
	router.GET("/v1/ws", pc.Connect)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return registry, pc, server
}

func wsURL(server *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

// 登记与摘除发生在握手响应之后的 handler 协程里，只能轮询等待
func waitForCount(t *testing.T, registry *hub.Registry, identityID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count(identityID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Count(%s) = %d, want %d", identityID, registry.Count(identityID), want)
}

func TestConnectRejectsInvalidToken(t *testing.T) {
	registry, _, server := newPushServer(t)

	cases := []struct {
		name  string
		token string
	}{
		{"无 token", ""},
		{"伪造 token", "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, tc.token), nil)
			if err != websocket.ErrBadHandshake {
				t.Fatalf("Dial err = %v, want ErrBadHandshake", err)
			}
			if conn != nil {
				conn.Close()
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %v, want 401", resp)
			}
		})
	}

	if got := registry.Count("seller-7"); got != 0 {
		t.Errorf("rejected handshakes must not register connections, Count = %d", got)
	}
}

func TestConnectRegistersAndDelivers(t *testing.T) {
	registry, _, server := newPushServer(t)

	token, err := jwtauth.IssueToken("seller-7", "seller")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	waitForCount(t, registry, "seller-7", 1)

	// 对账完成后的扇出应落到这条连接上
	notify.NewDispatcher(registry).NotifyPaymentUpdated(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusSuccess),
	}, "", "seller-7")

	var event notify.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if event.Event != notify.EventSellerVerified {
		t.Errorf("event = %s, want %s", event.Event, notify.EventSellerVerified)
	}
	if event.Payload.Payment.ProviderReference != "gby-1" {
		t.Errorf("payload reference = %s, want gby-1", event.Payload.Payment.ProviderReference)
	}
}

func TestDisconnectRemovesConnection(t *testing.T) {
	registry, _, server := newPushServer(t)

	token, err := jwtauth.IssueToken("buyer-3", "buyer")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	waitForCount(t, registry, "buyer-3", 1)

	conn.Close()
	waitForCount(t, registry, "buyer-3", 0)
}

// 长时间没有业务帧的连接靠 ping/pong 维持，不应被读超时摘除
func TestQuietConnectionSurvivesReadDeadline(t *testing.T) {
	registry, pc, server := newPushServer(t)
	pc.pongWait = 200 * time.Millisecond
	pc.pingPeriod = 50 * time.Millisecond

	token, err := jwtauth.IssueToken("seller-7", "seller")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitForCount(t, registry, "seller-7", 1)

	// 客户端持续读取，gorilla 默认的 ping handler 会自动回 pong
	received := make(chan notify.Event, 1)
	go func() {
		var event notify.Event
		if err := conn.ReadJSON(&event); err == nil {
			received <- event
		}
	}()

	// 静默跨过多个 pongWait 周期
	time.Sleep(700 * time.Millisecond)
	if got := registry.Count("seller-7"); got != 1 {
		t.Fatalf("Count = %d, want 1 after quiet period", got)
	}

	notify.NewDispatcher(registry).NotifyPaymentUpdated(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-2",
		Amount:            1000,
		Currency:          "ETB",
		Status:            string(payment.StatusSuccess),
	}, "", "seller-7")

	select {
	case event := <-received:
		if event.Payload.Payment.ProviderReference != "gby-2" {
			t.Errorf("payload reference = %s, want gby-2", event.Payload.Payment.ProviderReference)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after quiet period")
	}
}
