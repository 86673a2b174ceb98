package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gebeya/app/models/payment"
	"gebeya/pkg/paygate"
)

// fakeRepo 内存仓库，provider_reference 唯一
type fakeRepo struct {
	mu      sync.Mutex
	byRef   map[string]*payment.Payment
	creates int
	nextID  uint64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byRef: make(map[string]*payment.Payment)}
}

func (r *fakeRepo) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[p.ProviderReference]; ok {
		return fmt.Errorf("duplicate key: %s", p.ProviderReference)
	}
	r.nextID++
	p.ID = r.nextID
	r.creates++
	cp := *p
	r.byRef[p.ProviderReference] = &cp
	return nil
}

func (r *fakeRepo) Save(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byRef[p.ProviderReference] = &cp
	return nil
}

func (r *fakeRepo) GetByReference(_ context.Context, reference string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byRef[reference]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) seed(p *payment.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	cp := *p
	r.byRef[p.ProviderReference] = &cp
}

// fakeAdapter 核账结果可编程的适配器
type fakeAdapter struct {
	name     paygate.Provider
	verifyFn func(ctx context.Context, reference string) (*paygate.NormalizedVerification, error)
}

func (a *fakeAdapter) Name() paygate.Provider { return a.name }

func (a *fakeAdapter) Initialize(_ context.Context, req paygate.InitializeRequest) (*paygate.InitializeResult, error) {
	return &paygate.InitializeResult{Reference: req.Reference, RedirectURL: "https://checkout.test/" + req.Reference}, nil
}

func (a *fakeAdapter) Verify(ctx context.Context, reference string) (*paygate.NormalizedVerification, error) {
	return a.verifyFn(ctx, reference)
}

func (a *fakeAdapter) SignatureHeader() string { return "X-Test-Signature" }

func (a *fakeAdapter) AuthenticateWebhook(_ string, _ []byte) (string, error) {
	return "", nil
}

// recordingNotifier 记录每次扇出
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyPaymentUpdated(p *payment.Payment, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, p.ProviderReference+":"+p.Status)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func successVerification(amount int64) *paygate.NormalizedVerification {
	return &paygate.NormalizedVerification{
		Succeeded:    true,
		RawStatus:    "success",
		AmountMinor:  amount,
		Currency:     "ETB",
		ProviderTxID: "prov-tx-1",
	}
}

func newTestEngine(adapter paygate.Adapter, repo Repository, notifier Notifier) *Engine {
	registry := paygate.NewRegistry()
	registry.Register(adapter)
	return NewEngine(registry, repo, notifier, "ETB", time.Second)
}

func TestReconcileCreatesRecordOnFirstObservation(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if outcome.Payment.Status != string(payment.StatusSuccess) {
		t.Errorf("status = %s, want success", outcome.Payment.Status)
	}
	if outcome.Payment.Amount != 50000 {
		t.Errorf("amount = %d, want 50000", outcome.Payment.Amount)
	}
	if outcome.Payment.PayAt == nil {
		t.Error("PayAt should be set on success")
	}
	if !outcome.StatusChanged {
		t.Error("StatusChanged = false, want true for a new record")
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	first, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	second, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if !first.StatusChanged {
		t.Error("first pass should report a status change")
	}
	if second.StatusChanged {
		t.Error("second pass should be a no-op replay")
	}
	if repo.creates != 1 {
		t.Errorf("creates = %d, want exactly 1", repo.creates)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifier.count())
	}
}

func TestReconcilePendingToSuccessKeepsIdentityFields(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusPending),
		ListingID:         "listing-1",
		BuyerID:           "buyer-1",
		SellerID:          "seller-1",
	})
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if outcome.PreviousStatus != payment.StatusPending {
		t.Errorf("previous = %s, want pending", outcome.PreviousStatus)
	}
	if !outcome.StatusChanged {
		t.Error("pending -> success should be a status change")
	}
	p := outcome.Payment
	if p.ListingID != "listing-1" || p.BuyerID != "buyer-1" || p.SellerID != "seller-1" {
		t.Errorf("identity fields were rewritten: %+v", p)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestReconcileStatusConflictKeepsLatestObservation(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusFailed),
	})
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if outcome.Payment.Status != string(payment.StatusSuccess) {
		t.Errorf("status = %s, want the latest observation to win", outcome.Payment.Status)
	}
	if _, ok := outcome.Payment.ProviderMeta["status_conflict"]; !ok {
		t.Error("conflict should leave a status_conflict trace in provider_meta")
	}
}

func TestReconcileAmountMismatchAfterSuccess(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusSuccess),
	})
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(60000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if outcome.Payment.Amount != 50000 {
		t.Errorf("amount = %d, stored value must be kept on mismatch", outcome.Payment.Amount)
	}
	if _, ok := outcome.Payment.ProviderMeta["amount_mismatch"]; !ok {
		t.Error("mismatch should leave an amount_mismatch trace in provider_meta")
	}
	if outcome.StatusChanged {
		t.Error("success -> success must not count as a status change")
	}
	if notifier.count() != 0 {
		t.Errorf("notifications = %d, want 0", notifier.count())
	}
}

func TestReconcileRefundedIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&payment.Payment{
		Provider:          "chapa",
		ProviderReference: "gby-1",
		Amount:            50000,
		Currency:          "ETB",
		Status:            string(payment.StatusRefunded),
	})
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if outcome.Payment.Status != string(payment.StatusRefunded) {
		t.Errorf("status = %s, refunded must stay refunded", outcome.Payment.Status)
	}
	if outcome.StatusChanged {
		t.Error("refunded record must not report a status change")
	}
	if notifier.count() != 0 {
		t.Errorf("notifications = %d, want 0", notifier.count())
	}
	if outcome.Payment.ProviderMeta == nil {
		t.Error("provider_meta should still be refreshed for audit")
	}
}

func TestReconcileNonPositiveAmountStoredAsZero(t *testing.T) {
	repo := newFakeRepo()
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			v := successVerification(0)
			v.AmountMinor = -100
			return v, nil
		},
	}
	engine := newTestEngine(adapter, repo, &recordingNotifier{})

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if outcome.Payment.Amount != 0 {
		t.Errorf("amount = %d, want 0 for non-positive observations", outcome.Payment.Amount)
	}
}

func TestReconcileDefaultCurrency(t *testing.T) {
	repo := newFakeRepo()
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			v := successVerification(50000)
			v.Currency = ""
			return v, nil
		},
	}
	engine := newTestEngine(adapter, repo, &recordingNotifier{})

	outcome, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if outcome.Payment.Currency != "ETB" {
		t.Errorf("currency = %s, want default ETB", outcome.Payment.Currency)
	}
}

func TestReconcileUnknownProvider(t *testing.T) {
	engine := NewEngine(paygate.NewRegistry(), newFakeRepo(), nil, "ETB", time.Second)

	_, err := engine.Reconcile(context.Background(), paygate.Provider("telebirr"), "gby-1")
	if !errors.Is(err, paygate.ErrProviderUnsupported) {
		t.Errorf("err = %v, want ErrProviderUnsupported", err)
	}
}

func TestReconcileProviderErrorPropagates(t *testing.T) {
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return nil, fmt.Errorf("%w: timeout", paygate.ErrProviderUnavailable)
		},
	}
	engine := newTestEngine(adapter, newFakeRepo(), nil)

	_, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1")
	if !errors.Is(err, paygate.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestReconcileSurvivesCallerCancellation(t *testing.T) {
	repo := newFakeRepo()
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(ctx context.Context, _ string) (*paygate.NormalizedVerification, error) {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", paygate.ErrProviderUnavailable, ctx.Err())
			}
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, &recordingNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 调用方提前离场

	outcome, err := engine.Reconcile(ctx, paygate.ProviderChapa, "gby-1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v, caller cancellation must not abort persistence", err)
	}
	if outcome.Payment.Status != string(payment.StatusSuccess) {
		t.Errorf("status = %s, want success", outcome.Payment.Status)
	}
}

func TestConcurrentReconcileProducesSingleRecord(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{
		name: paygate.ProviderChapa,
		verifyFn: func(_ context.Context, _ string) (*paygate.NormalizedVerification, error) {
			return successVerification(50000), nil
		},
	}
	engine := newTestEngine(adapter, repo, notifier)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Reconcile(context.Background(), paygate.ProviderChapa, "gby-1"); err != nil {
				t.Errorf("Reconcile() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.creates != 1 {
		t.Errorf("creates = %d, want exactly 1 record for one reference", repo.creates)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1 for one state change", notifier.count())
	}
}
