package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/preorder-system/internal/model"
	"github.com/mmeshcher/preorder-system/internal/provider"
	"github.com/mmeshcher/preorder-system/internal/repository"
)

type stubProvider struct {
	// failuresLeft — сколько первых вызовов CreateCheckoutLink завершить ошибкой
	failuresLeft int
	checkoutURL  string
	createdCodes []int64

	info    *provider.LinkInfo
	infoErr error
}

func (p *stubProvider) CreateCheckoutLink(ctx context.Context, req provider.CheckoutRequest) (string, error) {
	p.createdCodes = append(p.createdCodes, req.OrderCode)
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return "", provider.ErrUnavailable
	}
	return p.checkoutURL, nil
}

func (p *stubProvider) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*provider.LinkInfo, error) {
	return p.info, p.infoErr
}

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(maxCheckoutAttempts-1, retry.NewConstant(time.Millisecond))
}

func pendingOrders() []model.Order {
	return []model.Order{
		{ID: 11, UserID: 1, CampaignID: 7, Quantity: 10, TotalCents: 15000, Status: model.OrderStatusPending},
		{ID: 12, UserID: 1, CampaignID: 7, Quantity: 2, TotalCents: 3000, Status: model.OrderStatusPending},
	}
}

func TestCreatePayment_SumsOrderAmounts(t *testing.T) {
	repo := &stubRepo{ordersByIDs: pendingOrders()}
	pc := &stubProvider{checkoutURL: "https://pay.example.com/x"}
	svc := newTestService(repo, pc)
	svc.checkoutBackoff = fastBackoff

	payment, url, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "u@example.com")
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}
	if url != "https://pay.example.com/x" {
		t.Errorf("url = %q", url)
	}
	if payment.AmountCents != 18000 {
		t.Errorf("amount = %d, want 18000", payment.AmountCents)
	}
	if repo.createdPayment == nil || repo.createdPayment.Status != model.PaymentStatusPending {
		t.Fatalf("payment must be persisted PENDING, got %+v", repo.createdPayment)
	}
}

func TestCreatePayment_AbortsWholeBatch(t *testing.T) {
	orders := pendingOrders()
	orders[1].Status = model.OrderStatusConfirmed

	repo := &stubRepo{ordersByIDs: orders}
	pc := &stubProvider{checkoutURL: "https://pay.example.com/x"}
	svc := newTestService(repo, pc)
	svc.checkoutBackoff = fastBackoff

	_, _, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "")
	if !errors.Is(err, repository.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(pc.createdCodes) != 0 {
		t.Fatalf("provider must not be called for a rejected batch")
	}
	if repo.createdPayment != nil {
		t.Fatalf("nothing may be persisted for a rejected batch")
	}
}

func TestCreatePayment_ForeignOrderRejected(t *testing.T) {
	orders := pendingOrders()
	orders[0].UserID = 99

	repo := &stubRepo{ordersByIDs: orders}
	svc := newTestService(repo, &stubProvider{checkoutURL: "x"})
	svc.checkoutBackoff = fastBackoff

	_, _, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreatePayment_RetriesWithFreshCode(t *testing.T) {
	repo := &stubRepo{ordersByIDs: pendingOrders()}
	pc := &stubProvider{failuresLeft: 2, checkoutURL: "https://pay.example.com/x"}
	svc := newTestService(repo, pc)
	svc.checkoutBackoff = fastBackoff

	payment, _, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "")
	if err != nil {
		t.Fatalf("CreatePayment error: %v", err)
	}

	if len(pc.createdCodes) != 3 {
		t.Fatalf("attempts = %d, want 3", len(pc.createdCodes))
	}
	seen := make(map[int64]bool)
	for _, code := range pc.createdCodes {
		if seen[code] {
			t.Fatalf("order code %d reused between attempts", code)
		}
		seen[code] = true
	}
	if payment.OrderCode != pc.createdCodes[2] {
		t.Errorf("persisted code %d, want the last attempted %d", payment.OrderCode, pc.createdCodes[2])
	}
}

func TestCreatePayment_ProviderUnavailable(t *testing.T) {
	repo := &stubRepo{ordersByIDs: pendingOrders()}
	pc := &stubProvider{failuresLeft: maxCheckoutAttempts + 1}
	svc := newTestService(repo, pc)
	svc.checkoutBackoff = fastBackoff

	_, _, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(pc.createdCodes) != maxCheckoutAttempts {
		t.Fatalf("attempts = %d, want %d", len(pc.createdCodes), maxCheckoutAttempts)
	}
	if repo.createdPayment != nil {
		t.Fatalf("payment must not be persisted after exhausted retries")
	}
}

func TestReconcile_NonTerminalIsNoop(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	if err := svc.Reconcile(context.Background(), 42, "PROCESSING"); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if len(repo.reconciled) != 0 {
		t.Fatalf("non-terminal status must not touch the repository")
	}
}

func TestReconcile_AppliesTerminalStatus(t *testing.T) {
	repo := &stubRepo{
		reconcileResult: &repository.ReconcileResult{
			Applied:         true,
			ConfirmedOrders: []int64{11},
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.Reconcile(context.Background(), 42, "PAID"); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if len(repo.reconciled) != 1 {
		t.Fatalf("reconciled calls = %d, want 1", len(repo.reconciled))
	}
	if repo.reconciled[0].orderCode != 42 || repo.reconciled[0].status != model.PaymentStatusPaid {
		t.Errorf("reconciled with %+v", repo.reconciled[0])
	}
}

func TestReconcile_DuplicateIsNoop(t *testing.T) {
	repo := &stubRepo{
		reconcileResult: &repository.ReconcileResult{Applied: false},
	}
	svc := newTestService(repo, nil)

	if err := svc.Reconcile(context.Background(), 42, "PAID"); err != nil {
		t.Fatalf("duplicate reconcile must be a silent no-op, got %v", err)
	}
}

func TestReconcile_UnknownPayment(t *testing.T) {
	repo := &stubRepo{reconcileErr: repository.ErrNotFound}
	svc := newTestService(repo, nil)

	err := svc.Reconcile(context.Background(), 42, "PAID")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPayment_OwnerOnly(t *testing.T) {
	repo := &stubRepo{
		payment:     &model.Payment{OrderCode: 42, OrderIDs: []int64{11}},
		ordersByIDs: []model.Order{{ID: 11, UserID: 2}},
	}
	svc := newTestService(repo, nil)

	if _, err := svc.GetPayment(context.Background(), Caller{UserID: 1}, 42); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.GetPayment(context.Background(), Caller{UserID: 1, Admin: true}, 42); err != nil {
		t.Fatalf("admin read error: %v", err)
	}
}

func TestCreatePayment_NoProviderConfigured(t *testing.T) {
	repo := &stubRepo{ordersByIDs: pendingOrders()}
	svc := newTestService(repo, nil)
	svc.checkoutBackoff = fastBackoff

	_, _, err := svc.CreatePayment(context.Background(), Caller{UserID: 1}, []int64{11, 12}, "card", "")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if repo.createdPayment != nil {
		t.Fatalf("nothing may be persisted without a provider")
	}
}

func TestGetPaymentLinkInfo_NoProviderConfigured(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	_, err := svc.GetPaymentLinkInfo(context.Background(), Caller{UserID: 1}, 42)
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
