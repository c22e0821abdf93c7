package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/domain"
	"github.com/rentfolio/payments-service/internal/store"
)

// settlementRepoStub is a small in-memory repository covering the full
// rent-to-payout flow so the stages can be exercised against each other.
type settlementRepoStub struct {
	store.Repository

	tenant *domain.Tenant
	owner  *domain.Owner

	payments     map[string]*domain.RentPayment
	ownerPayment *domain.OwnerPayment
	period       *domain.PayoutPeriod
	payouts      map[uuid.UUID]*domain.OwnerPayout
	settings     domain.PayoutSettings

	utilities       int64
	maintenance     int64
	markedProcessed bool
}

func newSettlementRepoStub() *settlementRepoStub {
	return &settlementRepoStub{
		tenant:   &domain.Tenant{ID: uuid.New(), GatewayCustomerID: "cus_1", PropertyID: uuid.New(), OwnerID: uuid.New()},
		owner:    &domain.Owner{GatewayAccountID: "acct_1"},
		payments: make(map[string]*domain.RentPayment),
		payouts:  make(map[uuid.UUID]*domain.OwnerPayout),
		settings: domain.DefaultPayoutSettings(),
	}
}

func (s *settlementRepoStub) FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	if tenantID != s.tenant.ID {
		return nil, store.ErrTenantNotFound
	}
	return s.tenant, nil
}

func (s *settlementRepoStub) FindOwnerByID(ctx context.Context, ownerID uuid.UUID) (*domain.Owner, error) {
	if ownerID != s.owner.ID {
		return nil, store.ErrOwnerNotFound
	}
	return s.owner, nil
}

func (s *settlementRepoStub) CreateRentPayment(ctx context.Context, payment *domain.RentPayment) error {
	if _, exists := s.payments[payment.GatewayIntentID]; exists {
		return store.ErrDuplicatePaymentIntent
	}
	s.payments[payment.GatewayIntentID] = payment
	return nil
}

func (s *settlementRepoStub) FindRentPaymentByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*domain.RentPayment, error) {
	p, ok := s.payments[gatewayIntentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	return p, nil
}

func (s *settlementRepoStub) AdvanceRentPaymentStatus(ctx context.Context, gatewayIntentID string, next domain.PaymentStatus) (bool, error) {
	p, ok := s.payments[gatewayIntentID]
	if !ok {
		return false, store.ErrPaymentNotFound
	}
	if !p.Status.CanAdvanceTo(next) {
		return false, nil
	}
	p.Status = next
	return true, nil
}

func (s *settlementRepoStub) SumSucceededRentPayments(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	for _, p := range s.payments {
		if p.Status == domain.PaymentStatusSucceeded {
			total += p.Amount
		}
	}
	return total, nil
}

func (s *settlementRepoStub) SumUtilityFees(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	return s.utilities, nil
}

func (s *settlementRepoStub) SumMaintenanceCosts(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	return s.maintenance, nil
}

func (s *settlementRepoStub) CreateOwnerPayment(ctx context.Context, payment *domain.OwnerPayment) error {
	if s.ownerPayment != nil {
		return store.ErrOwnerPaymentExists
	}
	payment.CreatedAt = time.Now().UTC()
	s.ownerPayment = payment
	return nil
}

func (s *settlementRepoStub) CreatePayoutPeriod(ctx context.Context, period *domain.PayoutPeriod) error {
	s.period = period
	return nil
}

func (s *settlementRepoStub) FindPayoutPeriodByID(ctx context.Context, periodID uuid.UUID) (*domain.PayoutPeriod, error) {
	if s.period == nil || s.period.ID != periodID {
		return nil, store.ErrPayoutPeriodNotFound
	}
	return s.period, nil
}

func (s *settlementRepoStub) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	settings := s.settings
	return &settings, nil
}

func (s *settlementRepoStub) CreateOwnerPayout(ctx context.Context, payout *domain.OwnerPayout) error {
	payout.CreatedAt = time.Now().UTC()
	s.payouts[payout.ID] = payout
	return nil
}

func (s *settlementRepoStub) ClaimOwnerPayoutForProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	if p.Status != domain.PayoutStatusPending {
		return nil, store.ErrPayoutNotClaimable
	}
	p.Status = domain.PayoutStatusProcessing
	claimed := *p
	return &claimed, nil
}

func (s *settlementRepoStub) CompleteOwnerPayout(ctx context.Context, payoutID uuid.UUID, transactionRef string) (*domain.OwnerPayout, error) {
	p, ok := s.payouts[payoutID]
	if !ok || p.Status != domain.PayoutStatusProcessing {
		return nil, store.ErrPayoutNotClaimable
	}
	p.Status = domain.PayoutStatusCompleted
	p.TransactionRef = &transactionRef
	now := time.Now().UTC()
	p.ProcessedAt = &now
	completed := *p
	return &completed, nil
}

func (s *settlementRepoStub) MarkOwnerPaymentsProcessed(ctx context.Context, ownerID uuid.UUID, transferID string, cutoff time.Time) (int64, error) {
	s.markedProcessed = true
	if s.ownerPayment != nil && s.ownerPayment.OwnerID == ownerID && !s.ownerPayment.CreatedAt.After(cutoff) {
		s.ownerPayment.Status = domain.OwnerPaymentStatusProcessed
		s.ownerPayment.GatewayTransferID = &transferID
		return 1, nil
	}
	return 0, nil
}

// TestRentToPayoutFlow walks the whole settlement chain: a tenant's rent payment
// is created and reconciled to succeeded, the owner's monthly obligation is
// computed from it, and the resulting payout is disbursed through the gateway.
func TestRentToPayoutFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			w.Write([]byte(`{"id":"pi_rent_1","status":"requires_payment_method","client_secret":"pi_rent_1_secret","amount":150000,"currency":"USD"}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payment_intents/"):
			w.Write([]byte(`{"id":"pi_rent_1","status":"succeeded","amount":150000,"currency":"USD"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transfers":
			w.Write([]byte(`{"id":"tr_payout_1","status":"paid","destination":"acct_1","amount":113500,"currency":"USD"}`))
		default:
			t.Errorf("unexpected gateway call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	repo := newSettlementRepoStub()
	repo.owner.ID = repo.tenant.OwnerID
	repo.utilities = 10000   // 100.00
	repo.maintenance = 11500 // 115.00
	svc, producer := newTestService(repo, server.URL)
	ctx := context.Background()

	// Tenant pays 1500.00 in rent.
	payment, secret, err := svc.CreatePaymentIntent(ctx, repo.tenant.ID, 150000)
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if secret != "pi_rent_1_secret" {
		t.Fatalf("unexpected client secret %q", secret)
	}
	if payment.Status != domain.PaymentStatusRequiresPaymentMethod {
		t.Fatalf("new intent should start at requires_payment_method, got %s", payment.Status)
	}

	// The gateway reports the charge succeeded.
	changed, err := svc.ReconcilePaymentIntent(ctx, "pi_rent_1")
	if err != nil || !changed {
		t.Fatalf("ReconcilePaymentIntent: changed=%v err=%v", changed, err)
	}

	// A second reconcile is a no-op.
	changed, err = svc.ReconcilePaymentIntent(ctx, "pi_rent_1")
	if err != nil || changed {
		t.Fatalf("redelivered reconcile must be a no-op: changed=%v err=%v", changed, err)
	}

	// The owner's July obligation: 1500.00 gross, 10% fee, 100.00 utilities,
	// 115.00 maintenance, net 1135.00.
	ownerPayment, err := svc.ComputeOwnerPayment(ctx, repo.owner.ID, repo.tenant.PropertyID, 2026, 7)
	if err != nil {
		t.Fatalf("ComputeOwnerPayment: %v", err)
	}
	if ownerPayment.NetAmount != 113500 {
		t.Fatalf("expected net 113500, got %d", ownerPayment.NetAmount)
	}

	// Settle the obligation through a payout period.
	period, err := svc.CreatePayoutPeriod(ctx, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreatePayoutPeriod: %v", err)
	}
	payout, err := svc.CreateOwnerPayout(ctx, repo.owner.ID, period.ID, ownerPayment.NetAmount)
	if err != nil {
		t.Fatalf("CreateOwnerPayout: %v", err)
	}

	completed, err := svc.ProcessOwnerPayout(ctx, payout.ID)
	if err != nil {
		t.Fatalf("ProcessOwnerPayout: %v", err)
	}
	if completed.Status != domain.PayoutStatusCompleted {
		t.Fatalf("expected completed payout, got %s", completed.Status)
	}
	if completed.TransactionRef == nil || *completed.TransactionRef != "tr_payout_1" {
		t.Fatalf("expected transaction ref tr_payout_1, got %v", completed.TransactionRef)
	}
	if repo.ownerPayment.Status != domain.OwnerPaymentStatusProcessed {
		t.Fatal("the owner payment must be settled by the completed payout")
	}

	// Reprocessing a completed payout conflicts.
	if _, err := svc.ProcessOwnerPayout(ctx, payout.ID); err == nil {
		t.Fatal("a completed payout must not be processable again")
	}

	// Terminal lifecycle events were published for the payment and the payout.
	var keys []string
	for _, e := range producer.events {
		keys = append(keys, e.routingKey)
	}
	if len(keys) != 2 || keys[0] != "payment.succeeded" || keys[1] != "payout.completed" {
		t.Fatalf("expected [payment.succeeded payout.completed], got %v", keys)
	}
}
