package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/app"
	"github.com/rentfolio/payments-service/internal/domain"
	"github.com/rentfolio/payments-service/internal/store"
	"github.com/rentfolio/payments-service/pkg/gatewayclient"
	"github.com/rentfolio/payments-service/pkg/rabbitmq"
)

// processPayoutRepoStub covers the repository calls ProcessOwnerPayout makes.
type processPayoutRepoStub struct {
	store.Repository

	owner  *domain.Owner
	payout *domain.OwnerPayout
}

func (s *processPayoutRepoStub) ClaimOwnerPayoutForProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	claimed := *s.payout
	claimed.Status = domain.PayoutStatusProcessing
	return &claimed, nil
}

func (s *processPayoutRepoStub) FindOwnerByID(ctx context.Context, ownerID uuid.UUID) (*domain.Owner, error) {
	return s.owner, nil
}

func (s *processPayoutRepoStub) FailOwnerPayout(ctx context.Context, payoutID uuid.UUID, notes string) (*domain.OwnerPayout, error) {
	failed := *s.payout
	failed.Status = domain.PayoutStatusFailed
	failed.Notes = &notes
	return &failed, nil
}

// A gateway outage during disbursement must not answer 200: the payout is
// finalized as failed and the caller gets a 502 so the failure is acted on.
func TestProcessOwnerPayoutHandler_GatewayFailureAnswersBadGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"type":"api_error","message":"unavailable - try later"}}`)
	}))
	defer gateway.Close()

	payoutID := uuid.New()
	repo := &processPayoutRepoStub{
		owner:  &domain.Owner{ID: uuid.New(), GatewayAccountID: "acct_1"},
		payout: &domain.OwnerPayout{ID: payoutID, Amount: 250000, Currency: "USD", Status: domain.PayoutStatusPending},
	}
	repo.payout.OwnerID = repo.owner.ID

	svc := app.NewService(repo, gatewayclient.NewClient(gateway.URL, "sk_test_123"), &rabbitmq.EventProducerFallback{}, app.FeePolicy{AdminFeePercent: 10}, "USD")
	h := NewPaymentHandlers(svc, nil, 0, time.Minute)

	r := chi.NewRouter()
	r.Post("/payouts/{payoutID}/process", h.ProcessOwnerPayoutHandler)

	req := httptest.NewRequest(http.MethodPost, "/payouts/"+payoutID.String()+"/process", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body["error"], "gateway transfer failed") {
		t.Fatalf("the response must name the transfer failure, got %q", body["error"])
	}
}
