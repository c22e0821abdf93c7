/**
 * @description
 * Rent payment ledger operations: creating gateway payment intents for tenants,
 * reconciling local status against the gateway, and cancelling intents.
 *
 * @notes
 * - A local row is only written after the gateway confirms intent creation. If
 *   the gateway call fails ambiguously there is nothing local to clean up; the
 *   next attempt creates a fresh intent.
 * - Reconciliation is idempotent and monotonic: replays and out-of-order
 *   callbacks collapse to no-ops at the storage layer.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/domain"
	"github.com/rentfolio/payments-service/internal/store"
	"github.com/rentfolio/payments-service/pkg/gatewayclient"
	"github.com/rentfolio/payments-service/pkg/rabbitmq"
)

// gatewayCallTimeout bounds every synchronous gateway call made on a request path.
const gatewayCallTimeout = 15 * time.Second

// CreatePaymentIntent validates the request, creates a payment intent at the
// gateway for the tenant's customer record, and persists the ledger row. The
// gateway call happens first: a row must never exist for an intent the gateway
// does not know about.
func (s *Service) CreatePaymentIntent(ctx context.Context, tenantID uuid.UUID, amount int64) (*domain.RentPayment, string, error) {
	if fe := domain.ValidateAmount("amount", amount); fe != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidAmount, fe.Message)
	}

	tenant, err := s.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	if tenant.GatewayCustomerID == "" {
		return nil, "", fmt.Errorf("tenant %s has no gateway customer record", tenantID)
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	intent, err := s.gateway.CreatePaymentIntent(gwCtx, gatewayclient.CreateIntentRequest{
		Customer: tenant.GatewayCustomerID,
		Amount:   amount,
		Currency: s.currency,
	})
	if err != nil {
		log.Printf("level=warn component=service flow=create_payment_intent msg=\"gateway intent creation failed\" tenant_id=%s err=%v", tenantID, err)
		return nil, "", fmt.Errorf("failed to create payment intent at gateway: %w", err)
	}

	status, err := domain.PaymentStatusFromGateway(intent.Status)
	if err != nil {
		// The gateway accepted the intent but reported a lifecycle state we do
		// not recognize. Fail loudly rather than record a guess.
		return nil, "", err
	}

	payment := &domain.RentPayment{
		ID:              uuid.New(),
		TenantID:        tenant.ID,
		Amount:          amount,
		Currency:        s.currency,
		GatewayIntentID: intent.ID,
		Status:          status,
	}
	if intent.PaymentMethod != "" {
		pm := intent.PaymentMethod
		payment.GatewayPaymentMethodID = &pm
	}
	if err := s.repo.CreateRentPayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicatePaymentIntent) {
			return nil, "", err
		}
		log.Printf("level=error component=service flow=create_payment_intent msg=\"ledger row persistence failed after gateway success\" gateway_intent_id=%s err=%v", intent.ID, err)
		return nil, "", fmt.Errorf("failed to record payment: %w", err)
	}

	log.Printf("level=info component=service flow=create_payment_intent msg=\"payment intent created\" payment_id=%s tenant_id=%s gateway_intent_id=%s amount=%d", payment.ID, tenant.ID, intent.ID, amount)
	return payment, intent.ClientSecret, nil
}

// ReconcilePaymentIntent re-fetches the intent from the gateway and advances
// the local row to match. It reports whether the local row changed; a missing
// local row is (false, nil) because reconciliation has nothing to act on.
func (s *Service) ReconcilePaymentIntent(ctx context.Context, gatewayIntentID string) (bool, error) {
	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	intent, err := s.gateway.GetPaymentIntent(gwCtx, gatewayIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch intent from gateway: %w", err)
	}
	return s.applyGatewayStatus(ctx, gatewayIntentID, intent.Status)
}

// ApplyGatewayEvent advances the local row for a signature-verified webhook
// event. The event carries the intent's current status, so no gateway
// round-trip is needed.
func (s *Service) ApplyGatewayEvent(ctx context.Context, event *domain.GatewayWebhookEvent) (bool, error) {
	return s.applyGatewayStatus(ctx, event.Data.Object.ID, event.Data.Object.Status)
}

func (s *Service) applyGatewayStatus(ctx context.Context, gatewayIntentID, gatewayStatus string) (bool, error) {
	next, err := domain.PaymentStatusFromGateway(gatewayStatus)
	if err != nil {
		return false, err
	}

	advanced, err := s.repo.AdvanceRentPaymentStatus(ctx, gatewayIntentID, next)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=info component=service flow=reconcile msg=\"no local payment for intent; nothing to reconcile\" gateway_intent_id=%s", gatewayIntentID)
			return false, nil
		}
		return false, err
	}
	if !advanced {
		log.Printf("level=info component=service flow=reconcile msg=\"status already current or ahead\" gateway_intent_id=%s status=%s", gatewayIntentID, next)
		return false, nil
	}

	log.Printf("level=info component=service flow=reconcile msg=\"payment status advanced\" gateway_intent_id=%s status=%s", gatewayIntentID, next)
	if next.IsTerminal() {
		s.publishPaymentEvent(ctx, gatewayIntentID, next)
	}
	return true, nil
}

// CancelPaymentIntent cancels the intent at the gateway, then moves the local
// row to Cancelled. Succeeded payments cannot be cancelled.
func (s *Service) CancelPaymentIntent(ctx context.Context, gatewayIntentID string) (bool, error) {
	payment, err := s.repo.FindRentPaymentByGatewayIntentID(ctx, gatewayIntentID)
	if err != nil {
		return false, err
	}
	if payment.Status.IsTerminal() {
		return false, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	if _, err := s.gateway.CancelPaymentIntent(gwCtx, gatewayIntentID); err != nil {
		return false, fmt.Errorf("failed to cancel intent at gateway: %w", err)
	}

	return s.applyGatewayStatus(ctx, gatewayIntentID, string(domain.PaymentStatusCancelled))
}

// GetTenantPaymentHistory returns a tenant's rent payment ledger, newest first.
func (s *Service) GetTenantPaymentHistory(ctx context.Context, tenantID uuid.UUID) ([]domain.RentPayment, error) {
	if _, err := s.repo.FindTenantByID(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListRentPaymentsByTenantID(ctx, tenantID)
}

func (s *Service) publishPaymentEvent(ctx context.Context, gatewayIntentID string, status domain.PaymentStatus) {
	payment, err := s.repo.FindRentPaymentByGatewayIntentID(ctx, gatewayIntentID)
	if err != nil {
		log.Printf("level=warn component=service flow=events msg=\"could not load payment for event publishing\" gateway_intent_id=%s err=%v", gatewayIntentID, err)
		return
	}

	routingKey := "payment.succeeded"
	if status == domain.PaymentStatusCancelled {
		routingKey = "payment.cancelled"
	}
	event := domain.PaymentEvent{
		PaymentID:       payment.ID,
		TenantID:        payment.TenantID,
		GatewayIntentID: payment.GatewayIntentID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Status:          status,
		Timestamp:       time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service flow=events msg=\"event publish failed\" routing_key=%s payment_id=%s err=%v", routingKey, payment.ID, err)
	}
}
