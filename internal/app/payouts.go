/**
 * @description
 * Owner payout processing: payout period creation, payout record creation with
 * minimum enforcement, at-most-once disbursement through the gateway, explicit
 * retry of failed payouts, and the per-period owner reconciliation report.
 *
 * @notes
 * - ProcessOwnerPayout claims the row (Pending -> Processing) before touching
 *   the gateway. The claim is a conditional UPDATE, so exactly one of any
 *   number of concurrent processors wins; everyone else gets
 *   store.ErrPayoutNotClaimable and touches nothing.
 * - The gateway transfer carries the payout id as its idempotency key, so even
 *   a crashed processor that re-runs after a restart cannot double-disburse.
 * - A failed payout is terminal. The failure is persisted first, then surfaced
 *   to the caller as ErrTransferFailed. RetryOwnerPayout creates a fresh
 *   Pending row and leaves the failed one as the audit trail.
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
	"github.com/rentfolio/payments-service/pkg/gatewayclient"
	"github.com/rentfolio/payments-service/pkg/rabbitmq"
)

// CreatePayoutPeriod creates a new payout window. The window must be
// well-ordered and must not overlap any existing period.
func (s *Service) CreatePayoutPeriod(ctx context.Context, start, end time.Time) (*domain.PayoutPeriod, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start=%s end=%s", ErrInvalidPeriod, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	period := &domain.PayoutPeriod{
		ID:        uuid.New(),
		StartDate: start,
		EndDate:   end,
		Status:    domain.PayoutPeriodStatusPending,
	}
	if err := s.repo.CreatePayoutPeriod(ctx, period); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service flow=payout_period msg=\"payout period created\" period_id=%s start=%s end=%s", period.ID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return period, nil
}

// CreateOwnerPayout creates a Pending payout for an owner within a period.
// The amount must meet the configured minimum; below-minimum requests are
// rejected without writing anything.
func (s *Service) CreateOwnerPayout(ctx context.Context, ownerID, periodID uuid.UUID, amount int64) (*domain.OwnerPayout, error) {
	if fe := domain.ValidateAmount("amount", amount); fe != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, fe.Message)
	}
	if _, err := s.repo.FindOwnerByID(ctx, ownerID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindPayoutPeriodByID(ctx, periodID); err != nil {
		return nil, err
	}

	settings, err := s.repo.GetPayoutSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout settings: %w", err)
	}
	if amount < settings.MinimumPayoutAmount {
		return nil, fmt.Errorf("%w: amount=%d minimum=%d", ErrAmountBelowMinimum, amount, settings.MinimumPayoutAmount)
	}

	payout := &domain.OwnerPayout{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		PayoutPeriodID: periodID,
		Amount:         amount,
		Currency:       settings.DefaultCurrency,
		Status:         domain.PayoutStatusPending,
	}
	if err := s.repo.CreateOwnerPayout(ctx, payout); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service flow=payouts msg=\"payout created\" payout_id=%s owner_id=%s period_id=%s amount=%d", payout.ID, ownerID, periodID, amount)
	return payout, nil
}

// ProcessOwnerPayout disburses a Pending payout to its owner's gateway account.
func (s *Service) ProcessOwnerPayout(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	payout, err := s.repo.ClaimOwnerPayoutForProcessing(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	owner, err := s.repo.FindOwnerByID(ctx, payout.OwnerID)
	if err != nil {
		// Without a destination the disbursement cannot proceed. Finalize as
		// failed so the claim does not leave the payout wedged in Processing.
		return s.failPayout(ctx, payout, fmt.Sprintf("owner lookup failed: %v", err))
	}
	if owner.GatewayAccountID == "" {
		return s.failPayout(ctx, payout, "owner has no gateway account to disburse to")
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	transfer, err := s.gateway.CreateTransfer(gwCtx, gatewayclient.CreateTransferRequest{
		Destination:    owner.GatewayAccountID,
		Amount:         payout.Amount,
		Currency:       payout.Currency,
		Description:    fmt.Sprintf("Owner payout %s", payout.ID),
		IdempotencyKey: payout.ID.String(),
	})
	if err != nil {
		var gwErr *gatewayclient.ErrorResponse
		if errors.As(err, &gwErr) && gwErr.IsExplicitRejection() {
			return s.failPayout(ctx, payout, fmt.Sprintf("gateway rejected transfer: %v", err))
		}
		// Ambiguous failure: the transfer may or may not have been applied.
		// Finalize as failed with the error preserved; an operator resolves
		// the gateway state before issuing a retry.
		return s.failPayout(ctx, payout, fmt.Sprintf("gateway transfer did not complete: %v", err))
	}

	completed, err := s.repo.CompleteOwnerPayout(ctx, payout.ID, transfer.ID)
	if err != nil {
		log.Printf("level=error component=service flow=payouts msg=\"transfer succeeded but completion persistence failed\" payout_id=%s transfer_id=%s err=%v", payout.ID, transfer.ID, err)
		return nil, fmt.Errorf("failed to finalize payout %s after transfer %s: %w", payout.ID, transfer.ID, err)
	}

	// Only obligations that existed when the payout was created went into its
	// amount; anything computed since stays pending for the next run.
	if _, err := s.repo.MarkOwnerPaymentsProcessed(ctx, payout.OwnerID, transfer.ID, payout.CreatedAt); err != nil {
		log.Printf("level=warn component=service flow=payouts msg=\"could not mark owner payments processed\" payout_id=%s owner_id=%s err=%v", payout.ID, payout.OwnerID, err)
	}

	log.Printf("level=info component=service flow=payouts msg=\"payout completed\" payout_id=%s owner_id=%s transfer_id=%s amount=%d", completed.ID, completed.OwnerID, transfer.ID, completed.Amount)
	s.publishPayoutEvent(ctx, completed, "payout.completed")
	return completed, nil
}

// failPayout finalizes a claimed payout as Failed and surfaces the failure to
// the caller as ErrTransferFailed. The failed row carries the note as its
// audit trail; the returned error carries it to the API layer.
func (s *Service) failPayout(ctx context.Context, payout *domain.OwnerPayout, note string) (*domain.OwnerPayout, error) {
	failed, err := s.repo.FailOwnerPayout(ctx, payout.ID, note)
	if err != nil {
		log.Printf("level=error component=service flow=payouts msg=\"could not persist payout failure\" payout_id=%s note=%q err=%v", payout.ID, note, err)
		return nil, fmt.Errorf("failed to finalize payout %s as failed: %w", payout.ID, err)
	}
	log.Printf("level=warn component=service flow=payouts msg=\"payout failed\" payout_id=%s owner_id=%s note=%q", failed.ID, failed.OwnerID, note)
	s.publishPayoutEvent(ctx, failed, "payout.failed")
	return nil, fmt.Errorf("%w: %s", ErrTransferFailed, note)
}

// RetryOwnerPayout creates a fresh Pending payout cloning a Failed one. The
// failed row is never mutated; it remains as the record of the failed attempt.
func (s *Service) RetryOwnerPayout(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	failed, err := s.repo.FindOwnerPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if failed.Status != domain.PayoutStatusFailed {
		return nil, fmt.Errorf("%w: payout %s is %s", ErrPayoutNotRetryable, payoutID, failed.Status)
	}

	note := fmt.Sprintf("retry of payout %s", failed.ID)
	retry := &domain.OwnerPayout{
		ID:             uuid.New(),
		OwnerID:        failed.OwnerID,
		PayoutPeriodID: failed.PayoutPeriodID,
		Amount:         failed.Amount,
		Currency:       failed.Currency,
		Status:         domain.PayoutStatusPending,
		Notes:          &note,
	}
	if err := s.repo.CreateOwnerPayout(ctx, retry); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service flow=payouts msg=\"retry payout created\" payout_id=%s retry_of=%s owner_id=%s amount=%d", retry.ID, failed.ID, retry.OwnerID, retry.Amount)
	return retry, nil
}

// GetOwnersPayoutStatus reports which owners have received their payout for a period.
func (s *Service) GetOwnersPayoutStatus(ctx context.Context, periodID uuid.UUID) ([]domain.OwnerPayoutStatusEntry, error) {
	if _, err := s.repo.FindPayoutPeriodByID(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.ListOwnerPayoutStatusByPeriod(ctx, periodID)
}

func (s *Service) publishPayoutEvent(ctx context.Context, payout *domain.OwnerPayout, routingKey string) {
	event := domain.PayoutEvent{
		PayoutID:       payout.ID,
		OwnerID:        payout.OwnerID,
		PayoutPeriodID: payout.PayoutPeriodID,
		Amount:         payout.Amount,
		Currency:       payout.Currency,
		Status:         payout.Status,
		TransactionRef: payout.TransactionRef,
		Notes:          payout.Notes,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service flow=events msg=\"event publish failed\" routing_key=%s payout_id=%s err=%v", routingKey, payout.ID, err)
	}
}
