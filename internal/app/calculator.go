/**
 * @description
 * Owner payment calculation: aggregates one property's succeeded rent for a
 * calendar month, deducts the admin fee, utility fees, and maintenance costs,
 * and records the resulting obligation.
 *
 * @notes
 * - The computation is deterministic: the same inputs always yield the same
 *   net amount, and the DB unique constraint on (owner, property, year, month)
 *   guarantees it can only be recorded once.
 * - A negative net is rejected before anything is written. The deductions and
 *   the gross are returned to the caller inside the error context so operators
 *   can see which input is off.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/domain"
)

// ComputeOwnerPayment calculates and records the platform's obligation to an
// owner for one property for one calendar month.
func (s *Service) ComputeOwnerPayment(ctx context.Context, ownerID, propertyID uuid.UUID, year, month int) (*domain.OwnerPayment, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month must be 1-12, got %d", ErrInvalidPeriod, month)
	}
	if year < 2000 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d is out of range", ErrInvalidPeriod, year)
	}

	if _, err := s.repo.FindOwnerByID(ctx, ownerID); err != nil {
		return nil, err
	}

	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	gross, err := s.repo.SumSucceededRentPayments(ctx, propertyID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to sum rent payments: %w", err)
	}
	utilities, err := s.repo.SumUtilityFees(ctx, propertyID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to sum utility fees: %w", err)
	}
	maintenance, err := s.repo.SumMaintenanceCosts(ctx, propertyID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to sum maintenance costs: %w", err)
	}

	adminFee := s.feePolicy.AdminFeeFor(gross)
	net := gross - adminFee - utilities - maintenance
	if net < 0 {
		return nil, fmt.Errorf("%w: gross=%d admin_fee=%d utilities=%d maintenance=%d", ErrNegativeNetAmount, gross, adminFee, utilities, maintenance)
	}

	payment := &domain.OwnerPayment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		PropertyID:      propertyID,
		Year:            year,
		Month:           month,
		GrossAmount:     gross,
		AdminFee:        adminFee,
		UtilityFees:     utilities,
		MaintenanceCost: maintenance,
		NetAmount:       net,
		Status:          domain.OwnerPaymentStatusPending,
	}
	if err := s.repo.CreateOwnerPayment(ctx, payment); err != nil {
		return nil, err
	}

	log.Printf("level=info component=service flow=compute_owner_payment msg=\"owner payment recorded\" owner_payment_id=%s owner_id=%s property_id=%s period=%04d-%02d gross=%d net=%d", payment.ID, ownerID, propertyID, year, month, gross, net)
	return payment, nil
}
