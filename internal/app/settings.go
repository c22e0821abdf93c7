/**
 * @description
 * Payout settings management. Reads return the stored configuration, seeding
 * defaults on first access; updates validate the full document and replace it
 * wholesale rather than patching individual fields.
 *
 * @dependencies
 * - internal/domain: PayoutSettings model and its Validate rules.
 */

package app

import (
	"context"
	"log"

	"github.com/rentfolio/payments-service/internal/domain"
)

// GetPayoutSettings returns the payout configuration, seeding defaults on
// first read.
func (s *Service) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	return s.repo.GetPayoutSettings(ctx)
}

// UpdatePayoutSettings validates and fully replaces the payout configuration.
func (s *Service) UpdatePayoutSettings(ctx context.Context, settings domain.PayoutSettings) (*domain.PayoutSettings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdatePayoutSettings(ctx, &settings)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service flow=settings msg=\"payout settings updated\" cutoff_day=%d processing_day=%d currency=%s minimum=%d", updated.CutoffDay, updated.ProcessingDay, updated.DefaultCurrency, updated.MinimumPayoutAmount)
	return updated, nil
}
