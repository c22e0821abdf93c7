/**
 * @description
 * The scheduled payout run. On the configured processing day it derives the
 * period ending on the most recent cutoff day, creates the period together
 * with a Pending payout for every owner whose unsettled obligations meet the
 * minimum, and then processes those payouts one by one.
 *
 * Each phase tolerates partial failure: an owner whose payout cannot be
 * created or processed is logged and skipped, never aborting the whole run.
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
)

// PayoutRunResult summarizes one scheduled run for logging and the admin API.
type PayoutRunResult struct {
	PeriodID         uuid.UUID `json:"period_id"`
	PeriodCreated    bool      `json:"period_created"`
	PayoutsCreated   int       `json:"payouts_created"`
	PayoutsCompleted int       `json:"payouts_completed"`
	PayoutsFailed    int       `json:"payouts_failed"`
	OwnersSkipped    int       `json:"owners_skipped"`
}

// RunScheduledPayouts executes the payout run for the period ending at the
// cutoff preceding now. Safe to re-run: an existing period is reused, and
// already-claimed payouts are skipped.
func (s *Service) RunScheduledPayouts(ctx context.Context, now time.Time) (*PayoutRunResult, error) {
	settings, err := s.repo.GetPayoutSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout settings: %w", err)
	}

	start, end := payoutWindowFor(now.UTC(), settings.CutoffDay)
	result := &PayoutRunResult{}

	period, err := s.repo.FindPayoutPeriodByEndDate(ctx, end)
	switch {
	case err == nil:
		log.Printf("level=info component=service flow=scheduled_payouts msg=\"reusing existing period\" period_id=%s end=%s", period.ID, end.Format("2006-01-02"))
	case errors.Is(err, store.ErrPayoutPeriodNotFound):
		period, err = s.createPeriodWithOwnerPayouts(ctx, start, end, settings, result)
		if err != nil {
			return nil, err
		}
		result.PeriodCreated = true
	default:
		return nil, fmt.Errorf("failed to look up payout period: %w", err)
	}
	result.PeriodID = period.ID

	pending, err := s.repo.ListPendingOwnerPayoutsByPeriod(ctx, period.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payouts: %w", err)
	}

	if err := s.repo.UpdatePayoutPeriodStatus(ctx, period.ID, domain.PayoutPeriodStatusProcessing); err != nil {
		log.Printf("level=warn component=service flow=scheduled_payouts msg=\"could not mark period processing\" period_id=%s err=%v", period.ID, err)
	}

	for _, payout := range pending {
		processed, err := s.ProcessOwnerPayout(ctx, payout.ID)
		if err != nil {
			if errors.Is(err, store.ErrPayoutNotClaimable) {
				// Another processor got there first.
				continue
			}
			result.PayoutsFailed++
			log.Printf("level=error component=service flow=scheduled_payouts msg=\"payout processing errored\" payout_id=%s err=%v", payout.ID, err)
			continue
		}
		if processed.Status == domain.PayoutStatusCompleted {
			result.PayoutsCompleted++
		} else {
			result.PayoutsFailed++
		}
	}

	// The period is done once every payout in it is terminal. Re-check rather
	// than trust the loop's counts: a concurrent processor may still hold a
	// claim, in which case the next run closes the period.
	remaining, err := s.repo.CountNonTerminalOwnerPayoutsByPeriod(ctx, period.ID)
	if err != nil {
		log.Printf("level=warn component=service flow=scheduled_payouts msg=\"could not count open payouts\" period_id=%s err=%v", period.ID, err)
	} else if remaining == 0 {
		if err := s.repo.UpdatePayoutPeriodStatus(ctx, period.ID, domain.PayoutPeriodStatusCompleted); err != nil {
			log.Printf("level=warn component=service flow=scheduled_payouts msg=\"could not mark period completed\" period_id=%s err=%v", period.ID, err)
		}
	}

	log.Printf("level=info component=service flow=scheduled_payouts msg=\"run finished\" period_id=%s created=%d completed=%d failed=%d skipped=%d", period.ID, result.PayoutsCreated, result.PayoutsCompleted, result.PayoutsFailed, result.OwnersSkipped)
	return result, nil
}

func (s *Service) createPeriodWithOwnerPayouts(ctx context.Context, start, end time.Time, settings *domain.PayoutSettings, result *PayoutRunResult) (*domain.PayoutPeriod, error) {
	owners, err := s.repo.ListOwnersWithPendingPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners with pending payments: %w", err)
	}

	var payouts []domain.OwnerPayout
	for _, ownerID := range owners {
		total, err := s.repo.SumPendingOwnerPayments(ctx, ownerID)
		if err != nil {
			result.OwnersSkipped++
			log.Printf("level=warn component=service flow=scheduled_payouts msg=\"could not total owner payments; owner skipped\" owner_id=%s err=%v", ownerID, err)
			continue
		}
		if total < settings.MinimumPayoutAmount {
			result.OwnersSkipped++
			log.Printf("level=info component=service flow=scheduled_payouts msg=\"owner below minimum; carried to next period\" owner_id=%s total=%d minimum=%d", ownerID, total, settings.MinimumPayoutAmount)
			continue
		}
		payouts = append(payouts, domain.OwnerPayout{
			ID:       uuid.New(),
			OwnerID:  ownerID,
			Amount:   total,
			Currency: settings.DefaultCurrency,
			Status:   domain.PayoutStatusPending,
		})
	}

	period := &domain.PayoutPeriod{
		ID:        uuid.New(),
		StartDate: start,
		EndDate:   end,
		Status:    domain.PayoutPeriodStatusPending,
	}
	if err := s.repo.CreatePayoutPeriodWithPayouts(ctx, period, payouts); err != nil {
		return nil, fmt.Errorf("failed to create payout period with payouts: %w", err)
	}
	result.PayoutsCreated = len(payouts)
	log.Printf("level=info component=service flow=scheduled_payouts msg=\"period created\" period_id=%s payouts=%d", period.ID, len(payouts))
	return period, nil
}

// payoutWindowFor derives the month-long window ending on the most recent
// cutoff day at or before now. Cutoff days past a month's length clamp to the
// month's last day.
func payoutWindowFor(now time.Time, cutoffDay int) (start, end time.Time) {
	year, month := now.Year(), now.Month()
	end = clampedDate(year, month, cutoffDay)
	if end.After(now) {
		end = clampedDate(year, month-1, cutoffDay)
	}
	start = end.AddDate(0, -1, 0).AddDate(0, 0, 1)
	return start, end
}

// clampedDate builds a UTC date, clamping the day to the month's length.
func clampedDate(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
