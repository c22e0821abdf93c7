/**
 * @description
 * PostgreSQL implementation of the owner-settlement half of the `Repository`
 * interface: computed owner payments, payout periods, owner payouts, and the
 * singleton payout settings row.
 *
 * @notes
 * - The Pending -> Processing payout claim is a compare-and-set UPDATE. Under
 *   concurrent processors exactly one caller's UPDATE matches the row; every
 *   other caller sees zero rows affected and gets ErrPayoutNotClaimable.
 * - A partial unique index on (owner_id, payout_period_id) WHERE
 *   status = 'completed' backstops the claim: even if two processors somehow
 *   both reached completion, the second COMMIT would fail.
 * - Period creation takes a transaction-scoped advisory lock before the
 *   overlap probe, so concurrent creators are serialized and cannot both pass
 *   the probe and commit overlapping windows.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rentfolio/payments-service/internal/domain"
)

// CreateOwnerPayment inserts a computed owner obligation. The unique constraint
// on (owner_id, property_id, year, month) turns a recompute into
// ErrOwnerPaymentExists instead of a duplicate obligation.
func (r *PostgresRepository) CreateOwnerPayment(ctx context.Context, payment *domain.OwnerPayment) error {
	query := `
		INSERT INTO owner_payments (id, owner_id, property_id, year, month, gross_amount, admin_fee, utility_fees, maintenance_cost, net_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.ID,
		payment.OwnerID,
		payment.PropertyID,
		payment.Year,
		payment.Month,
		payment.GrossAmount,
		payment.AdminFee,
		payment.UtilityFees,
		payment.MaintenanceCost,
		payment.NetAmount,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrOwnerPaymentExists
		}
		return err
	}
	return nil
}

// FindOwnerPaymentByID retrieves a computed owner obligation.
func (r *PostgresRepository) FindOwnerPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.OwnerPayment, error) {
	var p domain.OwnerPayment
	query := `
		SELECT id, owner_id, property_id, year, month, gross_amount, admin_fee, utility_fees, maintenance_cost, net_amount, gateway_transfer_id, status, payment_date, created_at, updated_at
		FROM owner_payments
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, paymentID).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PropertyID,
		&p.Year,
		&p.Month,
		&p.GrossAmount,
		&p.AdminFee,
		&p.UtilityFees,
		&p.MaintenanceCost,
		&p.NetAmount,
		&p.GatewayTransferID,
		&p.Status,
		&p.PaymentDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SumPendingOwnerPayments totals an owner's unsettled obligations.
func (r *PostgresRepository) SumPendingOwnerPayments(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(net_amount), 0) FROM owner_payments WHERE owner_id = $1 AND status = 'pending'`
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListOwnersWithPendingPayments returns the distinct owners that have at least
// one unsettled obligation. Used by the scheduled payout run.
func (r *PostgresRepository) ListOwnersWithPendingPayments(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT owner_id FROM owner_payments WHERE status = 'pending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// MarkOwnerPaymentsProcessed settles an owner's pending obligations recorded
// up to the cutoff, stamping the gateway transfer that paid them. Obligations
// computed after the cutoff were not part of the transfer's amount and stay
// pending for the next payout. Returns the number of rows settled.
func (r *PostgresRepository) MarkOwnerPaymentsProcessed(ctx context.Context, ownerID uuid.UUID, transferID string, cutoff time.Time) (int64, error) {
	query := `
		UPDATE owner_payments
		SET status = 'processed', gateway_transfer_id = $2, payment_date = NOW(), updated_at = NOW()
		WHERE owner_id = $1 AND status = 'pending' AND created_at <= $3
	`
	tag, err := r.db.Exec(ctx, query, ownerID, transferID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// payoutPeriodsLockID keys the advisory lock serializing period creation.
const payoutPeriodsLockID = 874219203

// createPayoutPeriodTx inserts a payout period after probing for overlap,
// using the supplied transaction. The advisory lock is released at commit or
// rollback; while it is held no other transaction can run the probe, so two
// concurrent creators cannot both see "no overlap" and insert.
func (r *PostgresRepository) createPayoutPeriodTx(ctx context.Context, tx pgx.Tx, period *domain.PayoutPeriod) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, payoutPeriodsLockID); err != nil {
		return err
	}

	// Two ranges [a_start, a_end] and [b_start, b_end] overlap iff
	// a_start <= b_end AND b_start <= a_end.
	var overlaps bool
	probe := `
		SELECT EXISTS (
			SELECT 1 FROM payout_periods
			WHERE start_date <= $2 AND $1 <= end_date
		)
	`
	if err := tx.QueryRow(ctx, probe, period.StartDate, period.EndDate).Scan(&overlaps); err != nil {
		return err
	}
	if overlaps {
		return ErrPeriodOverlap
	}

	insert := `
		INSERT INTO payout_periods (id, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return tx.QueryRow(ctx, insert, period.ID, period.StartDate, period.EndDate, period.Status).
		Scan(&period.CreatedAt, &period.UpdatedAt)
}

// CreatePayoutPeriod inserts a new payout window, rejecting any window that
// overlaps an existing one. Probe and insert run in one transaction.
func (r *PostgresRepository) CreatePayoutPeriod(ctx context.Context, period *domain.PayoutPeriod) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.createPayoutPeriodTx(ctx, tx, period); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindPayoutPeriodByID retrieves a payout window.
func (r *PostgresRepository) FindPayoutPeriodByID(ctx context.Context, periodID uuid.UUID) (*domain.PayoutPeriod, error) {
	var p domain.PayoutPeriod
	query := `SELECT id, start_date, end_date, status, created_at, updated_at FROM payout_periods WHERE id = $1`
	err := r.db.QueryRow(ctx, query, periodID).Scan(&p.ID, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindPayoutPeriodByEndDate retrieves the payout window ending on the given
// date, if one exists. The scheduled run uses this to skip re-creating a period.
func (r *PostgresRepository) FindPayoutPeriodByEndDate(ctx context.Context, endDate time.Time) (*domain.PayoutPeriod, error) {
	var p domain.PayoutPeriod
	query := `SELECT id, start_date, end_date, status, created_at, updated_at FROM payout_periods WHERE end_date = $1`
	err := r.db.QueryRow(ctx, query, endDate).Scan(&p.ID, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdatePayoutPeriodStatus advances a period through its lifecycle. The
// scheduled run moves a period to processing when it starts working it and to
// completed once every payout in it has reached a terminal state.
func (r *PostgresRepository) UpdatePayoutPeriodStatus(ctx context.Context, periodID uuid.UUID, status domain.PayoutPeriodStatus) error {
	query := `UPDATE payout_periods SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, periodID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayoutPeriodNotFound
	}
	return nil
}

// CreateOwnerPayout inserts a new payout row in Pending state.
func (r *PostgresRepository) CreateOwnerPayout(ctx context.Context, payout *domain.OwnerPayout) error {
	query := `
		INSERT INTO owner_payouts (id, owner_id, payout_period_id, amount, currency, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		payout.ID,
		payout.OwnerID,
		payout.PayoutPeriodID,
		payout.Amount,
		payout.Currency,
		payout.Status,
		payout.Notes,
	).Scan(&payout.CreatedAt)
}

// FindOwnerPayoutByID retrieves a payout row.
func (r *PostgresRepository) FindOwnerPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	var p domain.OwnerPayout
	query := `
		SELECT id, owner_id, payout_period_id, amount, currency, status, transaction_ref, notes, created_at, processed_at
		FROM owner_payouts
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, payoutID).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PayoutPeriodID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.TransactionRef,
		&p.Notes,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ClaimOwnerPayoutForProcessing atomically moves a payout from Pending to
// Processing. The conditional UPDATE is the claim: only one concurrent caller
// can match the Pending row. Callers that lose the race (or target a payout in
// any other state) get ErrPayoutNotClaimable; a missing payout is ErrPayoutNotFound.
func (r *PostgresRepository) ClaimOwnerPayoutForProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error) {
	var p domain.OwnerPayout
	query := `
		UPDATE owner_payouts
		SET status = 'processing'
		WHERE id = $1 AND status = 'pending'
		RETURNING id, owner_id, payout_period_id, amount, currency, status, transaction_ref, notes, created_at, processed_at
	`
	err := r.db.QueryRow(ctx, query, payoutID).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PayoutPeriodID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.TransactionRef,
		&p.Notes,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish an unclaimable payout from a missing one.
			var exists bool
			if probeErr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM owner_payouts WHERE id = $1)`, payoutID).Scan(&exists); probeErr != nil {
				return nil, probeErr
			}
			if !exists {
				return nil, ErrPayoutNotFound
			}
			return nil, ErrPayoutNotClaimable
		}
		return nil, err
	}
	return &p, nil
}

// CompleteOwnerPayout finalizes a Processing payout as Completed, recording the
// gateway transaction reference. The partial unique index on
// (owner_id, payout_period_id) WHERE status = 'completed' makes a second
// completion for the same owner and period impossible at the storage layer.
func (r *PostgresRepository) CompleteOwnerPayout(ctx context.Context, payoutID uuid.UUID, transactionRef string) (*domain.OwnerPayout, error) {
	var p domain.OwnerPayout
	query := `
		UPDATE owner_payouts
		SET status = 'completed', transaction_ref = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING id, owner_id, payout_period_id, amount, currency, status, transaction_ref, notes, created_at, processed_at
	`
	err := r.db.QueryRow(ctx, query, payoutID, transactionRef).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PayoutPeriodID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.TransactionRef,
		&p.Notes,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, ErrPayoutNotClaimable
		}
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotClaimable
		}
		return nil, err
	}
	return &p, nil
}

// FailOwnerPayout finalizes a Processing payout as Failed with a human-readable
// note describing the gateway error. Failed is terminal; a retry is a new row.
func (r *PostgresRepository) FailOwnerPayout(ctx context.Context, payoutID uuid.UUID, notes string) (*domain.OwnerPayout, error) {
	var p domain.OwnerPayout
	query := `
		UPDATE owner_payouts
		SET status = 'failed', notes = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING id, owner_id, payout_period_id, amount, currency, status, transaction_ref, notes, created_at, processed_at
	`
	err := r.db.QueryRow(ctx, query, payoutID, notes).Scan(
		&p.ID,
		&p.OwnerID,
		&p.PayoutPeriodID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.TransactionRef,
		&p.Notes,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotClaimable
		}
		return nil, err
	}
	return &p, nil
}

// ListPendingOwnerPayoutsByPeriod returns the Pending payouts for a period,
// oldest first. Used by the scheduled run's processing step.
func (r *PostgresRepository) ListPendingOwnerPayoutsByPeriod(ctx context.Context, periodID uuid.UUID) ([]domain.OwnerPayout, error) {
	query := `
		SELECT id, owner_id, payout_period_id, amount, currency, status, transaction_ref, notes, created_at, processed_at
		FROM owner_payouts
		WHERE payout_period_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.OwnerPayout
	for rows.Next() {
		var p domain.OwnerPayout
		if err := rows.Scan(
			&p.ID,
			&p.OwnerID,
			&p.PayoutPeriodID,
			&p.Amount,
			&p.Currency,
			&p.Status,
			&p.TransactionRef,
			&p.Notes,
			&p.CreatedAt,
			&p.ProcessedAt,
		); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// CountNonTerminalOwnerPayoutsByPeriod counts the period's payouts still in
// pending or processing. The scheduled run closes a period only at zero.
func (r *PostgresRepository) CountNonTerminalOwnerPayoutsByPeriod(ctx context.Context, periodID uuid.UUID) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM owner_payouts
		WHERE payout_period_id = $1 AND status IN ('pending', 'processing')
	`
	if err := r.db.QueryRow(ctx, query, periodID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListOwnerPayoutStatusByPeriod reports, for every owner with a payout in the
// period or an unsettled obligation, whether they have received a completed
// payout. Owners the scheduled run skipped (below minimum, or never given a
// payout row) still surface here as owed, which is the point of the report.
func (r *PostgresRepository) ListOwnerPayoutStatusByPeriod(ctx context.Context, periodID uuid.UUID) ([]domain.OwnerPayoutStatusEntry, error) {
	query := `
		SELECT owner_id, BOOL_OR(received) AS has_received
		FROM (
			SELECT o.owner_id, o.status = 'completed' AS received
			FROM owner_payouts o
			WHERE o.payout_period_id = $1
			UNION ALL
			SELECT p.owner_id, FALSE
			FROM owner_payments p
			JOIN payout_periods pp ON pp.id = $1
			WHERE p.status = 'pending'
			  AND make_date(p.year, p.month, 1) >= pp.start_date
			  AND make_date(p.year, p.month, 1) <= pp.end_date
		) combined
		GROUP BY owner_id
		ORDER BY owner_id
	`
	rows, err := r.db.Query(ctx, query, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.OwnerPayoutStatusEntry
	for rows.Next() {
		var e domain.OwnerPayoutStatusEntry
		if err := rows.Scan(&e.OwnerID, &e.HasReceivedPayout); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatePayoutPeriodWithPayouts creates a payout window and its Pending payout
// rows in one transaction, so a half-created run never becomes visible.
func (r *PostgresRepository) CreatePayoutPeriodWithPayouts(ctx context.Context, period *domain.PayoutPeriod, payouts []domain.OwnerPayout) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.createPayoutPeriodTx(ctx, tx, period); err != nil {
		return err
	}

	insert := `
		INSERT INTO owner_payouts (id, owner_id, payout_period_id, amount, currency, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	for i := range payouts {
		p := &payouts[i]
		p.PayoutPeriodID = period.ID
		if _, err := tx.Exec(ctx, insert, p.ID, p.OwnerID, p.PayoutPeriodID, p.Amount, p.Currency, p.Status, p.Notes); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetPayoutSettings returns the singleton settings row, creating it with
// defaults on first read.
func (r *PostgresRepository) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	seed := `
		INSERT INTO payout_settings (id, cutoff_day, processing_day, default_currency, minimum_payout_amount, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	defaults := domain.DefaultPayoutSettings()
	if _, err := r.db.Exec(ctx, seed, defaults.CutoffDay, defaults.ProcessingDay, defaults.DefaultCurrency, defaults.MinimumPayoutAmount); err != nil {
		return nil, err
	}

	var s domain.PayoutSettings
	query := `SELECT cutoff_day, processing_day, default_currency, minimum_payout_amount, updated_at FROM payout_settings WHERE id = 1`
	if err := r.db.QueryRow(ctx, query).Scan(&s.CutoffDay, &s.ProcessingDay, &s.DefaultCurrency, &s.MinimumPayoutAmount, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdatePayoutSettings replaces the singleton settings row in full.
func (r *PostgresRepository) UpdatePayoutSettings(ctx context.Context, settings *domain.PayoutSettings) (*domain.PayoutSettings, error) {
	var s domain.PayoutSettings
	query := `
		INSERT INTO payout_settings (id, cutoff_day, processing_day, default_currency, minimum_payout_amount, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET cutoff_day = EXCLUDED.cutoff_day,
		    processing_day = EXCLUDED.processing_day,
		    default_currency = EXCLUDED.default_currency,
		    minimum_payout_amount = EXCLUDED.minimum_payout_amount,
		    updated_at = NOW()
		RETURNING cutoff_day, processing_day, default_currency, minimum_payout_amount, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		settings.CutoffDay,
		settings.ProcessingDay,
		settings.DefaultCurrency,
		settings.MinimumPayoutAmount,
	).Scan(&s.CutoffDay, &s.ProcessingDay, &s.DefaultCurrency, &s.MinimumPayoutAmount, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
