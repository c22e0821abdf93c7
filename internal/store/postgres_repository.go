/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for the rent-payment side of the ledger: tenant and owner lookups, rent payment
 * rows keyed by gateway intent id, and the aggregate sums the owner-payment
 * calculator consumes.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Status monotonicity is enforced in SQL: the conditional UPDATE in
 *   AdvanceRentPaymentStatus only matches rows whose current status ranks
 *   strictly below the target, so a late or redelivered callback can never move
 *   a payment backwards, regardless of what the application layer believes.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentfolio/payments-service/internal/domain"
)

var (
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrOwnerNotFound          = errors.New("owner not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPayoutNotFound         = errors.New("payout not found")
	ErrPayoutPeriodNotFound   = errors.New("payout period not found")
	ErrDuplicatePaymentIntent = errors.New("payment intent already recorded")
	ErrOwnerPaymentExists     = errors.New("owner payment already computed for this period")
	ErrPayoutNotClaimable     = errors.New("payout is not in a claimable state")
	ErrPeriodOverlap          = errors.New("payout period overlaps an existing period")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), optionally scoped to a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// FindTenantByID retrieves the service's view of a tenant: identity, gateway
// customer association, and the lease link to a property and owner.
func (r *PostgresRepository) FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	query := `
		SELECT t.id, t.gateway_customer_id, l.property_id, l.owner_id
		FROM tenants t
		JOIN leases l ON l.tenant_id = t.id AND l.active = TRUE
		WHERE t.id = $1
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&tenant.ID, &tenant.GatewayCustomerID, &tenant.PropertyID, &tenant.OwnerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindOwnerByID retrieves an owner and their gateway payout destination.
func (r *PostgresRepository) FindOwnerByID(ctx context.Context, ownerID uuid.UUID) (*domain.Owner, error) {
	var owner domain.Owner
	query := `SELECT id, gateway_account_id FROM owners WHERE id = $1`
	err := r.db.QueryRow(ctx, query, ownerID).Scan(&owner.ID, &owner.GatewayAccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return &owner, nil
}

// CreateRentPayment inserts a new ledger row for a charge attempt. The unique
// constraint on gateway_intent_id turns duplicate inserts into
// ErrDuplicatePaymentIntent instead of a second row.
func (r *PostgresRepository) CreateRentPayment(ctx context.Context, payment *domain.RentPayment) error {
	query := `
		INSERT INTO rent_payments (id, tenant_id, amount, currency, gateway_intent_id, gateway_payment_method_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.ID,
		payment.TenantID,
		payment.Amount,
		payment.Currency,
		payment.GatewayIntentID,
		payment.GatewayPaymentMethodID,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicatePaymentIntent
		}
		return err
	}
	return nil
}

// FindRentPaymentByGatewayIntentID retrieves a ledger row by its gateway intent id.
func (r *PostgresRepository) FindRentPaymentByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*domain.RentPayment, error) {
	var payment domain.RentPayment
	query := `
		SELECT id, tenant_id, amount, currency, gateway_intent_id, gateway_payment_method_id, status, created_at, updated_at
		FROM rent_payments
		WHERE gateway_intent_id = $1
	`
	err := r.db.QueryRow(ctx, query, gatewayIntentID).Scan(
		&payment.ID,
		&payment.TenantID,
		&payment.Amount,
		&payment.Currency,
		&payment.GatewayIntentID,
		&payment.GatewayPaymentMethodID,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// AdvanceRentPaymentStatus conditionally advances a payment's status. The WHERE
// clause only matches rows ranked strictly below the target (or any non-terminal
// row when the target is Cancelled), so redelivered and out-of-order callbacks
// collapse to no-ops. Returns (false, nil) when the row exists but was not
// advanced, and ErrPaymentNotFound when no row exists at all.
func (r *PostgresRepository) AdvanceRentPaymentStatus(ctx context.Context, gatewayIntentID string, next domain.PaymentStatus) (bool, error) {
	// The set of statuses the row may currently hold for this advance to apply.
	var eligible []string
	if next == domain.PaymentStatusCancelled {
		eligible = []string{
			string(domain.PaymentStatusRequiresPaymentMethod),
			string(domain.PaymentStatusRequiresConfirmation),
			string(domain.PaymentStatusRequiresAction),
			string(domain.PaymentStatusProcessing),
			string(domain.PaymentStatusRequiresCapture),
		}
	} else {
		for _, s := range domain.StatusesBelow(next) {
			eligible = append(eligible, string(s))
		}
	}

	query := `
		UPDATE rent_payments
		SET status = $2, updated_at = NOW()
		WHERE gateway_intent_id = $1
		  AND status = ANY($3)
	`
	tag, err := r.db.Exec(ctx, query, gatewayIntentID, next, eligible)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// No row advanced: distinguish "already at or past target" from "missing".
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rent_payments WHERE gateway_intent_id = $1)`, gatewayIntentID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrPaymentNotFound
	}
	return false, nil
}

// ListRentPaymentsByTenantID returns a tenant's payment history, newest first.
func (r *PostgresRepository) ListRentPaymentsByTenantID(ctx context.Context, tenantID uuid.UUID) ([]domain.RentPayment, error) {
	query := `
		SELECT id, tenant_id, amount, currency, gateway_intent_id, gateway_payment_method_id, status, created_at, updated_at
		FROM rent_payments
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.RentPayment
	for rows.Next() {
		var p domain.RentPayment
		if err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Amount,
			&p.Currency,
			&p.GatewayIntentID,
			&p.GatewayPaymentMethodID,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SumSucceededRentPayments totals the succeeded rent collected for a property
// within [periodStart, periodEnd), keyed by each payment's creation time. The
// join is scoped to the tenant's active lease, matching FindTenantByID: a
// tenant's lease history must not fan the join out and count a payment once
// per lease row, and a tenant who moved attributes payments to their current
// property only.
func (r *PostgresRepository) SumSucceededRentPayments(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(rp.amount), 0)
		FROM rent_payments rp
		JOIN leases l ON l.tenant_id = rp.tenant_id AND l.active = TRUE
		WHERE l.property_id = $1
		  AND rp.status = 'succeeded'
		  AND rp.created_at >= $2
		  AND rp.created_at < $3
	`
	err := r.db.QueryRow(ctx, query, propertyID, periodStart, periodEnd).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumUtilityFees totals a property's utility charges within [periodStart, periodEnd).
func (r *PostgresRepository) SumUtilityFees(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM utility_fees
		WHERE property_id = $1
		  AND incurred_at >= $2
		  AND incurred_at < $3
	`
	err := r.db.QueryRow(ctx, query, propertyID, periodStart, periodEnd).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumMaintenanceCosts totals a property's completed maintenance costs within
// [periodStart, periodEnd).
func (r *PostgresRepository) SumMaintenanceCosts(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(cost), 0)
		FROM maintenance_tasks
		WHERE property_id = $1
		  AND status = 'completed'
		  AND completed_at >= $2
		  AND completed_at < $3
	`
	err := r.db.QueryRow(ctx, query, propertyID, periodStart, periodEnd).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
