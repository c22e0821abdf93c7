/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payments-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Tenant and Owner methods
	// These tables are owned by the identity/lease services; this service only reads them.
	FindTenantByID(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
	FindOwnerByID(ctx context.Context, ownerID uuid.UUID) (*domain.Owner, error)

	// Rent payment ledger methods
	CreateRentPayment(ctx context.Context, payment *domain.RentPayment) error
	FindRentPaymentByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*domain.RentPayment, error)
	// AdvanceRentPaymentStatus conditionally moves a payment forward through its
	// lifecycle. It returns false without error when the row exists but already
	// sits at or past the target status.
	AdvanceRentPaymentStatus(ctx context.Context, gatewayIntentID string, next domain.PaymentStatus) (bool, error)
	ListRentPaymentsByTenantID(ctx context.Context, tenantID uuid.UUID) ([]domain.RentPayment, error)

	// Owner payment calculation inputs
	SumSucceededRentPayments(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error)
	SumUtilityFees(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error)
	SumMaintenanceCosts(ctx context.Context, propertyID uuid.UUID, periodStart, periodEnd time.Time) (int64, error)

	// Owner payment methods
	CreateOwnerPayment(ctx context.Context, payment *domain.OwnerPayment) error
	FindOwnerPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.OwnerPayment, error)
	SumPendingOwnerPayments(ctx context.Context, ownerID uuid.UUID) (int64, error)
	ListOwnersWithPendingPayments(ctx context.Context) ([]uuid.UUID, error)
	// MarkOwnerPaymentsProcessed settles the owner's pending obligations that
	// existed when the payout was created. Obligations computed after the cutoff
	// were not part of the payout's amount and stay pending for the next run.
	MarkOwnerPaymentsProcessed(ctx context.Context, ownerID uuid.UUID, transferID string, cutoff time.Time) (int64, error)

	// Payout period methods
	CreatePayoutPeriod(ctx context.Context, period *domain.PayoutPeriod) error
	FindPayoutPeriodByID(ctx context.Context, periodID uuid.UUID) (*domain.PayoutPeriod, error)
	FindPayoutPeriodByEndDate(ctx context.Context, endDate time.Time) (*domain.PayoutPeriod, error)
	UpdatePayoutPeriodStatus(ctx context.Context, periodID uuid.UUID, status domain.PayoutPeriodStatus) error

	// Owner payout methods
	CreateOwnerPayout(ctx context.Context, payout *domain.OwnerPayout) error
	FindOwnerPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error)
	// ClaimOwnerPayoutForProcessing performs the Pending -> Processing transition
	// as a compare-and-set. Exactly one concurrent caller wins; every other
	// caller receives ErrPayoutNotClaimable.
	ClaimOwnerPayoutForProcessing(ctx context.Context, payoutID uuid.UUID) (*domain.OwnerPayout, error)
	CompleteOwnerPayout(ctx context.Context, payoutID uuid.UUID, transactionRef string) (*domain.OwnerPayout, error)
	FailOwnerPayout(ctx context.Context, payoutID uuid.UUID, notes string) (*domain.OwnerPayout, error)
	ListPendingOwnerPayoutsByPeriod(ctx context.Context, periodID uuid.UUID) ([]domain.OwnerPayout, error)
	CountNonTerminalOwnerPayoutsByPeriod(ctx context.Context, periodID uuid.UUID) (int64, error)
	ListOwnerPayoutStatusByPeriod(ctx context.Context, periodID uuid.UUID) ([]domain.OwnerPayoutStatusEntry, error)

	// Scheduled run: period plus its payout rows are created atomically.
	CreatePayoutPeriodWithPayouts(ctx context.Context, period *domain.PayoutPeriod, payouts []domain.OwnerPayout) error

	// Payout settings methods
	GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error)
	UpdatePayoutSettings(ctx context.Context, settings *domain.PayoutSettings) (*domain.PayoutSettings, error)
}
