/**
 * @description
 * Integration tests for the PostgreSQL repository, exercising the SQL that the
 * in-memory stubs in the app package cannot: join scoping, time-window
 * filtering, cutoff-bounded settlement, the reconciliation report, and the
 * serialization of concurrent period creation.
 *
 * These tests need a live database and are skipped unless TEST_DATABASE_URL
 * is set. Every test recreates the schema, so point it at a throwaway
 * database.
 */

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentfolio/payments-service/internal/domain"
)

const testSchema = `
	DROP TABLE IF EXISTS owner_payouts, payout_periods, payout_settings, owner_payments,
		rent_payments, utility_fees, maintenance_tasks, leases, tenants, owners CASCADE;

	CREATE TABLE tenants (
		id UUID PRIMARY KEY,
		gateway_customer_id TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE owners (
		id UUID PRIMARY KEY,
		gateway_account_id TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE leases (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		property_id UUID NOT NULL,
		owner_id UUID NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE TABLE rent_payments (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		gateway_intent_id TEXT NOT NULL UNIQUE,
		gateway_payment_method_id TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE utility_fees (
		id UUID PRIMARY KEY,
		property_id UUID NOT NULL,
		amount BIGINT NOT NULL,
		incurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE maintenance_tasks (
		id UUID PRIMARY KEY,
		property_id UUID NOT NULL,
		cost BIGINT NOT NULL,
		status TEXT NOT NULL,
		completed_at TIMESTAMPTZ
	);
	CREATE TABLE owner_payments (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		property_id UUID NOT NULL,
		year INT NOT NULL,
		month INT NOT NULL,
		gross_amount BIGINT NOT NULL,
		admin_fee BIGINT NOT NULL,
		utility_fees BIGINT NOT NULL,
		maintenance_cost BIGINT NOT NULL,
		net_amount BIGINT NOT NULL,
		gateway_transfer_id TEXT,
		status TEXT NOT NULL,
		payment_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner_id, property_id, year, month)
	);
	CREATE TABLE payout_periods (
		id UUID PRIMARY KEY,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE owner_payouts (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		payout_period_id UUID NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_ref TEXT,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX uq_owner_payouts_completed
		ON owner_payouts (owner_id, payout_period_id) WHERE status = 'completed';
	CREATE TABLE payout_settings (
		id INT PRIMARY KEY,
		cutoff_day INT NOT NULL,
		processing_day INT NOT NULL,
		default_currency TEXT NOT NULL,
		minimum_payout_amount BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

func newTestRepository(t *testing.T) (*PostgresRepository, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration tests")
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(), testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return NewPostgresRepository(pool), pool
}

func insertLease(t *testing.T, pool *pgxpool.Pool, tenantID, propertyID, ownerID uuid.UUID, active bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO leases (id, tenant_id, property_id, owner_id, active) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), tenantID, propertyID, ownerID, active)
	if err != nil {
		t.Fatalf("insert lease: %v", err)
	}
}

func insertRentPayment(t *testing.T, pool *pgxpool.Pool, tenantID uuid.UUID, amount int64, status string, createdAt, updatedAt time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO rent_payments (id, tenant_id, amount, currency, gateway_intent_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'USD', $4, $5, $6, $7)`,
		uuid.New(), tenantID, amount, "pi_"+uuid.NewString(), status, createdAt, updatedAt)
	if err != nil {
		t.Fatalf("insert rent payment: %v", err)
	}
}

func insertOwnerPayment(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID, year, month int, net int64, status string, createdAt time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO owner_payments (id, owner_id, property_id, year, month, gross_amount, admin_fee, utility_fees, maintenance_cost, net_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $6, $7, $8, $8)`,
		uuid.New(), ownerID, uuid.New(), year, month, net, status, createdAt)
	if err != nil {
		t.Fatalf("insert owner payment: %v", err)
	}
}

// A tenant who renews their lease gets a second lease row for the same
// property. The rent aggregate must still count each payment exactly once.
func TestSumSucceededRentPayments_LeaseHistoryDoesNotInflateTotals(t *testing.T) {
	repo, pool := newTestRepository(t)
	tenantID, propertyID, ownerID := uuid.New(), uuid.New(), uuid.New()

	insertLease(t, pool, tenantID, propertyID, ownerID, false)
	insertLease(t, pool, tenantID, propertyID, ownerID, true)

	paidAt := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	insertRentPayment(t, pool, tenantID, 150000, "succeeded", paidAt, paidAt)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	total, err := repo.SumSucceededRentPayments(context.Background(), propertyID, start, end)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 150000 {
		t.Fatalf("expected 150000, got %d", total)
	}
}

// A tenant who moved keeps their old, inactive lease row. Their payments
// belong to the property of the active lease, not the old one.
func TestSumSucceededRentPayments_AttributedToActiveLeaseProperty(t *testing.T) {
	repo, pool := newTestRepository(t)
	tenantID, ownerID := uuid.New(), uuid.New()
	oldProperty, newProperty := uuid.New(), uuid.New()

	insertLease(t, pool, tenantID, oldProperty, ownerID, false)
	insertLease(t, pool, tenantID, newProperty, ownerID, true)

	paidAt := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	insertRentPayment(t, pool, tenantID, 150000, "succeeded", paidAt, paidAt)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	oldTotal, err := repo.SumSucceededRentPayments(context.Background(), oldProperty, start, end)
	if err != nil {
		t.Fatalf("sum old property: %v", err)
	}
	if oldTotal != 0 {
		t.Fatalf("old property must not receive the payment, got %d", oldTotal)
	}
	newTotal, err := repo.SumSucceededRentPayments(context.Background(), newProperty, start, end)
	if err != nil {
		t.Fatalf("sum new property: %v", err)
	}
	if newTotal != 150000 {
		t.Fatalf("expected 150000 on the active property, got %d", newTotal)
	}
}

// The monthly window is keyed by when the payment was created, not when its
// status last changed. A January payment that succeeds in February still
// belongs to January.
func TestSumSucceededRentPayments_WindowUsesCreationTime(t *testing.T) {
	repo, pool := newTestRepository(t)
	tenantID, propertyID, ownerID := uuid.New(), uuid.New(), uuid.New()
	insertLease(t, pool, tenantID, propertyID, ownerID, true)

	createdJan := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	succeededFeb := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	insertRentPayment(t, pool, tenantID, 150000, "succeeded", createdJan, succeededFeb)

	janStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	febStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	marStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	janTotal, err := repo.SumSucceededRentPayments(context.Background(), propertyID, janStart, febStart)
	if err != nil {
		t.Fatalf("sum january: %v", err)
	}
	if janTotal != 150000 {
		t.Fatalf("expected the payment in its creation month, got %d", janTotal)
	}
	febTotal, err := repo.SumSucceededRentPayments(context.Background(), propertyID, febStart, marStart)
	if err != nil {
		t.Fatalf("sum february: %v", err)
	}
	if febTotal != 0 {
		t.Fatalf("the payment must not shift into the month it succeeded, got %d", febTotal)
	}
}

// Settlement only covers obligations that existed when the payout was
// created. An obligation computed afterwards stays pending for the next run.
func TestMarkOwnerPaymentsProcessed_BoundedByCutoff(t *testing.T) {
	repo, pool := newTestRepository(t)
	ownerID := uuid.New()

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	insertOwnerPayment(t, pool, ownerID, 2026, 6, 100000, "pending", cutoff.AddDate(0, 0, -10))
	insertOwnerPayment(t, pool, ownerID, 2026, 7, 90000, "pending", cutoff.AddDate(0, 0, 5))

	settled, err := repo.MarkOwnerPaymentsProcessed(context.Background(), ownerID, "tr_1", cutoff)
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 obligation settled, got %d", settled)
	}

	remaining, err := repo.SumPendingOwnerPayments(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("sum pending: %v", err)
	}
	if remaining != 90000 {
		t.Fatalf("the post-cutoff obligation must stay pending, got %d", remaining)
	}
}

// The per-period report must surface owners who are still owed even when the
// scheduled run never created a payout row for them.
func TestListOwnerPayoutStatusByPeriod_IncludesOwedOwnersWithoutPayouts(t *testing.T) {
	repo, pool := newTestRepository(t)

	period := &domain.PayoutPeriod{
		ID:        uuid.New(),
		StartDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		Status:    domain.PayoutPeriodStatusPending,
	}
	if err := repo.CreatePayoutPeriod(context.Background(), period); err != nil {
		t.Fatalf("create period: %v", err)
	}

	paidOwner, owedOwner := uuid.New(), uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO owner_payouts (id, owner_id, payout_period_id, amount, currency, status) VALUES ($1, $2, $3, 250000, 'USD', 'completed')`,
		uuid.New(), paidOwner, period.ID)
	if err != nil {
		t.Fatalf("insert payout: %v", err)
	}
	insertOwnerPayment(t, pool, owedOwner, 2026, 7, 4500, "pending", time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC))

	entries, err := repo.ListOwnerPayoutStatusByPeriod(context.Background(), period.ID)
	if err != nil {
		t.Fatalf("list status: %v", err)
	}
	received := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		received[e.OwnerID] = e.HasReceivedPayout
	}
	if got, ok := received[paidOwner]; !ok || !got {
		t.Fatalf("the paid owner must report received, got %+v", entries)
	}
	if got, ok := received[owedOwner]; !ok || got {
		t.Fatalf("the owed owner without a payout must appear as unpaid, got %+v", entries)
	}
}

// Two concurrent creators of overlapping windows must not both commit. The
// advisory lock serializes them, so exactly one gets the overlap error.
func TestCreatePayoutPeriod_ConcurrentOverlapRejected(t *testing.T) {
	repo, _ := newTestRepository(t)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			period := &domain.PayoutPeriod{
				ID:        uuid.New(),
				StartDate: start,
				EndDate:   end,
				Status:    domain.PayoutPeriodStatusPending,
			}
			errs <- repo.CreatePayoutPeriod(context.Background(), period)
		}()
	}

	var created, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			created++
		case errors.Is(err, ErrPeriodOverlap):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner, got created=%d rejected=%d", created, rejected)
	}
}
