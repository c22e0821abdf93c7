/**
 * @description
 * Domain models for owner-side settlement: the computed obligation to an owner
 * for a calendar period (OwnerPayment), the time-bounded window a payout run
 * covers (PayoutPeriod), and the disbursement instrument itself (OwnerPayout).
 *
 * OwnerPayment and OwnerPayout are deliberately distinct entities: the payment
 * is bookkeeping (what the platform owes), the payout is the transfer that
 * settles it. A failed payout never rewrites the obligation.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OwnerPaymentStatus is the settlement state of a computed owner obligation.
type OwnerPaymentStatus string

const (
	OwnerPaymentStatusPending   OwnerPaymentStatus = "pending"
	OwnerPaymentStatusProcessed OwnerPaymentStatus = "processed"
	OwnerPaymentStatusFailed    OwnerPaymentStatus = "failed"
)

// OwnerPayment is the platform's obligation to one owner for one property for
// one calendar month. The `owner_payments` table carries a unique constraint on
// (owner_id, property_id, year, month) so that the obligation can only ever be
// computed once.
type OwnerPayment struct {
	ID                uuid.UUID          `json:"id"`
	OwnerID           uuid.UUID          `json:"owner_id"`
	PropertyID        uuid.UUID          `json:"property_id"`
	Year              int                `json:"year"`
	Month             int                `json:"month"`
	GrossAmount       int64              `json:"gross_amount"` // in cents
	AdminFee          int64              `json:"admin_fee"`
	UtilityFees       int64              `json:"utility_fees"`
	MaintenanceCost   int64              `json:"maintenance_cost"`
	NetAmount         int64              `json:"net_amount"`
	GatewayTransferID *string            `json:"gateway_transfer_id,omitempty"`
	Status            OwnerPaymentStatus `json:"status"`
	PaymentDate       *time.Time         `json:"payment_date,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// PayoutPeriodStatus is the processing state of a payout window.
type PayoutPeriodStatus string

const (
	PayoutPeriodStatusPending    PayoutPeriodStatus = "pending"
	PayoutPeriodStatusProcessing PayoutPeriodStatus = "processing"
	PayoutPeriodStatusCompleted  PayoutPeriodStatus = "completed"
)

// PayoutPeriod is a time-bounded window over which owner obligations are
// aggregated and disbursed together. Periods must not overlap.
type PayoutPeriod struct {
	ID        uuid.UUID          `json:"id"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	Status    PayoutPeriodStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// PayoutStatus is the disbursement state of an OwnerPayout.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// IsTerminal reports whether the payout can no longer transition. A failed
// payout is retried by creating a fresh record, never by mutating this one;
// the failed row stays as the audit trail of the attempt.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

// OwnerPayout is a disbursement of funds to one owner for one payout period.
// The `owner_payouts` table carries a partial unique index on
// (owner_id, payout_period_id) WHERE status = 'completed' so that at most one
// completed payout can ever exist per owner per period, even under concurrent
// writers.
type OwnerPayout struct {
	ID             uuid.UUID    `json:"id"`
	OwnerID        uuid.UUID    `json:"owner_id"`
	PayoutPeriodID uuid.UUID    `json:"payout_period_id"`
	Amount         int64        `json:"amount"` // in cents
	Currency       string       `json:"currency"`
	Status         PayoutStatus `json:"status"`
	TransactionRef *string      `json:"transaction_ref,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ProcessedAt    *time.Time   `json:"processed_at,omitempty"`
}

// PayoutSettings is the process-wide payout configuration record. It is a
// singleton, lazily created with defaults on first read and fully replaced on
// update. MinimumPayoutAmount is in cents, like every other amount.
type PayoutSettings struct {
	CutoffDay           int       `json:"cutoff_day"`
	ProcessingDay       int       `json:"processing_day"`
	DefaultCurrency     string    `json:"default_currency"`
	MinimumPayoutAmount int64     `json:"minimum_payout_amount"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultPayoutSettings returns the values the singleton settings row is
// seeded with on first read: cutoff on the 1st, processing on the 5th, USD,
// and a 100.00 minimum expressed in cents.
func DefaultPayoutSettings() PayoutSettings {
	return PayoutSettings{
		CutoffDay:           1,
		ProcessingDay:       5,
		DefaultCurrency:     "USD",
		MinimumPayoutAmount: 10000,
	}
}

// CreatePayoutPeriodRequest is the DTO for creating a payout window.
type CreatePayoutPeriodRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CreateOwnerPayoutRequest is the DTO for creating a payout record.
type CreateOwnerPayoutRequest struct {
	OwnerID        uuid.UUID `json:"owner_id"`
	PayoutPeriodID uuid.UUID `json:"payout_period_id"`
	Amount         int64     `json:"amount"` // in cents
}

// ComputeOwnerPaymentRequest is the DTO for computing an owner obligation.
type ComputeOwnerPaymentRequest struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	PropertyID uuid.UUID `json:"property_id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
}

// OwnerPayoutStatusEntry is one row of the per-period reconciliation report:
// which owners have received their payout for the period and which are still owed.
type OwnerPayoutStatusEntry struct {
	OwnerID           uuid.UUID `json:"owner_id"`
	HasReceivedPayout bool      `json:"has_received_payout"`
}

// PayoutEvent is the payload published to RabbitMQ when a payout reaches a
// terminal state.
type PayoutEvent struct {
	PayoutID       uuid.UUID    `json:"payout_id"`
	OwnerID        uuid.UUID    `json:"owner_id"`
	PayoutPeriodID uuid.UUID    `json:"payout_period_id"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	Status         PayoutStatus `json:"status"`
	TransactionRef *string      `json:"transaction_ref,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}
