/**
 * @description
 * This file defines the core domain models for tenant rent payments. These structs
 * represent the entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - PaymentStatus carries an explicit lifecycle rank so that status updates can
 *   only ever advance: a late or redelivered gateway callback must never move a
 *   payment backwards.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the local lifecycle state of a RentPayment.
type PaymentStatus string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentStatusRequiresAction        PaymentStatus = "requires_action"
	PaymentStatusProcessing            PaymentStatus = "processing"
	PaymentStatusRequiresCapture       PaymentStatus = "requires_capture"
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusCancelled             PaymentStatus = "cancelled"
)

// paymentStatusRank orders the forward lifecycle. Cancelled is deliberately
// absent: it is reachable from any pre-succeeded state and terminal.
var paymentStatusRank = map[PaymentStatus]int{
	PaymentStatusRequiresPaymentMethod: 1,
	PaymentStatusRequiresConfirmation:  2,
	PaymentStatusRequiresAction:        3,
	PaymentStatusProcessing:            4,
	PaymentStatusRequiresCapture:       5,
	PaymentStatusSucceeded:             6,
}

// Rank returns the lifecycle position of a status, or 0 for Cancelled.
func (s PaymentStatus) Rank() int {
	return paymentStatusRank[s]
}

// IsTerminal reports whether no further transition is permitted.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCancelled
}

// CanAdvanceTo reports whether a transition from s to next is legal: forward
// movement through the ranked lifecycle, or cancellation of any non-terminal
// state. Repeating the current status is not an advance.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	if next == PaymentStatusCancelled {
		return !s.IsTerminal()
	}
	return s.Rank() < next.Rank()
}

// StatusesBelow returns every forward-lifecycle status with a strictly lower
// rank than s. The repository uses this set for conditional status writes so
// that monotonicity is enforced by the database, not just by application code.
func StatusesBelow(s PaymentStatus) []PaymentStatus {
	var below []PaymentStatus
	for status, rank := range paymentStatusRank {
		if rank < s.Rank() {
			below = append(below, status)
		}
	}
	return below
}

// PaymentStatusFromGateway maps a gateway-native status string onto the local
// enum. The mapping is total over the gateway's documented states and fails
// loudly on anything else: silently absorbing an unknown state would
// misrepresent money movement.
func PaymentStatusFromGateway(gatewayStatus string) (PaymentStatus, error) {
	switch gatewayStatus {
	case "requires_payment_method":
		return PaymentStatusRequiresPaymentMethod, nil
	case "requires_confirmation":
		return PaymentStatusRequiresConfirmation, nil
	case "requires_action":
		return PaymentStatusRequiresAction, nil
	case "processing":
		return PaymentStatusProcessing, nil
	case "requires_capture":
		return PaymentStatusRequiresCapture, nil
	case "succeeded":
		return PaymentStatusSucceeded, nil
	case "canceled", "cancelled":
		return PaymentStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGatewayStatus, gatewayStatus)
	}
}

// RentPayment is the ledger record for one tenant-initiated charge attempt.
// It maps directly to the `rent_payments` table. GatewayIntentID is the
// idempotency key: the table carries a unique constraint on it so that webhook
// redelivery and client retries can never produce a second row for the same
// charge attempt. Rows are never physically deleted.
type RentPayment struct {
	ID                     uuid.UUID     `json:"id"`
	TenantID               uuid.UUID     `json:"tenant_id"`
	Amount                 int64         `json:"amount"` // in cents
	Currency               string        `json:"currency"`
	GatewayIntentID        string        `json:"gateway_intent_id"`
	GatewayPaymentMethodID *string       `json:"gateway_payment_method_id,omitempty"`
	Status                 PaymentStatus `json:"status"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// Tenant is the simplified view of a tenant that this service needs: identity,
// the gateway customer association required to charge them, and the lease link
// that attributes their payments to a property and owner. The tenant record
// itself is owned by the identity/lease services.
type Tenant struct {
	ID                uuid.UUID `json:"id"`
	GatewayCustomerID string    `json:"gateway_customer_id"`
	PropertyID        uuid.UUID `json:"property_id"`
	OwnerID           uuid.UUID `json:"owner_id"`
}

// Owner is the simplified view of a property owner: identity plus the gateway
// destination that payouts are disbursed to.
type Owner struct {
	ID               uuid.UUID `json:"id"`
	GatewayAccountID string    `json:"gateway_account_id"`
}

// CreatePaymentIntentRequest is the DTO for incoming payment-intent API requests.
// Currency is fixed per deployment configuration, never caller-supplied.
type CreatePaymentIntentRequest struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Amount   int64     `json:"amount"` // in cents
}

// CreatePaymentIntentResponse is returned after a payment intent is created.
// ClientSecret lets the tenant's client complete the payment out-of-band.
type CreatePaymentIntentResponse struct {
	Payment      *RentPayment `json:"payment"`
	ClientSecret string       `json:"client_secret"`
}

// PaymentEvent is the payload published to RabbitMQ when a rent payment
// reaches a terminal state.
type PaymentEvent struct {
	PaymentID       uuid.UUID     `json:"payment_id"`
	TenantID        uuid.UUID     `json:"tenant_id"`
	GatewayIntentID string        `json:"gateway_intent_id"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Status          PaymentStatus `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
}
