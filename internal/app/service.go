/**
 * @description
 * This file contains the core Service for the payments-service. The `Service`
 * struct orchestrates all money movement operations, coordinating between the
 * database repository, the payment gateway API client, and the message broker.
 *
 * Key features:
 * - Implements the main use cases: rent payment intents, owner payment
 *   calculation, and owner payout processing.
 * - Never persists a disbursement result the gateway did not confirm.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/gatewayclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"errors"

	"github.com/rentfolio/payments-service/internal/store"
	"github.com/rentfolio/payments-service/pkg/gatewayclient"
	"github.com/rentfolio/payments-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive number of minor units")
	ErrAmountBelowMinimum = errors.New("amount is below the configured minimum payout")
	ErrNegativeNetAmount  = errors.New("computed net amount is negative")
	ErrInvalidPeriod      = errors.New("period start must be before period end")
	ErrPayoutNotRetryable = errors.New("only failed payouts can be retried")
	ErrTransferFailed     = errors.New("gateway transfer failed")
)

// FeePolicy carries the deduction rules applied when computing an owner's net
// payment. AdminFeePercent is a whole-number percentage of gross rent.
type FeePolicy struct {
	AdminFeePercent int64
}

// AdminFeeFor returns the admin fee in cents for a gross amount, rounding
// half up so the fee is deterministic for any given gross.
func (p FeePolicy) AdminFeeFor(gross int64) int64 {
	return (gross*p.AdminFeePercent + 50) / 100
}

// Service provides the core business logic for payments and payouts.
type Service struct {
	repo          store.Repository
	gateway       *gatewayclient.Client
	eventProducer rabbitmq.Publisher
	feePolicy     FeePolicy
	currency      string
}

// NewService creates a new payments service instance. currency is the
// settlement currency rent is charged in; it comes from deployment
// configuration, never from callers.
func NewService(repo store.Repository, gateway *gatewayclient.Client, producer rabbitmq.Publisher, feePolicy FeePolicy, currency string) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		feePolicy:     feePolicy,
		currency:      currency,
	}
}
