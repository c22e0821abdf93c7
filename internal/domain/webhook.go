/**
 * @description
 * This file defines the Go structs that model incoming webhook payloads from the
 * payment gateway. These structures are essential for safely unmarshaling the
 * JSON received at the webhook endpoint and processing it in a type-safe manner.
 *
 * @notes
 * - Only the event type and the payment-intent resource are modeled. The ledger
 *   applies the carried status through a rank-gated conditional write, so
 *   redelivered or out-of-order webhooks cannot regress local state.
 */
package domain

import "time"

// GatewayWebhookEvent represents the top-level structure of a gateway webhook payload.
type GatewayWebhookEvent struct {
	ID        string              `json:"id"`
	Event     string              `json:"event"` // e.g., "payment_intent.succeeded"
	Data      GatewayEventData    `json:"data"`
	CreatedAt time.Time           `json:"created_at"`
}

// GatewayEventData is the `data` object within the webhook payload.
type GatewayEventData struct {
	Object GatewayIntentResource `json:"object"`
}

// GatewayIntentResource is the payment-intent resource carried by the event.
type GatewayIntentResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
