/**
 * @description
 * Webhook ingestion for payment gateway callbacks.
 *
 * Key features:
 * - Security: Validates the HMAC-SHA256 signature of incoming webhooks against
 *   the raw request body before any state is touched. A bad or missing
 *   signature is rejected with 401 and causes no mutation.
 * - Routing: payment_intent.* events are reconciled into the ledger; unknown
 *   event types are acknowledged with 200 so the gateway stops redelivering.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - encoding/json, net/http: For handling the webhook payload.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/rentfolio/payments-service/internal/app"
	"github.com/rentfolio/payments-service/internal/domain"
)

// GatewaySignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const GatewaySignatureHeader = "Gateway-Signature"

// WebhookHandler processes incoming webhooks from the payment gateway.
type WebhookHandler struct {
	service *app.Service
	secret  string
}

// NewWebhookHandler creates a webhook handler. secret is the shared webhook
// signing secret configured at the gateway.
func NewWebhookHandler(service *app.Service, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// HandleGatewayWebhook is the endpoint the gateway delivers events to.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(GatewaySignatureHeader), body) {
		log.Printf("level=warn component=api endpoint=webhook outcome=reject reason=invalid_signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=api endpoint=webhook outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !strings.HasPrefix(event.Event, "payment_intent.") {
		// Acknowledge event types we do not handle so the gateway stops retrying.
		log.Printf("level=info component=api endpoint=webhook outcome=ignored event_type=%s event_id=%s", event.Event, event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	changed, err := h.service.ApplyGatewayEvent(r.Context(), &event)
	if err != nil {
		log.Printf("level=error component=api endpoint=webhook outcome=error event_id=%s intent_id=%s err=%v", event.ID, event.Data.Object.ID, err)
		// Signal the gateway to redeliver; reconciliation is idempotent.
		http.Error(w, "Failed to process event", http.StatusInternalServerError)
		return
	}

	log.Printf("level=info component=api endpoint=webhook outcome=processed event_id=%s intent_id=%s changed=%v", event.ID, event.Data.Object.ID, changed)
	w.WriteHeader(http.StatusOK)
}

// isValidSignature validates the HMAC-SHA256 signature of the webhook body.
func (h *WebhookHandler) isValidSignature(signatureHeader string, body []byte) bool {
	if h.secret == "" {
		log.Printf("level=warn component=api endpoint=webhook msg=\"GATEWAY_WEBHOOK_SECRET is not set; rejecting webhook\"")
		return false
	}

	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return false
	}
	// Tolerate a "sha256=" prefix, some gateways include the scheme.
	header = strings.TrimPrefix(header, "sha256=")

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
