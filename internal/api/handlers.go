/**
 * @description
 * This file contains the HTTP handlers for the payments-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rentfolio/payments-service/internal/app"
	"github.com/rentfolio/payments-service/internal/domain"
	"github.com/rentfolio/payments-service/internal/store"
	"github.com/rentfolio/payments-service/pkg/gatewayclient"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service         *app.Service
	rateLimiter     *app.RedisRateLimiter
	intentRateLimit int
	intentRateWin   time.Duration
}

// NewPaymentHandlers creates a new instance of PaymentHandlers. rateLimiter may
// be nil, in which case intent creation is not rate limited.
func NewPaymentHandlers(service *app.Service, rateLimiter *app.RedisRateLimiter, intentRateLimit int, intentRateWindow time.Duration) *PaymentHandlers {
	return &PaymentHandlers{
		service:         service,
		rateLimiter:     rateLimiter,
		intentRateLimit: intentRateLimit,
		intentRateWin:   intentRateWindow,
	}
}

// CreatePaymentIntentHandler handles requests to start a rent payment. The
// tenant is taken from the authenticated JWT subject.
func (h *PaymentHandlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		http.Error(w, "Could not get subject from context", http.StatusInternalServerError)
		return
	}
	tenantID, err := uuid.Parse(subject)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_intent outcome=reject reason=invalid_subject subject=%s", subject)
		h.writeError(w, http.StatusUnauthorized, "Token subject is not a tenant id")
		return
	}

	if h.rateLimiter != nil {
		count, retryAfter, rlErr := h.rateLimiter.ConsumeRateLimit(r.Context(), "payment_intent_create", tenantID.String(), h.intentRateLimit, h.intentRateWin)
		if rlErr != nil {
			log.Printf("level=warn component=api endpoint=create_intent msg=\"rate limiter unavailable; allowing request\" tenant_id=%s err=%v", tenantID, rlErr)
		} else if h.intentRateLimit > 0 && count > h.intentRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait and try again.")
			return
		}
	}

	var req domain.CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.TenantID != uuid.Nil && req.TenantID != tenantID {
		h.writeError(w, http.StatusForbidden, "Cannot create payments for another tenant")
		return
	}

	payment, clientSecret, err := h.service.CreatePaymentIntent(r.Context(), tenantID, req.Amount)
	if err != nil {
		h.writeServiceError(w, "create_intent", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, domain.CreatePaymentIntentResponse{
		Payment:      payment,
		ClientSecret: clientSecret,
	})
}

// ReconcilePaymentIntentHandler forces a re-sync of one payment against the gateway.
func (h *PaymentHandlers) ReconcilePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.writeError(w, http.StatusBadRequest, "intentID is required")
		return
	}

	changed, err := h.service.ReconcilePaymentIntent(r.Context(), intentID)
	if err != nil {
		h.writeServiceError(w, "reconcile_intent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// CancelPaymentIntentHandler cancels a payment that has not yet succeeded.
func (h *PaymentHandlers) CancelPaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.writeError(w, http.StatusBadRequest, "intentID is required")
		return
	}

	cancelled, err := h.service.CancelPaymentIntent(r.Context(), intentID)
	if err != nil {
		h.writeServiceError(w, "cancel_intent", err)
		return
	}
	if !cancelled {
		h.writeError(w, http.StatusConflict, "Payment is already in a terminal state")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// TenantPaymentHistoryHandler returns a tenant's rent payment ledger.
func (h *PaymentHandlers) TenantPaymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid tenant id")
		return
	}

	payments, err := h.service.GetTenantPaymentHistory(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, "tenant_history", err)
		return
	}
	if payments == nil {
		payments = []domain.RentPayment{}
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// ComputeOwnerPaymentHandler computes and records an owner's obligation for a month.
func (h *PaymentHandlers) ComputeOwnerPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ComputeOwnerPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	payment, err := h.service.ComputeOwnerPayment(r.Context(), req.OwnerID, req.PropertyID, req.Year, req.Month)
	if err != nil {
		h.writeServiceError(w, "compute_owner_payment", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

// CreatePayoutPeriodHandler creates a new payout window.
func (h *PaymentHandlers) CreatePayoutPeriodHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePayoutPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	period, err := h.service.CreatePayoutPeriod(r.Context(), req.StartDate, req.EndDate)
	if err != nil {
		h.writeServiceError(w, "create_payout_period", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, period)
}

// CreateOwnerPayoutHandler creates a Pending payout for an owner.
func (h *PaymentHandlers) CreateOwnerPayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOwnerPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	payout, err := h.service.CreateOwnerPayout(r.Context(), req.OwnerID, req.PayoutPeriodID, req.Amount)
	if err != nil {
		h.writeServiceError(w, "create_owner_payout", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payout)
}

// ProcessOwnerPayoutHandler disburses a Pending payout.
func (h *PaymentHandlers) ProcessOwnerPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout id")
		return
	}

	payout, err := h.service.ProcessOwnerPayout(r.Context(), payoutID)
	if err != nil {
		h.writeServiceError(w, "process_owner_payout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// RetryOwnerPayoutHandler creates a fresh payout cloning a failed one.
func (h *PaymentHandlers) RetryOwnerPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout id")
		return
	}

	retry, err := h.service.RetryOwnerPayout(r.Context(), payoutID)
	if err != nil {
		h.writeServiceError(w, "retry_owner_payout", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, retry)
}

// OwnersPayoutStatusHandler reports which owners have been paid for a period.
func (h *PaymentHandlers) OwnersPayoutStatusHandler(w http.ResponseWriter, r *http.Request) {
	periodID, err := uuid.Parse(chi.URLParam(r, "periodID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid period id")
		return
	}

	entries, err := h.service.GetOwnersPayoutStatus(r.Context(), periodID)
	if err != nil {
		h.writeServiceError(w, "owners_payout_status", err)
		return
	}
	if entries == nil {
		entries = []domain.OwnerPayoutStatusEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// GetPayoutSettingsHandler returns the payout configuration.
func (h *PaymentHandlers) GetPayoutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetPayoutSettings(r.Context())
	if err != nil {
		h.writeServiceError(w, "get_payout_settings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdatePayoutSettingsHandler fully replaces the payout configuration.
func (h *PaymentHandlers) UpdatePayoutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PayoutSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	updated, err := h.service.UpdatePayoutSettings(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "update_payout_settings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// writeServiceError maps service-layer errors onto HTTP status codes.
func (h *PaymentHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var verrs domain.ValidationErrors
	var gwErr *gatewayclient.ErrorResponse

	switch {
	case errors.As(err, &verrs):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": "validation failed", "fields": verrs})
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrAmountBelowMinimum),
		errors.Is(err, app.ErrNegativeNetAmount),
		errors.Is(err, app.ErrInvalidPeriod),
		errors.Is(err, app.ErrPayoutNotRetryable),
		errors.Is(err, domain.ErrUnknownGatewayStatus):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTenantNotFound),
		errors.Is(err, store.ErrOwnerNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrPayoutNotFound),
		errors.Is(err, store.ErrPayoutPeriodNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicatePaymentIntent),
		errors.Is(err, store.ErrOwnerPaymentExists),
		errors.Is(err, store.ErrPayoutNotClaimable),
		errors.Is(err, store.ErrPeriodOverlap):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrTransferFailed):
		// The payout is already finalized as failed; the caller learns the
		// disbursement did not go through and may retry via the retry endpoint.
		log.Printf("level=warn component=api endpoint=%s outcome=transfer_failed err=%v", endpoint, err)
		h.writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &gwErr):
		log.Printf("level=warn component=api endpoint=%s outcome=gateway_error status=%d err=%v", endpoint, gwErr.StatusCode, err)
		h.writeError(w, http.StatusBadGateway, "Payment gateway error")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=error err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
