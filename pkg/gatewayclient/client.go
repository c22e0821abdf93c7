/**
 * @description
 * This package provides a client for interacting with the payment gateway's
 * HTTP API. It encapsulates the logic for making authenticated requests to the
 * gateway's payment-intent and transfer endpoints, handling request body
 * construction, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new gateway API client. Every call is bounded by the
// client timeout so a stalled gateway cannot hold a request goroutine forever.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateIntentRequest is the payload for creating a payment intent.
type CreateIntentRequest struct {
	Customer string `json:"customer"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentIntent is the gateway's representation of one attempted charge.
type PaymentIntent struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ClientSecret  string `json:"client_secret"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// CreateTransferRequest is the payload for disbursing funds to an owner's
// connected account. IdempotencyKey guarantees the gateway applies the
// transfer at most once despite retries.
type CreateTransferRequest struct {
	Destination    string `json:"destination"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Transfer is the gateway's representation of a disbursement.
type Transfer struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// ErrorResponse represents an error returned by the gateway API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("gateway api error: %s - %s", e.Err.Code, e.Err.Message)
	}
	return fmt.Sprintf("gateway api error (status %d)", e.StatusCode)
}

// IsExplicitRejection reports whether the gateway definitively refused the
// request, as opposed to an ambiguous failure (timeout, 5xx) where the
// operation may still have been applied.
func (e *ErrorResponse) IsExplicitRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// CreatePaymentIntent asks the gateway to create a payment intent for a customer.
func (c *Client) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", req, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetPaymentIntent fetches the current gateway-side state of a payment intent.
func (c *Client) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CancelPaymentIntent asks the gateway to cancel a payment intent.
func (c *Client) CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateTransfer asks the gateway to disburse funds to a connected account.
func (c *Client) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*Transfer, error) {
	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", req, req.IdempotencyKey, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

// do executes one authenticated request against the gateway and decodes the
// response into out.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		bodyReader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute gateway request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return fmt.Errorf("failed to decode gateway error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=%s path=%s status=%d code=%q detail=%q", method, path, resp.StatusCode, errResp.Err.Code, errResp.Err.Message)
		return errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
