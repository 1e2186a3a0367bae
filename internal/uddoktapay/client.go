package uddoktapay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	checkoutPath = "/checkout-v1"
	verifyPath   = "/verify-payment"

	apiKeyHeader = "RT-UDDOKTAPAY-API-KEY"
)

// APIError is the single error kind surfaced for any transport failure,
// non-2xx response, or malformed body. Message carries the provider's own
// error text when one was returned.
type APIError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return "uddoktapay: " + e.Message
	}
	if e.Err != nil {
		return "uddoktapay: " + e.Err.Error()
	}
	return "uddoktapay: request failed"
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *APIError) Unwrap() error { return e.Err }

// IsAPIError reports whether err originated from the provider API boundary.
func IsAPIError(err error) bool {
	var target *APIError
	return errors.As(err, &target)
}

// Client is a thin HTTP client for the UddoktaPay API. Both operations are
// synchronous and single-attempt: no retry, no backoff, no response caching.
// Every verify call hits the provider live.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient constructs a client with a bounded request timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreatePayment submits a payment intent and returns the hosted payment URL.
func (c *Client) CreatePayment(ctx context.Context, req CheckoutRequest) (string, error) {
	var resp CheckoutResponse
	if err := c.post(ctx, checkoutPath, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.PaymentURL) == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "no payment url in response"
		}
		return "", &APIError{Message: msg}
	}
	return resp.PaymentURL, nil
}

// VerifyPayment fetches the authoritative record for an invoice.
func (c *Client) VerifyPayment(ctx context.Context, invoiceID string) (VerificationResponse, error) {
	var resp VerificationResponse
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return resp, &APIError{Message: "invoice id is required"}
	}
	body := struct {
		InvoiceID string `json:"invoice_id"`
	}{InvoiceID: invoiceID}
	if err := c.post(ctx, verifyPath, body, &resp); err != nil {
		return VerificationResponse{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c == nil || c.baseURL == "" {
		return &APIError{Message: "client not configured"}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &APIError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Message: providerMessage(raw), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func providerMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return strings.TrimSpace(body.Message)
	}
	return ""
}
