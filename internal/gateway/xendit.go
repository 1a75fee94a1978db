package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInvoiceDuration = 48 * time.Hour
	maxAttempts            = 3
)

type XenditConfig struct {
	SecretKey       string
	BaseURL         string
	CallbackToken   string
	SigningKey      string
	Currency        string
	// InvoiceDuration is how long a created invoice stays payable.
	InvoiceDuration time.Duration
}

// XenditClient creates hosted invoices and verifies their callbacks. The
// order id is the invoice external_id.
type XenditClient struct {
	cfg        XenditConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewXenditClient(cfg XenditConfig, logger *zap.Logger) *XenditClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.xendit.co"
	}
	if cfg.Currency == "" {
		cfg.Currency = "PHP"
	}
	if cfg.InvoiceDuration <= 0 {
		cfg.InvoiceDuration = defaultInvoiceDuration
	}
	return &XenditClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type invoiceResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
}

func (c *XenditClient) CreatePaymentIntent(ctx context.Context, intent PaymentIntent) (string, error) {
	amount, _ := intent.Amount.Float64()
	body, err := json.Marshal(map[string]interface{}{
		"external_id":          intent.OrderID,
		"amount":               amount,
		"currency":             c.cfg.Currency,
		"description":          intent.Description,
		"success_redirect_url": intent.ReturnURL,
		"failure_redirect_url": intent.ReturnURL,
		"invoice_duration":     int64(c.cfg.InvoiceDuration / time.Second),
		"metadata": map[string]string{
			"notify_url": intent.NotifyURL,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal invoice request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v2/invoices", body, http.StatusOK)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var invoice invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return "", fmt.Errorf("decode invoice response: %w", err)
	}
	if invoice.InvoiceURL == "" {
		return "", errors.New("gateway returned no invoice url")
	}

	c.logger.Info("invoice created",
		zap.String("order_id", intent.OrderID),
		zap.String("invoice_id", invoice.ID),
		zap.String("status", invoice.Status))
	return invoice.InvoiceURL, nil
}

func (c *XenditClient) QueryStatus(ctx context.Context, orderID string) (Status, error) {
	invoice, err := c.latestInvoice(ctx, orderID)
	if err != nil {
		return StatusUnknown, err
	}
	if invoice == nil {
		return StatusUnknown, nil
	}
	return ParseStatus(invoice.Status), nil
}

// ExpirePaymentIntent expires the order's pending invoice. Invoices that
// already reached a final status are left alone and that status is returned.
func (c *XenditClient) ExpirePaymentIntent(ctx context.Context, orderID string) (Status, error) {
	invoice, err := c.latestInvoice(ctx, orderID)
	if err != nil {
		return StatusUnknown, err
	}
	if invoice == nil {
		return StatusUnknown, nil
	}
	if status := ParseStatus(invoice.Status); status != StatusPending {
		return status, nil
	}

	resp, err := c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(invoice.ID)+"/expire!", nil, http.StatusOK)
	if err != nil {
		return StatusPending, fmt.Errorf("expire invoice %s: %w", invoice.ID, err)
	}
	defer resp.Body.Close()

	var expired invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&expired); err != nil {
		return StatusPending, fmt.Errorf("decode expired invoice: %w", err)
	}

	c.logger.Info("invoice expired",
		zap.String("order_id", orderID),
		zap.String("invoice_id", invoice.ID),
		zap.String("status", expired.Status))
	return ParseStatus(expired.Status), nil
}

// latestInvoice returns the most recent invoice for the order, or nil when
// the gateway has none.
func (c *XenditClient) latestInvoice(ctx context.Context, orderID string) (*invoiceResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v2/invoices?external_id="+url.QueryEscape(orderID), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var invoices []invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invoices); err != nil {
		return nil, fmt.Errorf("decode invoice list: %w", err)
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	// Most recent invoice wins when an order was retried.
	return &invoices[len(invoices)-1], nil
}

// VerifySignature requires the shared callback token and, when a signing key
// is configured, an HMAC-SHA256 over the raw body.
func (c *XenditClient) VerifySignature(n Notification) bool {
	if !validToken(c.cfg.CallbackToken, n.CallbackToken) {
		return false
	}
	if c.cfg.SigningKey == "" {
		return true
	}
	return validSignature([]byte(c.cfg.SigningKey), n.Raw, n.Signature)
}

// do sends the request with up to maxAttempts tries, backing off between
// them. Only transport errors and 5xx responses are retried.
func (c *XenditClient) do(ctx context.Context, method, path string, body []byte, want int) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build gateway request: %w", err)
		}
		req.SetBasicAuth(c.cfg.SecretKey, "")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode == want {
			return resp, nil
		}
		if err != nil {
			lastErr = fmt.Errorf("gateway request: %w", err)
		} else {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("gateway responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
			if resp.StatusCode < 500 {
				return nil, lastErr
			}
		}

		c.logger.Warn("gateway request failed",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return nil, lastErr
}

// ParseNotification reads an invoice callback body and the headers that
// authenticate it.
func ParseNotification(body []byte, header http.Header) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}

	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = fmt.Sprint(val)
		}
	}

	n := Notification{
		OrderID:       fields["external_id"],
		ExternalID:    fields["id"],
		Amount:        fields["paid_amount"],
		Status:        ParseStatus(fields["status"]),
		Fields:        fields,
		Raw:           body,
		Signature:     header.Get("x-callback-signature"),
		CallbackToken: header.Get("x-callback-token"),
	}
	if n.Amount == "" {
		n.Amount = fields["amount"]
	}
	if n.OrderID == "" {
		return Notification{}, errors.New("notification has no external_id")
	}
	return n, nil
}
