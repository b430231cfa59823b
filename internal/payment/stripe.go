package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-maplefresh/internal/resilience"
)

const (
	stripeName             = "stripe"
	stripeSignatureHeader  = "Stripe-Signature"
	defaultStripeBaseURL   = "https://api.stripe.com"
	defaultStripeTolerance = 5 * time.Minute
	maxStripeResponseBytes = 1 << 20
)

// APIError is a non-retryable error response from Stripe.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe: %d: %s", e.StatusCode, e.Message)
}

// Stripe implements Provider against the Stripe REST API.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Tolerance     time.Duration
	HTTP          resilience.HTTPClient
	Now           func() time.Time
}

// Name identifies the provider in payment records and metrics.
func (s Stripe) Name() string { return stripeName }

// CreateIntent opens a PaymentIntent for the requested amount.
func (s Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(s.SecretKey) == "" {
		return IntentResponse{}, errors.New("stripe: secret key not configured")
	}
	if req.AmountMinor <= 0 {
		return IntentResponse{}, errors.New("stripe: amount must be positive")
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.ReceiptEmail != "" {
		form.Set("receipt_email", req.ReceiptEmail)
	}
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", req.Metadata[k])
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL()+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return IntentResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := s.HTTP.Do(ctx, httpReq)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStripeResponseBytes))
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		apiErr := envelope.Error
		apiErr.StatusCode = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return IntentResponse{}, &apiErr
	}
	var intent struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(body, &intent); err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	if intent.ID == "" {
		return IntentResponse{}, errors.New("stripe: payment intent id missing from response")
	}
	return IntentResponse{
		Provider:     stripeName,
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	if strings.TrimSpace(s.WebhookSecret) == "" {
		return WebhookEvent{}, errors.New("stripe: webhook secret not configured")
	}
	header := r.Header.Get(stripeSignatureHeader)
	if header == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, stripeSignatureHeader)
	}
	ts, signatures := parseSignatureHeader(header)
	if ts == 0 || len(signatures) == 0 {
		return WebhookEvent{}, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	expected := computeSignature(s.WebhookSecret, ts, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return WebhookEvent{}, fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = defaultStripeTolerance
	}
	age := s.now().Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return WebhookEvent{}, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID               string            `json:"id"`
				Amount           int64             `json:"amount"`
				AmountPaid       int64             `json:"amount_paid"`
				Currency         string            `json:"currency"`
				Metadata         map[string]string `json:"metadata"`
				LastPaymentError *struct {
					Message string `json:"message"`
				} `json:"last_payment_error"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode event: %w", err)
	}
	if event.Type == "" {
		return WebhookEvent{}, errors.New("stripe: event type missing")
	}
	obj := event.Data.Object
	out := WebhookEvent{
		ID:   event.ID,
		Type: event.Type,
		Object: EventObject{
			ID:          obj.ID,
			AmountMinor: obj.Amount,
			Currency:    strings.ToUpper(obj.Currency),
			Metadata:    obj.Metadata,
		},
		Payload: body,
	}
	if out.Object.AmountMinor == 0 {
		out.Object.AmountMinor = obj.AmountPaid
	}
	if obj.LastPaymentError != nil {
		out.Object.FailureMessage = obj.LastPaymentError.Message
	}
	return out, nil
}

// SignatureHeader builds a Stripe-Signature value for body signed at ts.
func SignatureHeader(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, computeSignature(secret, unix, body))
}

func computeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string) {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, _ = strconv.ParseInt(value, 10, 64)
		case "v1":
			sigs = append(sigs, value)
		}
	}
	return ts, sigs
}

func (s Stripe) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		return defaultStripeBaseURL
	}
	return base
}

func (s Stripe) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
