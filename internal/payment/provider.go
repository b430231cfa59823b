package payment

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidSignature is returned when a webhook cannot be authenticated.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// IntentResponse represents the minimal information returned by a provider when creating an intent.
type IntentResponse struct {
	Provider     string `json:"provider"`
	ID           string `json:"id"`
	ClientSecret string `json:"-"`
	Status       string `json:"status"`
}

// EventObject is the provider object a webhook event refers to.
type EventObject struct {
	ID             string
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	FailureMessage string
}

// WebhookEvent is an authenticated, decoded provider notification.
type WebhookEvent struct {
	ID      string
	Type    string
	Object  EventObject
	Payload []byte
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error)
}
