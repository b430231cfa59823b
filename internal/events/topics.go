package events

// Topic constants for domain events emitted by the booking platform.
const (
	TopicQuoteCreated         = "quote.created"
	TopicQuoteSent            = "quote.sent"
	TopicBookingCreated       = "booking.created"
	TopicBookingStatusChanged = "booking.status_changed"
	TopicPaymentSucceeded     = "payment.succeeded"
	TopicPaymentFailed        = "payment.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicQuoteCreated,
		TopicQuoteSent,
		TopicBookingCreated,
		TopicBookingStatusChanged,
		TopicPaymentSucceeded,
		TopicPaymentFailed,
	}
}

// BookingPayload is carried by booking.created and booking.status_changed.
type BookingPayload struct {
	BookingID     string   `json:"bookingId"`
	CustomerEmail string   `json:"customerEmail"`
	CustomerName  string   `json:"customerName"`
	Status        string   `json:"status"`
	OldStatus     string   `json:"oldStatus,omitempty"`
	Services      []string `json:"services"`
	PreferredDate string   `json:"preferredDate,omitempty"`
	PreferredTime string   `json:"preferredTime,omitempty"`
	Address       string   `json:"address,omitempty"`
	Total         string   `json:"total"`
	Currency      string   `json:"currency"`
}

// QuotePayload is carried by quote.created and quote.sent.
type QuotePayload struct {
	QuoteID       string   `json:"quoteId"`
	CustomerEmail string   `json:"customerEmail,omitempty"`
	Services      []string `json:"services"`
	Total         string   `json:"total"`
	Currency      string   `json:"currency"`
	ExpiresAt     string   `json:"expiresAt"`
}

// PaymentPayload is carried by payment.succeeded and payment.failed.
type PaymentPayload struct {
	PaymentID     string `json:"paymentId"`
	BookingID     string `json:"bookingId,omitempty"`
	QuoteID       string `json:"quoteId,omitempty"`
	Provider      string `json:"provider"`
	ProviderRef   string `json:"providerRef"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}
