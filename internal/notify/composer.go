package notify

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	tmplBookingConfirmation = "booking_confirmation"
	tmplAdminAlert          = "admin_alert"
	tmplQuoteReady          = "quote_ready"
	tmplStatusUpdate        = "status_update"
	tmplPaymentReceipt      = "payment_receipt"
)

var statusMessages = map[repo.BookingStatus]string{
	repo.BookingStatusConfirmed:  "Your booking has been confirmed! Our team will be in touch soon.",
	repo.BookingStatusInProgress: "Your service is currently in progress. Our team is working hard for you!",
	repo.BookingStatusCompleted:  "Your service has been completed! Thank you for choosing us.",
	repo.BookingStatusCancelled:  "Your booking has been cancelled. If you have questions, please contact us.",
}

// Company is the sender identity printed in every email.
type Company struct {
	Name    string
	Tagline string
	Email   string
	Phone   string
	Address string
	BaseURL string
}

// Message is a rendered email ready to hand to an EmailSender.
type Message struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"-"`
}

// BookingView is the booking data shown in customer and admin emails.
type BookingView struct {
	ID              string
	Reference       string
	CustomerName    string
	Email           string
	Phone           string
	Services        []string
	PropertyType    string
	Address         string
	City            string
	PostalCode      string
	PreferredDate   string
	PreferredTime   string
	SpecialRequests string
	Status          string
	Total           string
	Currency        string
	SubmittedAt     string
}

// FullAddress joins the street, city and postal code.
func (v BookingView) FullAddress() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{v.Address, v.City, v.PostalCode} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// QuoteView is the quote data shown in the quote ready email.
type QuoteView struct {
	Reference      string
	Services       []string
	PropertyType   string
	Bedrooms       int32
	Bathrooms      int32
	SquareFootage  string
	Subtotal       string
	BundleDiscount string
	Taxes          string
	Total          string
	Currency       string
	ValidUntil     string
	HasDiscount    bool
}

// PaymentView is the data shown on a payment receipt.
type PaymentView struct {
	Reference   string
	ProviderRef string
	Amount      string
	Currency    string
}

// BookingViewFrom flattens a stored booking and its customer.
func BookingViewFrom(b repo.BookingWithCustomer) BookingView {
	v := BookingView{
		ID:            b.ID.String(),
		Reference:     reference(b.ID.String()),
		CustomerName:  strings.TrimSpace(b.Customer.FirstName + " " + b.Customer.LastName),
		Email:         b.Customer.Email,
		Phone:         b.Customer.Phone,
		Services:      serviceLabels(b.Services),
		PropertyType:  b.PropertyType,
		Address:       b.Address,
		City:          b.City,
		PostalCode:    b.PostalCode,
		PreferredDate: b.PreferredDate.Format("Monday, January 2, 2006"),
		PreferredTime: b.PreferredTime,
		Status:        string(b.Status),
		Total:         pricing.Format(b.Total),
		Currency:      b.Currency,
	}
	if b.SpecialRequests != nil {
		v.SpecialRequests = *b.SpecialRequests
	}
	if !b.CreatedAt.IsZero() {
		v.SubmittedAt = b.CreatedAt.Format(time.RFC1123)
	}
	return v
}

// QuoteViewFrom flattens a stored quote.
func QuoteViewFrom(q repo.Quote) QuoteView {
	return QuoteView{
		Reference:      reference(q.ID.String()),
		Services:       serviceLabels(q.Services),
		PropertyType:   q.PropertyType,
		Bedrooms:       q.Bedrooms,
		Bathrooms:      q.Bathrooms,
		SquareFootage:  q.SquareFootage.String(),
		Subtotal:       pricing.Format(q.Subtotal),
		BundleDiscount: pricing.Format(q.BundleDiscount),
		Taxes:          pricing.Format(q.Taxes),
		Total:          pricing.Format(q.Total),
		Currency:       q.Currency,
		ValidUntil:     q.ExpiresAt.Format("January 2, 2006"),
		HasDiscount:    q.BundleDiscount.IsPositive(),
	}
}

// Composer renders the transactional emails.
type Composer struct {
	Company   Company
	templates map[string]*template.Template
}

// NewComposer parses the embedded templates.
func NewComposer(company Company) (*Composer, error) {
	if strings.TrimSpace(company.Name) == "" {
		company.Name = "MapleFresh Services"
	}
	company.BaseURL = strings.TrimRight(company.BaseURL, "/")
	funcs := template.FuncMap{"join": func(items []string) string { return strings.Join(items, ", ") }}
	c := &Composer{Company: company, templates: map[string]*template.Template{}}
	for _, name := range []string{tmplBookingConfirmation, tmplAdminAlert, tmplQuoteReady, tmplStatusUpdate, tmplPaymentReceipt} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("notify: parse template %s: %w", name, err)
		}
		c.templates[name] = t
	}
	return c, nil
}

type envelope struct {
	Company   Company
	Heading   string
	Alert     bool
	Link      string
	Booking   BookingView
	Quote     QuoteView
	Payment   PaymentView
	OldStatus string
	Message   string
}

// BookingConfirmation thanks the customer for a new booking.
func (c *Composer) BookingConfirmation(b BookingView) (Message, error) {
	subject := fmt.Sprintf("Booking Confirmation - %s", c.Company.Name)
	return c.render(tmplBookingConfirmation, b.Email, subject, envelope{Heading: "Booking Confirmation", Booking: b})
}

// AdminAlert tells the operations inbox that a booking arrived.
func (c *Composer) AdminAlert(to string, b BookingView) (Message, error) {
	subject := fmt.Sprintf("New Booking: %s - %s", b.CustomerName, c.Company.Name)
	return c.render(tmplAdminAlert, to, subject, envelope{Heading: "New Booking Alert", Alert: true, Link: c.link("/admin"), Booking: b})
}

// QuoteReady sends the priced quote to a prospective customer.
func (c *Composer) QuoteReady(to string, q QuoteView) (Message, error) {
	subject := fmt.Sprintf("Your Quote is Ready - %s", c.Company.Name)
	return c.render(tmplQuoteReady, to, subject, envelope{Heading: "Your Custom Quote", Link: c.link("/book"), Quote: q})
}

// StatusUpdate reports a booking lifecycle change to the customer.
func (c *Composer) StatusUpdate(b BookingView, oldStatus string) (Message, error) {
	msg, ok := statusMessages[repo.BookingStatus(b.Status)]
	if !ok {
		msg = "Your booking status has been updated."
	}
	subject := fmt.Sprintf("Booking Update: %s - %s", statusLabel(b.Status), c.Company.Name)
	return c.render(tmplStatusUpdate, b.Email, subject, envelope{
		Heading:   "Booking Status Update",
		Booking:   b,
		OldStatus: oldStatus,
		Message:   msg,
	})
}

// PaymentReceipt confirms a successful payment.
func (c *Composer) PaymentReceipt(to string, p PaymentView) (Message, error) {
	subject := fmt.Sprintf("Payment Received - %s", c.Company.Name)
	return c.render(tmplPaymentReceipt, to, subject, envelope{Heading: "Payment Receipt", Payment: p})
}

func (c *Composer) render(name, to, subject string, data envelope) (Message, error) {
	if c == nil {
		return Message{}, errors.New("notify: composer not configured")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return Message{}, fmt.Errorf("notify: %s has no recipient", name)
	}
	t, ok := c.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("notify: unknown template %s", name)
	}
	data.Company = c.Company
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", name, err)
	}
	return Message{Template: name, To: to, Subject: subject, HTML: buf.String()}, nil
}

func (c *Composer) link(path string) string {
	if c.Company.BaseURL == "" {
		return ""
	}
	return c.Company.BaseURL + path
}

func reference(id string) string {
	if len(id) <= 8 {
		return strings.ToUpper(id)
	}
	return strings.ToUpper(id[len(id)-8:])
}

func serviceLabels(kinds []string) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, pricing.ServiceKind(k).Label())
	}
	return out
}

func statusLabel(status string) string {
	s := strings.ReplaceAll(status, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
