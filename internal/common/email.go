package common

import (
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/domodwyer/mailyak/v3"
)

// EmailSender defines the contract for sending emails.
type EmailSender interface {
	Send(to, subject, html string) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Send implements EmailSender.
func (s SMTPSender) Send(to, subject, html string) error {
	port := s.Port
	if port <= 0 {
		port = 587
	}
	var auth smtp.Auth
	if strings.TrimSpace(s.Username) != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	mail := mailyak.New(net.JoinHostPort(s.Host, strconv.Itoa(port)), auth)
	mail.To(to)
	mail.From(s.From)
	if s.FromName != "" {
		mail.FromName(s.FromName)
	}
	mail.Subject(subject)
	mail.HTML().Set(html)
	return mail.Send()
}

// InMemoryEmail provides a test-friendly email sender that records messages.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

// Email represents a single email message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.Outbox...)
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
