package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// ErrNotConfigured is returned at send time when the provider has no credentials.
var ErrNotConfigured = errors.New("notify: email provider not configured")

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SES, stub) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (Receipt, error)
}

// EmailMessage represents an email to a single recipient.
type EmailMessage struct {
	To          string
	ToName      string
	Subject     string
	Body        string // Plain text body
	HTML        string
	Attachments []Attachment
}

// Attachment is a file sent with an email. Data is either raw bytes or a
// base64 data URI; EncodeAttachment normalizes both.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Receipt identifies an accepted message.
type Receipt struct {
	Provider   string
	MessageID  string
	StatusCode int
}

// DeliveryError reports a provider refusing a message.
type DeliveryError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "notify: %s delivery failed", e.Provider)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// EncodeAttachment returns the base64 form of data. A "data:<mime>;base64,"
// prefix is stripped and the remainder passed through as already encoded.
func EncodeAttachment(data []byte) string {
	if bytes.HasPrefix(data, []byte("data:")) {
		if idx := bytes.Index(data, []byte(";base64,")); idx >= 0 {
			return string(data[idx+len(";base64,"):])
		}
	}
	return base64.StdEncoding.EncodeToString(data)
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    sendGridClient
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender creates a SendGrid email sender. Without an API key the
// sender is still returned and every Send fails with ErrNotConfigured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Sober Steps Clinic"
	}
	s := &SendGridSender{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
	if cfg.APIKey != "" {
		s.client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return s
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) (Receipt, error) {
	if s.client == nil {
		return Receipt{}, ErrNotConfigured
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	text := msg.Body
	if text == "" {
		text = msg.Subject
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, text, msg.HTML)
	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetContent(EncodeAttachment(att.Data))
		a.SetType(att.ContentType)
		a.SetFilename(att.Name)
		a.SetDisposition("attachment")
		message.AddAttachment(a)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return Receipt{}, &DeliveryError{Provider: "sendgrid", Err: err}
	}

	if response.StatusCode >= 300 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return Receipt{}, &DeliveryError{
			Provider:   "sendgrid",
			StatusCode: response.StatusCode,
			Message:    sendGridErrorMessage(response.Body),
		}
	}

	receipt := Receipt{Provider: "sendgrid", StatusCode: response.StatusCode, MessageID: headerValue(response.Headers, "X-Message-Id")}
	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode, "message_id", receipt.MessageID)
	return receipt, nil
}

func sendGridErrorMessage(body string) string {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || len(payload.Errors) == 0 {
		return strings.TrimSpace(body)
	}
	msgs := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func headerValue(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// StubEmailSender is a no-op sender for local development.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) (Receipt, error) {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject, "attachments", names)
	return Receipt{Provider: "stub"}, nil
}
