package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES as raw MIME so attachments are supported.
type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender creates a new AWS SES email sender.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Sober Steps Clinic"
	}
	return &SESSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via AWS SES.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) (Receipt, error) {
	if s.client == nil || s.fromEmail == "" {
		return Receipt{}, ErrNotConfigured
	}

	from := (&mailAddress{Name: s.fromName, Address: s.fromEmail}).String()
	raw, err := buildMIME(from, msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("notify: build mime message: %w", err)
	}

	output, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", msg.To)
		derr := &DeliveryError{Provider: "ses", Err: err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			derr.Message = apiErr.ErrorMessage()
		}
		return Receipt{}, derr
	}

	receipt := Receipt{Provider: "ses", MessageID: aws.ToString(output.MessageId)}
	s.logger.Info("email sent via SES", "to", msg.To, "subject", msg.Subject, "message_id", receipt.MessageID)
	return receipt, nil
}

type mailAddress struct {
	Name    string
	Address string
}

func (a *mailAddress) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", a.Name), a.Address)
}

// buildMIME renders msg as multipart/mixed with a multipart/alternative body.
func buildMIME(from string, msg EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", (&mailAddress{Name: msg.ToName, Address: msg.To}).String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	bodies := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Body},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, body := range bodies {
		if body.content == "" {
			continue
		}
		part, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {body.contentType},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(wrapBase64(base64.StdEncoding.EncodeToString([]byte(body.content)))); err != nil {
			return nil, err
		}
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	altPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": att.Name})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Name})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(wrapBase64(EncodeAttachment(att.Data))); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapBase64 breaks encoded content into 76 character lines.
func wrapBase64(encoded string) []byte {
	const width = 76
	var out bytes.Buffer
	for len(encoded) > width {
		out.WriteString(encoded[:width])
		out.WriteString("\r\n")
		encoded = encoded[width:]
	}
	out.WriteString(encoded)
	out.WriteString("\r\n")
	return out.Bytes()
}

var _ EmailSender = (*SESSender)(nil)
