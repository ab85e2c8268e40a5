package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

type fakeSendGridClient struct {
	got      *sgmail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeSendGridClient) SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error) {
	f.got = email
	return f.response, f.err
}

func TestEncodeAttachment(t *testing.T) {
	raw := []byte("%PDF-1.7 body")
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), EncodeAttachment(raw))

	uri := []byte("data:application/pdf;base64,JVBERi0xLjc=")
	assert.Equal(t, "JVBERi0xLjc=", EncodeAttachment(uri))
}

func TestNewSendGridSenderWithoutKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "clinic@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Sober Steps Clinic", sender.fromName)

	_, err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com", Subject: "Hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendGridSenderSendsAttachment(t *testing.T) {
	fake := &fakeSendGridClient{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"msg-123"}},
	}}
	sender := &SendGridSender{client: fake, fromEmail: "clinic@example.com", fromName: "Clinic", logger: logging.Default()}

	receipt, err := sender.Send(context.Background(), EmailMessage{
		To:          "jane@example.com",
		ToName:      "Jane Doe",
		Subject:     "Appointment confirmed",
		Body:        "text",
		HTML:        "<p>html</p>",
		Attachments: []Attachment{{Name: "Jane_Slip.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-123", receipt.MessageID)
	assert.Equal(t, 202, receipt.StatusCode)

	require.NotNil(t, fake.got)
	require.Len(t, fake.got.Attachments, 1)
	att := fake.got.Attachments[0]
	assert.Equal(t, "Jane_Slip.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")), att.Content)
}

func TestSendGridSenderErrorStatus(t *testing.T) {
	fake := &fakeSendGridClient{response: &rest.Response{
		StatusCode: 400,
		Body:       `{"errors":[{"message":"The from address does not match a verified Sender Identity"}]}`,
	}}
	sender := &SendGridSender{client: fake, fromEmail: "clinic@example.com", fromName: "Clinic", logger: logging.Default()}

	_, err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com", Subject: "Hi", Body: "Hi"})

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "sendgrid", derr.Provider)
	assert.Equal(t, 400, derr.StatusCode)
	assert.Equal(t, "The from address does not match a verified Sender Identity", derr.Message)
}

func TestSendGridSenderTransportError(t *testing.T) {
	fake := &fakeSendGridClient{err: errors.New("dial tcp: timeout")}
	sender := &SendGridSender{client: fake, logger: logging.Default()}

	_, err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com", Subject: "Hi"})

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), "dial tcp: timeout")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsRawMessage(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "clinic@example.com", FromName: "Clinic"}, nil)
	pdf := []byte("%PDF-1.7 slip")

	receipt, err := sender.Send(context.Background(), EmailMessage{
		To:          "jane@example.com",
		Subject:     "Appointment confirmed",
		Body:        "plain",
		HTML:        "<p>html</p>",
		Attachments: []Attachment{{Name: "Jane_Slip.pdf", ContentType: "application/pdf", Data: pdf}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-1", receipt.MessageID)
	require.NotNil(t, client.input.Content.Raw)

	msg, err := mail.ReadMessage(strings.NewReader(string(client.input.Content.Raw.Data)))
	require.NoError(t, err)
	assert.Equal(t, "Appointment confirmed", msg.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(msg.Body, params["boundary"])
	first, err := reader.NextPart()
	require.NoError(t, err)
	assert.Contains(t, first.Header.Get("Content-Type"), "multipart/alternative")

	second, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "Jane_Slip.pdf", second.FileName())
	encoded, err := io.ReadAll(second)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, pdf, decoded)

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSESSenderAPIError(t *testing.T) {
	client := &fakeSES{err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified"}}
	sender := NewSESSender(client, SESConfig{FromEmail: "clinic@example.com"}, nil)

	_, err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com", Subject: "Hi", Body: "Hi"})

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "ses", derr.Provider)
	assert.Equal(t, "Email address is not verified", derr.Message)
}

func TestSESSenderNotConfigured(t *testing.T) {
	_, err := NewSESSender(nil, SESConfig{}, nil).Send(context.Background(), EmailMessage{To: "jane@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWrapBase64(t *testing.T) {
	wrapped := string(wrapBase64(strings.Repeat("A", 160)))
	lines := strings.Split(strings.TrimRight(wrapped, "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Len(t, lines[0], 76)
	assert.Len(t, lines[2], 8)
}

func TestStubEmailSender(t *testing.T) {
	receipt, err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "jane@example.com", Subject: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "stub", receipt.Provider)
}
