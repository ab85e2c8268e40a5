package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// ErrNoRecipient is returned when the appointment carries no patient email.
var ErrNoRecipient = errors.New("notify: appointment has no email address")

// Config holds the clinic details rendered into every email.
type Config struct {
	ClinicName  string
	ClinicPhone string
	FrontendURL string
	AdminEmails []string
}

// Service renders and sends appointment emails to patients and clinic staff.
type Service struct {
	email   EmailSender
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.LifecycleMetrics
}

// NewService creates a notification service.
func NewService(email EmailSender, cfg Config, logger *logging.Logger, m *metrics.LifecycleMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Sober Steps Clinic"
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Service{email: email, cfg: cfg, logger: logger, metrics: m}
}

type templateData struct {
	ClinicName  string
	ClinicPhone string
	Appointment *appointments.Appointment
	ReferenceID string
	AdminURL    string
	PatientURL  string
	BookURL     string
	VerifyURL   string
}

func (s *Service) data(appt *appointments.Appointment) templateData {
	return templateData{
		ClinicName:  s.cfg.ClinicName,
		ClinicPhone: s.cfg.ClinicPhone,
		Appointment: appt,
		ReferenceID: appt.Reference(),
		AdminURL:    s.cfg.FrontendURL + "/admin/appointments",
		PatientURL:  s.cfg.FrontendURL + "/appointments/" + appt.ID,
		BookURL:     s.cfg.FrontendURL + "/book",
		VerifyURL:   s.cfg.FrontendURL + "/verify/" + appt.ID,
	}
}

// NotifySubmitted tells every admin about a new request and acknowledges it to the patient.
// All recipients are attempted; the returned error joins the failures.
func (s *Service) NotifySubmitted(ctx context.Context, appt *appointments.Appointment) error {
	data := s.data(appt)
	var errs []error
	for _, admin := range s.cfg.AdminEmails {
		if _, err := s.send(ctx, "admin_submitted", adminSubmittedTemplate, data, admin, "", nil); err != nil {
			errs = append(errs, err)
		}
	}
	if appt.Email != "" {
		if _, err := s.send(ctx, "patient_submitted", patientSubmittedTemplate, data, appt.Email, appt.FullName, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyRejected tells the patient their request was declined.
func (s *Service) NotifyRejected(ctx context.Context, appt *appointments.Appointment) error {
	if appt.Email == "" {
		s.logger.Info("skipping rejection email, no address", "appointment_id", appt.ID)
		return nil
	}
	_, err := s.send(ctx, "rejected", rejectedTemplate, s.data(appt), appt.Email, appt.FullName, nil)
	return err
}

// SendConfirmation emails the patient their slip.
func (s *Service) SendConfirmation(ctx context.Context, appt *appointments.Appointment, slip Attachment) (Receipt, error) {
	if appt.Email == "" {
		s.metrics.ObserveEmail("confirmed", ErrNoRecipient)
		return Receipt{}, ErrNoRecipient
	}
	return s.send(ctx, "confirmed", confirmedTemplate, s.data(appt), appt.Email, appt.FullName, []Attachment{slip})
}

func (s *Service) send(ctx context.Context, kind string, tmpl emailTemplate, data templateData, to, toName string, attachments []Attachment) (Receipt, error) {
	subject, text, html, err := tmpl.render(data)
	if err != nil {
		s.metrics.ObserveEmail(kind, err)
		return Receipt{}, err
	}
	if s.email == nil {
		s.metrics.ObserveEmail(kind, ErrNotConfigured)
		return Receipt{}, ErrNotConfigured
	}
	receipt, err := s.email.Send(ctx, EmailMessage{
		To:          to,
		ToName:      toName,
		Subject:     subject,
		Body:        text,
		HTML:        html,
		Attachments: attachments,
	})
	s.metrics.ObserveEmail(kind, err)
	if err != nil {
		return Receipt{}, fmt.Errorf("notify: send %s email: %w", kind, err)
	}
	return receipt, nil
}
