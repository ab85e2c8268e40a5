package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/internal/slip"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

var confirmationTracer = otel.Tracer("clinic.internal.confirmation")

const statusWriteTimeout = 10 * time.Second

// PDFRenderer prints an HTML document to PDF.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Mailer delivers the confirmation email with the slip attached.
type Mailer interface {
	SendConfirmation(ctx context.Context, appt *appointments.Appointment, slip notify.Attachment) (notify.Receipt, error)
}

// SlipArchive keeps a copy of the rendered PDF.
type SlipArchive interface {
	PutSlip(ctx context.Context, appointmentID, referenceID string, confirmedAt time.Time, pdf []byte) (string, error)
}

// Processor runs one confirmation job: render, print, email, record.
type Processor struct {
	repo     appointments.Repository
	renderer PDFRenderer
	mailer   Mailer
	archive  SlipArchive
	slipOpts slip.Options
	metrics  *metrics.LifecycleMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithArchive stores every rendered PDF. Archive failures never block the email.
func WithArchive(a SlipArchive) ProcessorOption {
	return func(p *Processor) { p.archive = a }
}

// WithProcessorMetrics records stage outcomes and render latency.
func WithProcessorMetrics(m *metrics.LifecycleMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor wires the pipeline stages.
func NewProcessor(repo appointments.Repository, renderer PDFRenderer, mailer Mailer, slipOpts slip.Options, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if repo == nil || renderer == nil || mailer == nil {
		panic("confirmation: repository, renderer and mailer are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		repo:     repo,
		renderer: renderer,
		mailer:   mailer,
		slipOpts: slipOpts,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process delivers the slip for job. Stale jobs are skipped. A failed or
// panicking stage marks the appointment's email as failed and returns the
// stage error; a failed outcome write is logged and swallowed.
func (p *Processor) Process(ctx context.Context, job Job) (err error) {
	ctx, span := confirmationTracer.Start(ctx, "confirmation.process")
	span.SetAttributes(
		attribute.String("clinic.appointment_id", job.AppointmentID),
		attribute.String("clinic.reference_id", job.ReferenceID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = p.fail(ctx, "panic", job.AppointmentID, fmt.Errorf("%v", r))
		}
	}()

	appt, err := p.repo.GetByID(ctx, job.AppointmentID)
	if errors.Is(err, appointments.ErrNotFound) {
		p.logger.Info("skipping confirmation job: appointment deleted", "job_id", job.ID, "appointment_id", job.AppointmentID)
		return nil
	}
	if err != nil {
		return p.fail(ctx, "load", job.AppointmentID, err)
	}
	if appt.Status != appointments.StatusConfirmed || appt.Reference() != job.ReferenceID {
		p.logger.Info("skipping stale confirmation job",
			"job_id", job.ID,
			"appointment_id", appt.ID,
			"status", appt.Status,
			"job_reference_id", job.ReferenceID,
			"reference_id", appt.Reference(),
		)
		return nil
	}

	html, err := slip.Render(appt, p.slipOpts)
	if err != nil {
		return p.fail(ctx, "render", appt.ID, err)
	}
	p.metrics.ObservePipeline("render", nil)

	started := time.Now()
	pdf, err := p.renderer.RenderPDF(ctx, html)
	p.metrics.ObserveRenderLatency(time.Since(started).Seconds())
	if err != nil {
		return p.fail(ctx, "pdf", appt.ID, err)
	}
	p.metrics.ObservePipeline("pdf", nil)

	p.archiveSlip(ctx, appt, pdf)

	receipt, err := p.mailer.SendConfirmation(ctx, appt, notify.Attachment{
		Name:        slip.Filename(appt.FullName),
		ContentType: "application/pdf",
		Data:        pdf,
	})
	if err != nil {
		return p.fail(ctx, "email", appt.ID, err)
	}
	p.metrics.ObservePipeline("email", nil)

	p.writeStatus(ctx, appt.ID, appointments.EmailSent)
	p.logger.Info("confirmation slip delivered",
		"appointment_id", appt.ID,
		"reference_id", appt.Reference(),
		"provider", receipt.Provider,
		"message_id", receipt.MessageID,
	)
	return nil
}

func (p *Processor) archiveSlip(ctx context.Context, appt *appointments.Appointment, pdf []byte) {
	if p.archive == nil {
		return
	}
	confirmedAt := p.now()
	if appt.ConfirmedAt != nil {
		confirmedAt = *appt.ConfirmedAt
	}
	key, err := p.archive.PutSlip(ctx, appt.ID, appt.Reference(), confirmedAt, pdf)
	p.metrics.ObservePipeline("archive", err)
	if err != nil {
		p.logger.Warn("slip archive failed", "error", err, "appointment_id", appt.ID)
		return
	}
	if key != "" {
		p.logger.Debug("slip archived", "appointment_id", appt.ID, "s3_key", key)
	}
}

func (p *Processor) fail(ctx context.Context, stage, appointmentID string, err error) error {
	p.metrics.ObservePipeline(stage, err)
	p.logger.Error("confirmation pipeline failed", "stage", stage, "error", err, "appointment_id", appointmentID)
	p.writeStatus(ctx, appointmentID, appointments.EmailFailed)
	return fmt.Errorf("confirmation: %s: %w", stage, err)
}

// writeStatus records the delivery outcome even if the job context has expired.
func (p *Processor) writeStatus(ctx context.Context, appointmentID string, status appointments.EmailStatus) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	err := p.repo.UpdateEmailStatus(writeCtx, appointmentID, status)
	p.metrics.ObservePipeline("status", err)
	if err != nil {
		p.logger.Error("failed to record email status", "error", err, "appointment_id", appointmentID, "email_status", status)
	}
}
