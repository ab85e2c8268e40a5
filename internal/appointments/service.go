package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

// Notifier sends the best-effort submission and rejection emails.
type Notifier interface {
	NotifySubmitted(ctx context.Context, appt *Appointment) error
	NotifyRejected(ctx context.Context, appt *Appointment) error
}

// ConfirmationPublisher hands a confirmed appointment to the slip/email pipeline.
type ConfirmationPublisher interface {
	EnqueueConfirmation(ctx context.Context, appointmentID, referenceID string) error
}

// Viewer identifies who is reading an appointment.
type Viewer struct {
	UserID string
	Admin  bool
}

// Service runs appointment lifecycle operations: load, transition, persist,
// then trigger side effects.
type Service struct {
	repo       Repository
	refs       *ReferenceGenerator
	notifier   Notifier
	publisher  ConfirmationPublisher
	logger     *logging.Logger
	metrics    *metrics.LifecycleMetrics
	now        func() time.Time
	background func(func())

	enqueueTimeout time.Duration
}

const defaultEnqueueTimeout = 5 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the submission/rejection notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher sets the confirmation pipeline publisher.
func WithPublisher(p ConfirmationPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records transition outcomes.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBackground overrides how best-effort notifications are detached from the request.
func WithBackground(run func(func())) Option {
	return func(s *Service) {
		if run != nil {
			s.background = run
		}
	}
}

// WithEnqueueTimeout bounds how long Confirm and Resend wait on a full queue.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.enqueueTimeout = d
		}
	}
}

// NewService wires the lifecycle engine.
func NewService(repo Repository, refs *ReferenceGenerator, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if refs == nil {
		panic("appointments: reference generator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:       repo,
		refs:       refs,
		logger:     logger,
		now:        time.Now,
		background: func(fn func()) { go fn() },

		enqueueTimeout: defaultEnqueueTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the intake and creates a Pending appointment owned by userID.
func (s *Service) Submit(ctx context.Context, userID string, intake Intake) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.submit", "")
	defer func() { s.finish(span, "submit", err) }()

	intake.Normalize()
	if err := ValidateIntake(&intake); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	appt = &Appointment{
		ID:          uuid.New().String(),
		UserID:      userID,
		Intake:      intake,
		Status:      StatusPending,
		EmailStatus: EmailPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))
	s.logger.Info("appointment submitted", "appointment_id", appt.ID, "user_id", userID)

	s.notifyDetached("submission", appt, func(ctx context.Context, a *Appointment) error {
		return s.notifier.NotifySubmitted(ctx, a)
	})
	return appt, nil
}

// Get returns one appointment if the viewer owns it or is an admin.
func (s *Service) Get(ctx context.Context, id string, viewer Viewer) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && appt.UserID != viewer.UserID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListMine returns the user's appointments, newest first.
func (s *Service) ListMine(ctx context.Context, userID string) ([]*Appointment, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns every appointment, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*Appointment, error) {
	return s.repo.ListAll(ctx)
}

// Confirm assigns a reference ID, persists the Confirmed state and enqueues
// the confirmation job. A second confirm fails with ErrAlreadyConfirmed and
// leaves the record untouched.
func (s *Service) Confirm(ctx context.Context, id, adminID string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.confirm", id)
	defer func() { s.finish(span, "confirm", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusConfirmed {
		return nil, ErrAlreadyConfirmed
	}
	previous := appt.Reference()

	now := s.now()
	ref, err := s.refs.Generate(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := appt.Confirm(ref, adminID, now); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.reference_id", ref))
	if previous != "" {
		s.logger.Warn("reference id replaced on re-confirm", "appointment_id", id, "previous", previous, "reference_id", ref)
	}
	s.logger.Info("appointment confirmed", "appointment_id", id, "reference_id", ref, "confirmed_by", adminID)

	s.enqueueConfirmation(ctx, appt)
	return appt, nil
}

// ResendConfirmation re-runs the confirmation pipeline for a confirmed appointment.
func (s *Service) ResendConfirmation(ctx context.Context, id string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.resend", id)
	defer func() { s.finish(span, "resend", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusConfirmed || appt.Reference() == "" {
		return nil, ErrNotConfirmed
	}
	if err := s.repo.UpdateEmailStatus(ctx, id, EmailPending); err != nil {
		return nil, err
	}
	appt.EmailStatus = EmailPending
	s.enqueueConfirmation(ctx, appt)
	return appt, nil
}

// Reject marks the appointment Rejected and notifies the patient best-effort.
func (s *Service) Reject(ctx context.Context, id, adminID, reason string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.reject", id)
	defer func() { s.finish(span, "reject", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt.Reject(reason, adminID, s.now())
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.logger.Info("appointment rejected", "appointment_id", id, "reason", appt.RejectionReason)

	s.notifyDetached("rejection", appt, func(ctx context.Context, a *Appointment) error {
		return s.notifier.NotifyRejected(ctx, a)
	})
	return appt, nil
}

// RevertToPending clears the reference ID and confirmation stamp together.
func (s *Service) RevertToPending(ctx context.Context, id string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.revert", id)
	defer func() { s.finish(span, "revert", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	discarded := appt.Reference()
	appt.RevertToPending(s.now())
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.logger.Info("appointment reverted to pending", "appointment_id", id, "discarded_reference", discarded)
	return appt, nil
}

// MarkNoShow records that the patient did not attend.
func (s *Service) MarkNoShow(ctx context.Context, id string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.noshow", id)
	defer func() { s.finish(span, "noshow", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt.MarkNoShow(s.now())
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// CheckIn records front-desk arrival; only confirmed appointments qualify.
func (s *Service) CheckIn(ctx context.Context, id string) (appt *Appointment, err error) {
	ctx, span := s.start(ctx, "appointments.checkin", id)
	defer func() { s.finish(span, "checkin", err) }()

	appt, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := appt.CheckIn(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.logger.Info("appointment checked in", "appointment_id", id, "reference_id", appt.Reference())
	return appt, nil
}

// Delete removes the appointment permanently.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.start(ctx, "appointments.delete", id)
	defer func() { s.finish(span, "delete", err) }()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// Verify returns the public projection used by the check-in link.
func (s *Service) Verify(ctx context.Context, id string) (PublicView, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return PublicView{}, err
	}
	return appt.Public(), nil
}

// SlipSource loads an appointment for slip rendering; it must hold a reference ID.
func (s *Service) SlipSource(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Reference() == "" {
		return nil, ErrSlipUnavailable
	}
	return appt, nil
}

func (s *Service) enqueueConfirmation(ctx context.Context, appt *Appointment) {
	if s.publisher == nil {
		s.logger.Warn("no confirmation publisher configured", "appointment_id", appt.ID)
		return
	}
	// The record is already persisted, so a client disconnect must not abort
	// the enqueue, but a full queue must not hold the response either.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.enqueueTimeout)
	defer cancel()
	err := s.publisher.EnqueueConfirmation(enqueueCtx, appt.ID, appt.Reference())
	if err == nil {
		return
	}
	s.logger.Error("failed to enqueue confirmation job", "error", err, "appointment_id", appt.ID)
	if werr := s.repo.UpdateEmailStatus(context.WithoutCancel(ctx), appt.ID, EmailFailed); werr != nil {
		s.logger.Error("failed to record email failure", "error", werr, "appointment_id", appt.ID)
		return
	}
	appt.EmailStatus = EmailFailed
}

// notifyDetached runs a best-effort notification off the request path.
// Failures are logged and never reach the caller.
func (s *Service) notifyDetached(kind string, appt *Appointment, send func(context.Context, *Appointment) error) {
	if s.notifier == nil {
		return
	}
	snapshot := appt.Clone()
	s.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notification panicked", "kind", kind, "appointment_id", snapshot.ID, "panic", fmt.Sprint(r))
			}
		}()
		if err := send(ctx, snapshot); err != nil {
			s.logger.Warn("best-effort notification failed", "kind", kind, "error", err, "appointment_id", snapshot.ID)
		}
	})
}

func (s *Service) start(ctx context.Context, name, id string) (context.Context, trace.Span) {
	ctx, span := appointmentsTracer.Start(ctx, name)
	if id != "" {
		span.SetAttributes(attribute.String("clinic.appointment_id", id))
	}
	return ctx, span
}

func (s *Service) finish(span trace.Span, operation string, err error) {
	if err != nil && !isClientError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.ObserveTransition(operation, err)
}

func isClientError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrNotConfirmed)
}
