package confirmation

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Publisher enqueues confirmation jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
	now    func() time.Time
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("confirmation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// EnqueueConfirmation publishes the slip delivery job for a confirmed appointment.
func (p *Publisher) EnqueueConfirmation(ctx context.Context, appointmentID, referenceID string) error {
	job, body, err := encodeJob(Job{
		AppointmentID: appointmentID,
		ReferenceID:   referenceID,
		EnqueuedAt:    p.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("confirmation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("confirmation job enqueued", "job_id", job.ID, "appointment_id", appointmentID, "reference_id", referenceID)
	return nil
}
