// Package confirmation renders and emails appointment slips off the request path.
//
// Confirming an appointment publishes a Job; a Worker drains the queue and hands
// each job to the Processor, which renders the slip, prints it to PDF, emails it
// and records the delivery outcome.
package confirmation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the job transport: an in-memory channel or SQS.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received job body and the handle used to delete it.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job asks the pipeline to deliver the slip for one confirmation. ReferenceID
// pins the job to the confirmation that produced it.
type Job struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	ReferenceID   string    `json:"reference_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("confirmation: failed to encode job: %w", err)
	}
	return job, string(body), nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("confirmation: failed to decode job: %w", err)
	}
	if job.AppointmentID == "" {
		return Job{}, fmt.Errorf("confirmation: job %q has no appointment id", job.ID)
	}
	return job, nil
}
