package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

type scriptedQueue struct {
	mu      sync.Mutex
	ch      chan Message
	deleted []string
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan Message, 10)}
}

func (q *scriptedQueue) enqueue(msg Message) { q.ch <- msg }

func (q *scriptedQueue) Send(ctx context.Context, body string) error {
	q.ch <- Message{ID: "m", Body: body, ReceiptHandle: "rh"}
	return nil
}

func (q *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.ch:
		return []Message{msg}, nil
	}
}

func (q *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *scriptedQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type recordingProcessor struct {
	mu    sync.Mutex
	jobs  []Job
	err   error
	panic bool
}

func (p *recordingProcessor) Process(ctx context.Context, job Job) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	if p.panic {
		panic("renderer exploded")
	}
	return p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerProcessesAndDeletes(t *testing.T) {
	cases := []struct {
		name string
		proc *recordingProcessor
	}{
		{"success", &recordingProcessor{}},
		{"failure", &recordingProcessor{err: errors.New("render failed")}},
		{"panic", &recordingProcessor{panic: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := newScriptedQueue()
			worker := NewWorker(tc.proc, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			worker.Start(ctx)

			body, _ := json.Marshal(Job{ID: "job-1", AppointmentID: "appt-1", ReferenceID: "SOBER-2025-000042"})
			queue.enqueue(Message{ID: "msg-1", Body: string(body), ReceiptHandle: "rh-1"})

			waitFor(t, func() bool { return len(queue.deletedHandles()) == 1 })
			cancel()
			worker.Wait()

			require.Equal(t, 1, tc.proc.count())
			assert.Equal(t, "appt-1", tc.proc.jobs[0].AppointmentID)
			assert.Equal(t, []string{"rh-1"}, queue.deletedHandles())
		})
	}
}

func TestWorkerDropsUndecodableMessages(t *testing.T) {
	queue := newScriptedQueue()
	proc := &recordingProcessor{}
	worker := NewWorker(proc, queue, logging.Default(), WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(Message{ID: "bad", Body: "{not json", ReceiptHandle: "rh-bad"})
	queue.enqueue(Message{ID: "empty", Body: `{"id":"job-2"}`, ReceiptHandle: "rh-empty"})

	waitFor(t, func() bool { return len(queue.deletedHandles()) == 2 })
	cancel()
	worker.Wait()
	assert.Zero(t, proc.count())
}

func TestPipelineEndToEndWithMemoryQueue(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedConfirmed(t, "appt-1", "SOBER-2025-000042")

	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, logging.Default())
	worker := NewWorker(f.proc, queue, logging.Default(), WithWorkerCount(2), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	require.NoError(t, publisher.EnqueueConfirmation(reqCtx, "appt-1", "SOBER-2025-000042"))
	reqCancel()

	waitFor(t, func() bool {
		appt, err := f.repo.InMemoryRepository.GetByID(context.Background(), "appt-1")
		return err == nil && appt.EmailStatus == appointments.EmailSent
	})
	cancel()
	worker.Wait()
	assert.Equal(t, 1, f.mailer.calls)
}

func TestWorkerRecordsFailureWhenRendererPanics(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedConfirmed(t, "appt-1", "SOBER-2025-000042")
	f.renderer.panic = true

	queue := NewMemoryQueue(4)
	worker := NewWorker(f.proc, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	require.NoError(t, NewPublisher(queue, logging.Default()).EnqueueConfirmation(context.Background(), "appt-1", "SOBER-2025-000042"))

	waitFor(t, func() bool {
		appt, err := f.repo.InMemoryRepository.GetByID(context.Background(), "appt-1")
		return err == nil && appt.EmailStatus == appointments.EmailFailed
	})
	cancel()
	worker.Wait()
	assert.Zero(t, f.mailer.calls)
}

func TestConfirmWithFullMemoryQueueResponds(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	queue := NewMemoryQueue(1)
	svc := appointments.NewService(repo,
		appointments.NewReferenceGenerator("SOBER", appointments.NewMemorySequencer(nil)),
		logging.Default(),
		appointments.WithPublisher(NewPublisher(queue, logging.Default())),
		appointments.WithEnqueueTimeout(50*time.Millisecond),
		appointments.WithBackground(func(fn func()) { fn() }),
	)

	ctx := context.Background()
	intake := appointments.Intake{FullName: "Jane Doe", Phone: "9876543210", PrimaryConcern: "Anxiety"}
	first, err := svc.Submit(ctx, "patient-1", intake)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "patient-2", intake)
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, first.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, appointments.EmailPending, confirmed.EmailStatus)
	require.Equal(t, 1, queue.Len())

	done := make(chan *appointments.Appointment, 1)
	go func() {
		appt, err := svc.Confirm(ctx, second.ID, "admin")
		assert.NoError(t, err)
		done <- appt
	}()

	select {
	case appt := <-done:
		require.NotNil(t, appt)
		assert.Equal(t, appointments.StatusConfirmed, appt.Status)
		assert.Equal(t, appointments.EmailFailed, appt.EmailStatus)
	case <-time.After(2 * time.Second):
		t.Fatal("confirm blocked on a full confirmation queue")
	}
	assert.Equal(t, 1, queue.Len())
}

func TestPublisherEncodesJob(t *testing.T) {
	queue := NewMemoryQueue(1)
	publisher := NewPublisher(queue, nil)
	publisher.now = func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, publisher.EnqueueConfirmation(context.Background(), "appt-1", "SOBER-2025-000042"))

	msgs, err := queue.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &raw))
	assert.Equal(t, "appt-1", raw["appointment_id"])
	assert.Equal(t, "SOBER-2025-000042", raw["reference_id"])
	assert.Equal(t, "2025-03-02T09:00:00Z", raw["enqueued_at"])
	assert.NotEmpty(t, raw["id"])
}

func TestPublisherQueueFull(t *testing.T) {
	queue := NewMemoryQueue(1)
	publisher := NewPublisher(queue, nil)
	require.NoError(t, publisher.EnqueueConfirmation(context.Background(), "appt-1", "SOBER-2025-000001"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := publisher.EnqueueConfirmation(ctx, "appt-2", "SOBER-2025-000002")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, queue.Len())
}

func TestMemoryQueueReceive(t *testing.T) {
	queue := NewMemoryQueue(0)

	msgs, err := queue.Receive(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs, "empty poll returns after the wait")

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Send(context.Background(), "body"))
	}
	msgs, err = queue.Receive(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].ReceiptHandle, msgs[1].ReceiptHandle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMemoryQueue(1).Receive(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	deleted  []string
	messages []sqstypes.Message
	err      error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	client := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"appointment_id":"appt-1"}`),
		ReceiptHandle: aws.String("rh-1"),
	}}}
	queue := NewSQSQueue(client, "https://sqs.local/000000000000/confirmations")

	require.NoError(t, queue.Send(context.Background(), "payload"))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "payload", aws.ToString(client.sent[0].MessageBody))
	assert.Equal(t, "https://sqs.local/000000000000/confirmations", aws.ToString(client.sent[0].QueueUrl))

	msgs, err := queue.Receive(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)

	require.NoError(t, queue.Delete(context.Background(), "rh-1"))
	require.NoError(t, queue.Delete(context.Background(), ""))
	assert.Equal(t, []string{"rh-1"}, client.deleted)

	client.err = errors.New("throttled")
	assert.ErrorContains(t, queue.Send(context.Background(), "payload"), "throttled")
	_, err = queue.Receive(context.Background(), 1, 0)
	assert.Error(t, err)
}

func TestNewSQSQueuePanicsWithoutURL(t *testing.T) {
	assert.Panics(t, func() { NewSQSQueue(&fakeSQS{}, "") })
}
