package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// JobProcessor handles a single decoded job.
type JobProcessor interface {
	Process(ctx context.Context, job Job) error
}

// Worker consumes confirmation jobs from the queue and invokes the processor.
type Worker struct {
	processor JobProcessor
	queue     Queue
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultJobTimeout    = 2 * time.Minute
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds a single job, covering render and send.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// NewWorker creates a queue consumer.
func NewWorker(processor JobProcessor, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("confirmation: processor cannot be nil")
	}
	if queue == nil {
		panic("confirmation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		processor: processor,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer goroutine has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("confirmation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("confirmation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive confirmation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one message and always deletes it: failures are
// recorded on the appointment and retried through an explicit resend.
func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	defer w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)

	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode confirmation job", "error", err, "msg_id", msg.ID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()

	if err := w.process(jobCtx, job); err != nil {
		w.logger.Warn("confirmation job failed", "error", err, "job_id", job.ID, "appointment_id", job.AppointmentID)
		return
	}
	w.logger.Debug("confirmation job processed", "job_id", job.ID, "appointment_id", job.AppointmentID)
}

func (w *Worker) process(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("confirmation: job panicked: %v", r)
		}
	}()
	return w.processor.Process(ctx, job)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete confirmation job", "error", err)
	}
}
