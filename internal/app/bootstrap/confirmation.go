package bootstrap

import (
	"fmt"
	"time"

	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/confirmation"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// BuildConfirmationQueue returns the SQS queue when CONFIRMATION_QUEUE_URL is
// set, otherwise an in-memory queue. inProcess reports that the API binary must
// run the worker itself.
func BuildConfirmationQueue(cfg *appconfig.Config, sqsClient confirmation.SQSAPI, logger *logging.Logger) (queue confirmation.Queue, inProcess bool, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.UsesSQS() {
		logger.Info("confirmation jobs use the in-memory queue")
		return confirmation.NewMemoryQueue(256), true, nil
	}
	if sqsClient == nil {
		return nil, false, fmt.Errorf("bootstrap: CONFIRMATION_QUEUE_URL set without an SQS client")
	}
	logger.Info("confirmation jobs use SQS", "queue_url", cfg.ConfirmationQueueURL)
	return confirmation.NewSQSQueue(sqsClient, cfg.ConfirmationQueueURL), false, nil
}

// notifyBudget covers loading, archiving and emailing around the render.
const notifyBudget = 30 * time.Second

// WorkerOptions maps configuration onto worker settings. SQS queues long-poll.
func WorkerOptions(cfg *appconfig.Config) []confirmation.WorkerOption {
	opts := []confirmation.WorkerOption{
		confirmation.WithWorkerCount(cfg.WorkerCount),
		confirmation.WithJobTimeout(cfg.RenderTimeout + notifyBudget),
	}
	if cfg.UsesSQS() {
		opts = append(opts, confirmation.WithReceiveWaitSeconds(20), confirmation.WithReceiveBatchSize(10))
	} else {
		opts = append(opts, confirmation.WithReceiveWaitSeconds(0))
	}
	return opts
}
