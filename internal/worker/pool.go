package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quangbt/jobpulse/internal/queue"
)

// spawnWorkerPool spawns N executor goroutines based on concurrency
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the processing loop for one executor goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case td, ok := <-w.tasksChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - tasksChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received task",
				slog.String("worker_name", workerName),
				slog.String("task_id", td.msg.TaskID),
				slog.String("source", td.msg.Source),
			)

			settled := w.handleTask(ctx, td)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("task_id", td.msg.TaskID),
				)
				continue
			}

			// The queue's own state machine handles redelivery, so a settled
			// task always ACKs the broker delivery. Only bookkeeping failures
			// fall back to a broker-level requeue.
			if settled {
				if ackErr := channel.Ack(td.deliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK delivery",
						slog.String("worker_name", workerName),
						slog.String("task_id", td.msg.TaskID),
						slog.String("error", ackErr.Error()),
					)
				}
			} else {
				if nackErr := channel.Nack(td.deliveryTag, false, true); nackErr != nil {
					w.logger.Error("Failed to NACK delivery",
						slog.String("worker_name", workerName),
						slog.String("task_id", td.msg.TaskID),
						slog.String("error", nackErr.Error()),
					)
				}
			}
		}
	}
}

// handleTask claims the task, runs the pipeline, and reports the outcome to
// the task queue. Returns false only when the task's state could not be
// settled and the broker should redeliver.
func (w *Worker) handleTask(ctx context.Context, td *taskDelivery) bool {
	task, err := w.queue.Claim(ctx, td.msg.TaskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) || errors.Is(err, queue.ErrTaskNotClaimable) {
			// Duplicate delivery of an already-settled task; drop it
			w.logger.Warn("Skipping unclaimable task delivery",
				slog.String("task_id", td.msg.TaskID),
				slog.String("reason", err.Error()),
			)
			return true
		}

		w.logger.Error("Failed to claim task",
			slog.String("task_id", td.msg.TaskID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := w.runPipeline(ctx, task); err != nil {
		// The whole fetch failed (network outage, bad document) - this is a
		// queue-level failure, distinct from per-record import failures.
		w.logger.Error("Task processing failed",
			slog.String("task_id", task.TaskID),
			slog.String("source", task.Source),
			slog.Int("attempt", task.Attempts),
			slog.String("error", err.Error()),
		)

		requeued, nackErr := w.queue.Nack(ctx, task, err)
		if nackErr != nil {
			w.logger.Error("Failed to NACK task",
				slog.String("task_id", task.TaskID),
				slog.String("error", nackErr.Error()),
			)
			return false
		}

		if requeued {
			w.logger.Info("Task will be redelivered",
				slog.String("task_id", task.TaskID),
				slog.Int("attempt", task.Attempts),
			)
		}
		return true
	}

	if ackErr := w.queue.Ack(ctx, task); ackErr != nil {
		w.logger.Error("Failed to ACK task",
			slog.String("task_id", task.TaskID),
			slog.String("error", ackErr.Error()),
		)
		return false
	}

	return true
}

// runPipeline executes fetch then import for one task
func (w *Worker) runPipeline(ctx context.Context, task *queue.FetchTask) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	records, err := w.fetcher.Fetch(fetchCtx, task.URL, task.Source)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	run := w.importer.Import(ctx, records, task.Source, task.URL)

	w.logger.Info("Task pipeline complete",
		slog.String("task_id", task.TaskID),
		slog.String("source", task.Source),
		slog.Int("fetched", run.TotalFetched),
		slog.Int("imported", run.TotalImported),
		slog.Int("failed", run.FailedJobs),
		slog.String("status", run.Status),
	)

	return nil
}
