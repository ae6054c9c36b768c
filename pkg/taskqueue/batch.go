package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/telemetry/logging"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// Progress reported while a task attempt runs.
const (
	progressDispatched = 0
	progressStarted    = 20
	progressExecuted   = 75
	progressDone       = 100
)

// runBatch executes the tasks of a batch one after another. A PrepareBatch
// error or a panic, including one raised by a progress callback, fails every
// task that has not finished yet.
func (q *Queue) runBatch(ctx context.Context, batch []*task) {
	head := batch[0]
	ctx, span := q.tracer.Start(ctx, "taskqueue.batch")
	defer span.End()
	tracing.SetBatchAttributes(span, string(head.taskType), len(batch))
	q.metrics.RecordBatch(string(head.taskType), len(batch))

	finished := 0
	defer func() {
		if r := recover(); r != nil {
			err := &BatchDispatchFailedError{Type: head.taskType, Size: len(batch), Cause: fmt.Errorf("panic: %v", r)}
			q.logger.ErrorContext(ctx, "Batch dispatch panicked", "error", err, "unfinished", len(batch)-finished)
			tracing.SetError(span, err)
			q.failBatch(batch[finished:], err)
		}
	}()

	for _, t := range batch {
		q.setProgress(t, progressDispatched)
	}

	if preparer, ok := q.executor.(BatchPreparer); ok {
		snapshots := make([]TaskSnapshot, len(batch))
		q.mu.Lock()
		for i, t := range batch {
			snapshots[i] = t.snapshot()
		}
		q.mu.Unlock()

		if err := preparer.PrepareBatch(ctx, snapshots); err != nil {
			batchErr := &BatchDispatchFailedError{Type: head.taskType, Size: len(batch), Cause: err}
			q.logger.WarnContext(ctx, "Batch preparation failed", "error", err, "size", len(batch))
			tracing.SetError(span, batchErr)
			q.failBatch(batch, batchErr)
			return
		}
	}

	for _, t := range batch {
		q.setProgress(t, progressStarted)
		result, err := q.execute(ctx, t)
		if err == nil {
			q.setProgress(t, progressExecuted)
		}
		q.finish(t, result, err)
		finished++
	}
}

// failBatch applies a batch-level failure to each task.
func (q *Queue) failBatch(tasks []*task, err error) {
	for _, t := range tasks {
		q.finish(t, nil, err)
	}
}

// execute runs one attempt of t under its timeout.
func (q *Queue) execute(ctx context.Context, t *task) (any, error) {
	q.mu.Lock()
	snap := t.snapshot()
	q.mu.Unlock()

	ctx = logging.WithTaskID(ctx, snap.ID)
	ctx = logging.WithRequestType(ctx, string(snap.Type.RequestType()))
	ctx, span := q.tracer.Start(ctx, "taskqueue.task")
	defer span.End()
	tracing.SetTaskAttributes(span, snap.ID, string(snap.Type), snap.Attempts)

	timeout := snap.Options.Timeout
	if timeout <= 0 {
		timeout = q.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		snap.Options.Timeout = timeout
	}

	result, err := q.executor.ExecuteTask(ctx, snap)
	if err != nil {
		tracing.SetErrorAttributes(span, err, providers.Classify(err))
		return nil, &TaskExecutionFailedError{TaskID: snap.ID, Attempt: snap.Attempts, Cause: err}
	}
	return result, nil
}

func (q *Queue) setProgress(t *task, progress int) {
	q.mu.Lock()
	t.progress = progress
	cb := t.callbacks.OnProgress
	q.mu.Unlock()

	if cb != nil {
		cb(progress)
	}
}

// finish records the outcome of an attempt, releases its slot and either
// schedules a retry or makes the task terminal.
func (q *Queue) finish(t *task, result any, err error) {
	var notify func()

	q.mu.Lock()
	if t.status != StatusProcessing {
		q.mu.Unlock()
		return
	}
	now := q.now()
	elapsed := now.Sub(t.startedAt)

	switch {
	case err == nil:
		t.status = StatusCompleted
		t.progress = progressDone
		t.result = result
		t.err = nil
		t.completedAt = now
		q.completedTotal++
		q.recordFinish(now, elapsed, true)
		notify = q.terminal(t)

	case t.attempts < t.maxRetries:
		t.status = StatusQueued
		t.err = err
		delay := q.config.RetryDelay * time.Duration(t.attempts)
		q.waiting[t.id] = t
		t.retryTimer = time.AfterFunc(delay, func() { q.requeue(t) })
		q.metrics.RecordRetry(string(t.taskType))
		q.logger.Warn("Task attempt failed, retrying",
			"task_id", t.id,
			"attempt", t.attempts,
			"max_retries", t.maxRetries,
			"retry_in", delay,
			"error", err,
		)

	default:
		t.status = StatusFailed
		t.err = err
		t.completedAt = now
		q.failedTotal++
		q.recordFinish(now, elapsed, false)
		notify = q.terminal(t)
		q.logger.Error("Task failed",
			"task_id", t.id,
			"attempts", t.attempts,
			"batch_failure", errors.Is(err, ErrBatchDispatchFailed),
			"error", err,
		)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	q.metrics.RecordTaskDuration(string(t.taskType), status, elapsed)
	q.updateGauges()
	q.mu.Unlock()

	q.slots.ReleaseN(1)
	q.notify()

	if notify != nil {
		notify()
	}
}

// terminal returns the task's terminal callbacks, or nil when they already
// fired. Must be called with mu held.
func (q *Queue) terminal(t *task) func() {
	if t.terminalFired {
		return nil
	}
	t.terminalFired = true

	cbs := t.callbacks
	status, result, err := t.status, t.result, t.err
	return func() {
		if status == StatusCompleted {
			if cbs.OnProgress != nil {
				cbs.OnProgress(progressDone)
			}
			if cbs.OnComplete != nil {
				cbs.OnComplete(result)
			}
			return
		}
		if cbs.OnError != nil {
			cbs.OnError(err)
		}
	}
}

// recordFinish tracks throughput and, for successes, processing time.
// Must be called with mu held.
func (q *Queue) recordFinish(at time.Time, elapsed time.Duration, success bool) {
	cutoff := at.Add(-time.Minute)
	kept := q.finishedAt[:0]
	for _, f := range q.finishedAt {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	q.finishedAt = append(kept, at)

	if success {
		q.durations = append(q.durations, elapsed)
		if len(q.durations) > recentWindow {
			q.durations = q.durations[len(q.durations)-recentWindow:]
		}
	}
}

// requeue moves a task whose retry delay elapsed back to pending.
func (q *Queue) requeue(t *task) {
	q.mu.Lock()
	if t.cancelled || t.status != StatusQueued {
		q.mu.Unlock()
		return
	}
	if _, ok := q.waiting[t.id]; !ok {
		q.mu.Unlock()
		return
	}
	delete(q.waiting, t.id)
	t.retryTimer = nil
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	q.notify()
}
