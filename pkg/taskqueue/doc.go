// Package taskqueue executes bulk AI work in homogeneous batches.
//
// # Lifecycle
//
// A task moves through
//
//	queued -> processing -> completed
//	                     -> queued (retry, while Attempts < MaxRetries)
//	                     -> failed
//
// The processing loop assembles a batch from the highest-priority pending
// task plus further pending tasks with the same type, priority and provider
// preference, bounded by MaxBatchSize and the free concurrency slots. The
// rate limit scope is the provider the batch would be routed to, as named by
// an executor implementing ProviderResolver, else the pinned provider or
// "auto". A denial returns the whole batch to pending without counting an
// attempt. Admitted batches run in their own goroutine; tasks within a batch
// run one after another.
//
// A failed attempt is retried after RetryDelay multiplied by the attempt
// count. A failure before per-task results are known (a BatchPreparer error
// or a panic, including one from a progress callback) is a *BatchDispatchFailedError applied to every unfinished task
// of the batch.
//
// # Callbacks
//
// OnProgress reports 0, 20, 75 and 100 over an attempt. Exactly one of
// OnComplete and OnError fires per task. Cancelled tasks fire neither.
//
// # Retention
//
// Completed and failed tasks stay queryable for Retention, then a cron sweep
// evicts them into the optional Archiver (see the archive subpackage).
package taskqueue
