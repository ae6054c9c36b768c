package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/limits/ratelimit"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/telemetry/metrics"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// recentWindow is the number of successful durations kept for the average.
const recentWindow = 100

// Archiver receives tasks evicted by the retention sweep.
type Archiver interface {
	Archive(ctx context.Context, tasks []TaskSnapshot) error
}

// Queue batches homogeneous tasks and executes them with bounded
// concurrency, retries and progress callbacks.
type Queue struct {
	config   config.QueueConfig
	executor Executor

	limiter   ratelimit.Checker
	limitRule ratelimit.Rule
	archive   Archiver
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
	now       func() time.Time

	// slots counts processing tasks against MaxConcurrency.
	slots *ratelimit.ConcurrentLimiter

	mu      sync.Mutex
	tasks   map[string]*task
	pending []*task
	waiting map[string]*task
	seq     uint64

	completedTotal int
	failedTotal    int
	durations      []time.Duration
	finishedAt     []time.Time

	running bool
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	batches sync.WaitGroup
	sweeper *sweeper
}

// Option configures a Queue.
type Option func(*Queue)

// WithRateLimiter enables batch admission checks.
func WithRateLimiter(l ratelimit.Checker, rule ratelimit.Rule) Option {
	return func(q *Queue) {
		q.limiter = l
		q.limitRule = rule
	}
}

// WithArchive stores swept tasks in a.
func WithArchive(a Archiver) Option {
	return func(q *Queue) { q.archive = a }
}

// WithMetrics records queue metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(q *Queue) { q.metrics = c }
}

// WithTracer records batch and task spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(q *Queue) { q.tracer = t }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides time.Now for timestamps and the sweep cutoff.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a task queue. A nil cfg uses the configuration defaults.
func New(cfg *config.QueueConfig, executor Executor, opts ...Option) (*Queue, error) {
	if cfg == nil {
		cfg = &config.Default().Queue
	}
	if executor == nil {
		return nil, fmt.Errorf("task queue requires an executor")
	}
	if cfg.MaxConcurrency < 1 || cfg.MaxBatchSize < 1 || cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("task queue limits must be positive (concurrency %d, batch %d, retries %d)",
			cfg.MaxConcurrency, cfg.MaxBatchSize, cfg.MaxRetries)
	}

	q := &Queue{
		config:   *cfg,
		executor: executor,
		logger:   slog.Default(),
		now:      time.Now,
		slots:    ratelimit.NewConcurrentLimiter(cfg.MaxConcurrency),
		tasks:    make(map[string]*task),
		waiting:  make(map[string]*task),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "taskqueue")

	s, err := newSweeper(q, cfg.SweepSchedule)
	if err != nil {
		return nil, err
	}
	q.sweeper = s
	return q, nil
}

// AddTask validates spec and enqueues it. It never blocks on queue work.
func (q *Queue) AddTask(spec TaskSpec) (string, error) {
	if !spec.Type.Valid() {
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported task type %q", spec.Type)}
	}
	priority := spec.Priority
	if priority == "" {
		priority = ai.PriorityMedium
	}
	if !priority.Valid() {
		return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unsupported priority %q", spec.Priority)}
	}
	if spec.Options.Timeout < 0 {
		return "", &ValidationError{Field: "options.timeout", Message: "must not be negative"}
	}
	if spec.Options.MaxRetries < 0 {
		return "", &ValidationError{Field: "options.max_retries", Message: "must not be negative"}
	}

	options := spec.Options
	if options.Provider == ai.ProviderAuto {
		options.Provider = ""
	}
	maxRetries := options.MaxRetries
	if maxRetries == 0 {
		maxRetries = q.config.MaxRetries
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	q.mu.Lock()
	if _, exists := q.tasks[id]; exists {
		q.mu.Unlock()
		return "", &ValidationError{Field: "id", Message: fmt.Sprintf("task %q already exists", id)}
	}
	q.seq++
	t := &task{
		id:         id,
		taskType:   spec.Type,
		priority:   priority,
		data:       spec.Data,
		context:    spec.Context,
		options:    options,
		callbacks:  spec.Callbacks,
		status:     StatusQueued,
		maxRetries: maxRetries,
		createdAt:  q.now(),
		seq:        q.seq,
	}
	q.tasks[id] = t
	q.pending = append(q.pending, t)
	q.updateGauges()
	q.mu.Unlock()

	q.logger.Debug("Task queued",
		"task_id", id,
		"task_type", spec.Type,
		"priority", priority,
	)
	q.notify()
	return id, nil
}

// GetTaskStatus returns a snapshot of the task. ok is false for unknown,
// cancelled or swept tasks.
func (q *Queue) GetTaskStatus(id string) (TaskSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return TaskSnapshot{}, false
	}
	return t.snapshot(), true
}

// CancelTask removes a queued task, including one waiting out a retry
// delay. It returns false once the task is processing or terminal.
func (q *Queue) CancelTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok || t.status != StatusQueued {
		return false
	}

	t.cancelled = true
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	delete(q.waiting, id)
	q.removePending(t)
	delete(q.tasks, id)
	q.updateGauges()

	q.logger.Info("Task cancelled", "task_id", id, "attempts", t.attempts)
	return true
}

// GetMetrics summarizes the queue.
func (q *Queue) GetMetrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{Processing: int(q.slots.Current())}
	for _, t := range q.tasks {
		switch t.status {
		case StatusQueued:
			m.Queued++
		case StatusCompleted:
			m.Completed++
		case StatusFailed:
			m.Failed++
		}
	}

	if len(q.durations) > 0 {
		var total time.Duration
		for _, d := range q.durations {
			total += d
		}
		m.AverageProcessingTime = total / time.Duration(len(q.durations))
	}

	cutoff := q.now().Add(-time.Minute)
	for _, at := range q.finishedAt {
		if at.After(cutoff) {
			m.ThroughputPerMinute++
		}
	}

	if finished := q.completedTotal + q.failedTotal; finished > 0 {
		m.SuccessRate = float64(q.completedTotal) / float64(finished)
	}
	m.Utilization = float64(m.Processing) / float64(q.config.MaxConcurrency)
	return m
}

// Start runs the processing loop and the retention sweep until ctx is
// cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	q.mu.Unlock()

	q.sweeper.start()
	q.logger.Info("Task queue started",
		"max_concurrency", q.config.MaxConcurrency,
		"max_batch_size", q.config.MaxBatchSize,
		"max_retries", q.config.MaxRetries,
	)
	go q.loop(ctx, q.stopCh, q.doneCh)
	return nil
}

// Stop ends the loop and the sweep, then waits for dispatched batches to
// finish. Queued tasks stay queued.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stopCh, doneCh := q.stopCh, q.doneCh
	q.mu.Unlock()

	close(stopCh)
	<-doneCh
	q.sweeper.stop()
	q.batches.Wait()
	q.logger.Info("Task queue stopped")
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	poll := q.config.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-stopCh:
			return false
		case <-q.wake:
		case <-ticker.C:
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		batch := q.nextBatch()
		if len(batch) == 0 {
			if !wait() {
				return
			}
			continue
		}

		if !q.admit(ctx, batch) {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(q.config.RateLimitBackoff):
			}
			continue
		}

		batch = q.markProcessing(batch)
		if len(batch) == 0 {
			continue
		}

		q.batches.Add(1)
		go func() {
			defer q.batches.Done()
			q.runBatch(context.WithoutCancel(ctx), batch)
		}()
	}
}

// nextBatch assembles the next homogeneous batch without removing it from
// pending. It returns nil when nothing is pending or no slot is free.
func (q *Queue) nextBatch() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()

	headroom := q.config.MaxConcurrency - int(q.slots.Current())
	if headroom <= 0 || len(q.pending) == 0 {
		return nil
	}
	limit := q.config.MaxBatchSize
	if headroom < limit {
		limit = headroom
	}

	sort.SliceStable(q.pending, func(i, j int) bool {
		a, b := q.pending[i], q.pending[j]
		if ra, rb := a.priority.Rank(), b.priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.seq < b.seq
	})

	head := q.pending[0]
	batch := []*task{head}
	for _, t := range q.pending[1:] {
		if len(batch) >= limit {
			break
		}
		if t.key() == head.key() {
			batch = append(batch, t)
		}
	}
	return batch
}

// admit runs the optional rate limit check for a batch. A denial leaves
// every task pending and counts no attempt.
func (q *Queue) admit(ctx context.Context, batch []*task) bool {
	if q.limiter == nil {
		return true
	}

	head := batch[0]
	scope := head.options.Provider
	if resolver, ok := q.executor.(ProviderResolver); ok {
		q.mu.Lock()
		snap := head.snapshot()
		q.mu.Unlock()
		scope = resolver.ResolveProvider(snap)
	}
	if scope == "" {
		scope = ai.ProviderAuto
	}
	endpoint := providers.EndpointFor(head.taskType.RequestType())

	res, err := q.limiter.CheckLimit(ctx, scope, string(head.taskType), endpoint, q.limitRule)
	if err != nil {
		q.logger.WarnContext(ctx, "Rate limit check failed, deferring batch",
			"error", err,
			"task_type", head.taskType,
			"size", len(batch),
		)
		q.metrics.RecordRateLimitDenial("taskqueue")
		return false
	}
	if !res.Allowed {
		q.logger.DebugContext(ctx, "Batch deferred by rate limit",
			"scope", scope,
			"task_type", head.taskType,
			"size", len(batch),
			"retry_after", res.RetryAfter,
		)
		q.metrics.RecordRateLimitDenial("taskqueue")
		return false
	}
	return true
}

// markProcessing moves the still-queued members of batch out of pending,
// takes their concurrency slots and counts the attempt. The 0% progress
// callbacks are left to runBatch.
func (q *Queue) markProcessing(batch []*task) []*task {
	q.mu.Lock()
	admitted := make([]*task, 0, len(batch))
	for _, t := range batch {
		if !t.cancelled && t.status == StatusQueued {
			admitted = append(admitted, t)
		}
	}
	if !q.slots.AcquireN(len(admitted)) {
		q.mu.Unlock()
		q.logger.Error("Concurrency slots exhausted, batch left pending", "size", len(admitted))
		return nil
	}

	now := q.now()
	for _, t := range admitted {
		q.removePending(t)
		t.status = StatusProcessing
		t.startedAt = now
		t.attempts++
		t.progress = 0
	}
	q.updateGauges()
	q.mu.Unlock()
	return admitted
}

// removePending deletes t from the pending list. Must be called with mu held.
func (q *Queue) removePending(t *task) {
	for i, p := range q.pending {
		if p == t {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// updateGauges publishes per-state counts. Must be called with mu held.
func (q *Queue) updateGauges() {
	if q.metrics == nil {
		return
	}
	counts := map[Status]int{}
	for _, t := range q.tasks {
		counts[t.status]++
	}
	for _, s := range []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed} {
		q.metrics.SetQueueTasks(string(s), counts[s])
	}
}
