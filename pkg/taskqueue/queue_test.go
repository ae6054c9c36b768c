package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/limits/ratelimit"
)

func testConfig() config.QueueConfig {
	cfg := config.Default().Queue
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RetryDelay = time.Millisecond
	cfg.RateLimitBackoff = 5 * time.Millisecond
	cfg.SweepSchedule = ""
	return cfg
}

func newTestQueue(t *testing.T, cfg config.QueueConfig, exec Executor, opts ...Option) *Queue {
	t.Helper()
	q, err := New(&cfg, exec, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return q
}

func start(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		q.Stop()
		cancel()
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recorder counts callbacks of one task.
type recorder struct {
	mu        sync.Mutex
	progress  []int
	completes int
	errors    int
	result    any
	err       error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p int) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnComplete: func(result any) {
			r.mu.Lock()
			r.completes++
			r.result = result
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errors++
			r.err = err
			r.mu.Unlock()
		},
	}
}

func (r *recorder) terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes+r.errors > 0
}

func (r *recorder) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.progress {
		if p == 0 {
			n++
		}
	}
	return n
}

func TestAddTask_Validation(t *testing.T) {
	q := newTestQueue(t, testConfig(), ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return nil, nil }))

	tests := []struct {
		name      string
		spec      TaskSpec
		wantField string
	}{
		{name: "unknown type", spec: TaskSpec{Type: "horoscope"}, wantField: "type"},
		{name: "request type is not a task type", spec: TaskSpec{Type: "contact_scoring"}, wantField: "type"},
		{name: "bad priority", spec: TaskSpec{Type: TypeScoring, Priority: "asap"}, wantField: "priority"},
		{name: "negative timeout", spec: TaskSpec{Type: TypeEmail, Options: Options{Timeout: -time.Second}}, wantField: "options.timeout"},
		{name: "negative retries", spec: TaskSpec{Type: TypeEmail, Options: Options{MaxRetries: -1}}, wantField: "options.max_retries"},
		{name: "valid", spec: TaskSpec{Type: TypeEnrichment}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := q.AddTask(tt.spec)
			if tt.wantField == "" {
				if err != nil || id == "" {
					t.Fatalf("AddTask() = %q, %v, want id", id, err)
				}
				snap, ok := q.GetTaskStatus(id)
				if !ok || snap.Status != StatusQueued || snap.Priority != ai.PriorityMedium {
					t.Errorf("GetTaskStatus() = %+v, want queued medium", snap)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.wantField {
				t.Errorf("AddTask() error = %v, want ValidationError on %s", err, tt.wantField)
			}
		})
	}

	if _, err := q.AddTask(TaskSpec{ID: "dup", Type: TypeScoring}); err != nil {
		t.Fatalf("AddTask(dup) error = %v", err)
	}
	if _, err := q.AddTask(TaskSpec{ID: "dup", Type: TypeScoring}); err == nil {
		t.Error("AddTask() with existing id error = nil")
	}
}

func TestTaskType_RequestType(t *testing.T) {
	tests := []struct {
		taskType TaskType
		want     ai.RequestType
	}{
		{TypeScoring, ai.TypeContactScoring},
		{TypeEnrichment, ai.TypeContactEnrichment},
		{TypeInsights, ai.TypeInsightsGeneration},
		{TypeEmail, ai.TypeEmailGeneration},
		{TypeAnalysis, ai.TypeCommunicationAnalysis},
	}
	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			if got := tt.taskType.RequestType(); got != tt.want {
				t.Errorf("RequestType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 1
	cfg.MaxBatchSize = 1

	var mu sync.Mutex
	var order []string
	exec := ExecutorFunc(func(_ context.Context, task TaskSnapshot) (any, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return nil, nil
	})
	q := newTestQueue(t, cfg, exec)

	specs := []TaskSpec{
		{ID: "low", Type: TypeScoring, Priority: ai.PriorityLow},
		{ID: "medium-1", Type: TypeScoring, Priority: ai.PriorityMedium},
		{ID: "urgent", Type: TypeScoring, Priority: ai.PriorityUrgent},
		{ID: "medium-2", Type: TypeScoring, Priority: ai.PriorityMedium},
		{ID: "high", Type: TypeEmail, Priority: ai.PriorityHigh},
	}
	for _, s := range specs {
		if _, err := q.AddTask(s); err != nil {
			t.Fatalf("AddTask() error = %v", err)
		}
	}

	start(t, q)
	waitFor(t, "all tasks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(specs)
	})

	want := []string{"urgent", "high", "medium-1", "medium-2", "low"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("execution order = %v, want %v", order, want)
			break
		}
	}
}

func TestQueue_RetryBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3

	var calls atomic.Int32
	cause := errors.New("provider unavailable")
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) {
		calls.Add(1)
		return nil, cause
	})
	q := newTestQueue(t, cfg, exec)

	rec := &recorder{}
	id, _ := q.AddTask(TaskSpec{Type: TypeAnalysis, Callbacks: rec.callbacks()})
	start(t, q)
	waitFor(t, "terminal callback", rec.terminal)

	// allow a late duplicate callback to surface
	time.Sleep(20 * time.Millisecond)

	snap, _ := q.GetTaskStatus(id)
	if snap.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", snap.Status)
	}
	if snap.Attempts != 3 || calls.Load() != 3 {
		t.Errorf("Attempts = %d, executor calls = %d, want 3", snap.Attempts, calls.Load())
	}
	if got := rec.startedCount(); got != 3 {
		t.Errorf("queued->processing transitions = %d, want 3", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errors != 1 || rec.completes != 0 {
		t.Errorf("OnError = %d, OnComplete = %d, want 1 and 0", rec.errors, rec.completes)
	}
	if !errors.Is(rec.err, ErrTaskExecutionFailed) || !errors.Is(rec.err, cause) {
		t.Errorf("OnError err = %v, want task execution failure wrapping cause", rec.err)
	}
	if snap.Error == "" || snap.CompletedAt == nil {
		t.Errorf("snapshot = %+v, want error and completion time", snap)
	}
}

func TestQueue_PerTaskMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 5

	var calls atomic.Int32
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) {
		calls.Add(1)
		return nil, errors.New("nope")
	})
	q := newTestQueue(t, cfg, exec)

	rec := &recorder{}
	q.AddTask(TaskSpec{Type: TypeEmail, Options: Options{MaxRetries: 1}, Callbacks: rec.callbacks()})
	start(t, q)
	waitFor(t, "failure", rec.terminal)

	if calls.Load() != 1 {
		t.Errorf("executor calls = %d, want 1", calls.Load())
	}
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3

	var calls atomic.Int32
	exec := ExecutorFunc(func(_ context.Context, task TaskSnapshot) (any, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("transient")
		}
		return fmt.Sprintf("scored %s", task.ID), nil
	})
	q := newTestQueue(t, cfg, exec)

	rec := &recorder{}
	id, _ := q.AddTask(TaskSpec{ID: "c1", Type: TypeScoring, Callbacks: rec.callbacks()})
	start(t, q)
	waitFor(t, "completion", rec.terminal)

	snap, _ := q.GetTaskStatus(id)
	if snap.Status != StatusCompleted || snap.Attempts != 3 {
		t.Errorf("snapshot = %s after %d attempts, want completed after 3", snap.Status, snap.Attempts)
	}
	if snap.Progress != 100 || snap.Result != "scored c1" || snap.Error != "" {
		t.Errorf("snapshot = %+v, want progress 100 and result", snap)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.completes != 1 || rec.errors != 0 {
		t.Errorf("OnComplete = %d, OnError = %d, want 1 and 0", rec.completes, rec.errors)
	}
	last := rec.progress[len(rec.progress)-1]
	if last != 100 {
		t.Errorf("last progress = %d, want 100 (all: %v)", last, rec.progress)
	}
	for _, p := range rec.progress {
		if p < 0 || p > 100 {
			t.Errorf("progress %d out of range", p)
		}
	}
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 3
	cfg.MaxBatchSize = 2

	var inFlight, peak atomic.Int32
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(3 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	q := newTestQueue(t, cfg, exec)

	types := []TaskType{TypeScoring, TypeEmail, TypeInsights, TypeAnalysis}
	const total = 24
	for i := 0; i < total; i++ {
		q.AddTask(TaskSpec{Type: types[i%len(types)]})
	}
	start(t, q)

	done := func() bool { return q.GetMetrics().Completed == total }
	for !done() {
		m := q.GetMetrics()
		if m.Processing > cfg.MaxConcurrency {
			t.Fatalf("Processing = %d, want <= %d", m.Processing, cfg.MaxConcurrency)
		}
		if m.Utilization > 1 {
			t.Fatalf("Utilization = %v, want <= 1", m.Utilization)
		}
		time.Sleep(time.Millisecond)
	}

	if p := peak.Load(); p > int32(cfg.MaxConcurrency) {
		t.Errorf("peak concurrent executions = %d, want <= %d", p, cfg.MaxConcurrency)
	}
}

// batchRecorder is an executor that records each prepared batch.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]TaskSnapshot
	fail    error
}

func (b *batchRecorder) PrepareBatch(_ context.Context, tasks []TaskSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, tasks)
	return b.fail
}

func (b *batchRecorder) ExecuteTask(context.Context, TaskSnapshot) (any, error) {
	return "done", nil
}

func TestQueue_BatchHomogeneity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 10
	cfg.MaxBatchSize = 3

	exec := &batchRecorder{}
	q := newTestQueue(t, cfg, exec)

	specs := []TaskSpec{
		{Type: TypeScoring, Priority: ai.PriorityHigh},
		{Type: TypeScoring, Priority: ai.PriorityHigh, Options: Options{Provider: "gemini"}},
		{Type: TypeScoring, Priority: ai.PriorityHigh},
		{Type: TypeEmail, Priority: ai.PriorityHigh},
		{Type: TypeScoring, Priority: ai.PriorityLow},
		{Type: TypeScoring, Priority: ai.PriorityHigh, Options: Options{Provider: "auto"}},
		{Type: TypeScoring, Priority: ai.PriorityHigh},
		{Type: TypeEmail, Priority: ai.PriorityHigh},
	}
	ids := make([]string, len(specs))
	for i, s := range specs {
		id, err := q.AddTask(s)
		if err != nil {
			t.Fatalf("AddTask() error = %v", err)
		}
		ids[i] = id
	}
	start(t, q)
	waitFor(t, "all tasks", func() bool { return q.GetMetrics().Completed == len(specs) })

	exec.mu.Lock()
	defer exec.mu.Unlock()
	seen := 0
	for _, batch := range exec.batches {
		if len(batch) > cfg.MaxBatchSize {
			t.Errorf("batch size = %d, want <= %d", len(batch), cfg.MaxBatchSize)
		}
		head := batch[0]
		for _, task := range batch[1:] {
			if task.Type != head.Type || task.Priority != head.Priority || task.Options.Provider != head.Options.Provider {
				t.Errorf("batch mixes %s/%s/%q with %s/%s/%q",
					head.Type, head.Priority, head.Options.Provider,
					task.Type, task.Priority, task.Options.Provider)
			}
		}
		seen += len(batch)
	}
	if seen != len(specs) {
		t.Errorf("tasks across batches = %d, want %d", seen, len(specs))
	}

	// batches run on their own goroutines, so look them up by membership
	wantGroups := [][]string{
		{ids[0], ids[2], ids[5]},
		{ids[6]},
		{ids[1]},
		{ids[3], ids[7]},
		{ids[4]},
	}
	for _, want := range wantGroups {
		if !containsBatch(exec.batches, want) {
			t.Errorf("no batch with tasks %v", want)
		}
	}
}

func containsBatch(batches [][]TaskSnapshot, ids []string) bool {
	for _, batch := range batches {
		if len(batch) != len(ids) {
			continue
		}
		match := true
		for i, task := range batch {
			if task.ID != ids[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestQueue_ProgressCallbackPanic(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 1
	cfg.MaxBatchSize = 1
	cfg.MaxRetries = 1

	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return "ok", nil })
	q := newTestQueue(t, cfg, exec)

	var mu sync.Mutex
	var failure error
	badID, _ := q.AddTask(TaskSpec{
		Type:     TypeScoring,
		Priority: ai.PriorityUrgent,
		Callbacks: Callbacks{
			OnProgress: func(p int) {
				if p == 0 {
					panic("callback bug")
				}
			},
			OnError: func(err error) {
				mu.Lock()
				failure = err
				mu.Unlock()
			},
		},
	})
	rec := &recorder{}
	goodID, _ := q.AddTask(TaskSpec{Type: TypeScoring, Priority: ai.PriorityLow, Callbacks: rec.callbacks()})

	start(t, q)
	waitFor(t, "second task", rec.terminal)

	bad, _ := q.GetTaskStatus(badID)
	if bad.Status != StatusFailed {
		t.Errorf("panicking task Status = %s, want %s", bad.Status, StatusFailed)
	}
	mu.Lock()
	if !errors.Is(failure, ErrBatchDispatchFailed) {
		t.Errorf("OnError err = %v, want ErrBatchDispatchFailed", failure)
	}
	mu.Unlock()

	good, _ := q.GetTaskStatus(goodID)
	if good.Status != StatusCompleted {
		t.Errorf("next task Status = %s, want %s", good.Status, StatusCompleted)
	}
	if m := q.GetMetrics(); m.Processing != 0 {
		t.Errorf("Processing = %d, want 0", m.Processing)
	}
}

func TestQueue_CancelTask(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 1
	cfg.MaxBatchSize = 1

	release := make(chan struct{})
	started := make(chan string, 10)
	exec := ExecutorFunc(func(_ context.Context, task TaskSnapshot) (any, error) {
		started <- task.ID
		<-release
		return nil, nil
	})
	q := newTestQueue(t, cfg, exec)

	q.AddTask(TaskSpec{ID: "running", Type: TypeScoring, Priority: ai.PriorityUrgent})
	start(t, q)

	if id := <-started; id != "running" {
		t.Fatalf("first started = %s, want running", id)
	}

	q.AddTask(TaskSpec{ID: "waiting", Type: TypeScoring})
	rec := &recorder{}
	q.AddTask(TaskSpec{ID: "keep", Type: TypeScoring, Callbacks: rec.callbacks()})

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "processing task", id: "running", want: false},
		{name: "queued task", id: "waiting", want: true},
		{name: "already cancelled", id: "waiting", want: false},
		{name: "unknown task", id: "nope", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.CancelTask(tt.id); got != tt.want {
				t.Errorf("CancelTask(%s) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}

	if _, ok := q.GetTaskStatus("waiting"); ok {
		t.Error("cancelled task still visible")
	}
	snap, ok := q.GetTaskStatus("running")
	if !ok || snap.Status != StatusProcessing {
		t.Errorf("running task = %+v, want processing", snap)
	}

	close(release)
	waitFor(t, "remaining task", rec.terminal)

	if got := <-started; got != "keep" {
		t.Errorf("second started = %s, want keep", got)
	}
	select {
	case id := <-started:
		t.Errorf("cancelled task %s was executed", id)
	default:
	}
}

func TestQueue_CancelDuringRetryDelay(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = time.Hour

	var calls atomic.Int32
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) {
		calls.Add(1)
		return nil, errors.New("fail")
	})
	q := newTestQueue(t, cfg, exec)

	rec := &recorder{}
	id, _ := q.AddTask(TaskSpec{Type: TypeScoring, Callbacks: rec.callbacks()})
	start(t, q)

	waitFor(t, "first attempt", func() bool {
		snap, _ := q.GetTaskStatus(id)
		return snap.Attempts == 1 && snap.Status == StatusQueued
	})

	if !q.CancelTask(id) {
		t.Fatal("CancelTask() during retry delay = false, want true")
	}
	if m := q.GetMetrics(); m.Queued != 0 {
		t.Errorf("Queued = %d after cancel, want 0", m.Queued)
	}
	if rec.terminal() {
		t.Error("terminal callback fired for cancelled task")
	}
	if calls.Load() != 1 {
		t.Errorf("executor calls = %d, want 1", calls.Load())
	}
}

func TestQueue_BatchDispatchFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxBatchSize = 5

	cause := errors.New("shared transport down")
	exec := &batchRecorder{fail: cause}
	q := newTestQueue(t, cfg, exec)

	recs := make([]*recorder, 3)
	for i := range recs {
		recs[i] = &recorder{}
		q.AddTask(TaskSpec{Type: TypeEnrichment, Callbacks: recs[i].callbacks()})
	}
	start(t, q)

	for _, rec := range recs {
		waitFor(t, "batch failure", rec.terminal)
		rec.mu.Lock()
		var batchErr *BatchDispatchFailedError
		if !errors.As(rec.err, &batchErr) || !errors.Is(rec.err, cause) {
			t.Errorf("OnError err = %v, want *BatchDispatchFailedError wrapping cause", rec.err)
		} else if batchErr.Size != 3 || batchErr.Type != TypeEnrichment {
			t.Errorf("batch error = %+v, want 3 enrichment tasks", batchErr)
		}
		if rec.completes != 0 {
			t.Error("OnComplete fired for failed batch")
		}
		rec.mu.Unlock()
	}
	if m := q.GetMetrics(); m.Failed != 3 || m.SuccessRate != 0 {
		t.Errorf("metrics = %+v, want 3 failed", m)
	}
}

func TestQueue_PanicFailsUnfinishedTasks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxConcurrency = 3
	cfg.MaxBatchSize = 3

	exec := ExecutorFunc(func(_ context.Context, task TaskSnapshot) (any, error) {
		if task.ID == "b" {
			panic("decoder exploded")
		}
		return task.ID, nil
	})
	q := newTestQueue(t, cfg, exec)

	recs := map[string]*recorder{"a": {}, "b": {}, "c": {}}
	for _, id := range []string{"a", "b", "c"} {
		q.AddTask(TaskSpec{ID: id, Type: TypeInsights, Callbacks: recs[id].callbacks()})
	}
	start(t, q)
	for _, rec := range recs {
		waitFor(t, "terminal", rec.terminal)
	}

	tests := []struct {
		id     string
		status Status
	}{
		{"a", StatusCompleted},
		{"b", StatusFailed},
		{"c", StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			snap, _ := q.GetTaskStatus(tt.id)
			if snap.Status != tt.status {
				t.Errorf("Status = %s, want %s", snap.Status, tt.status)
			}
		})
	}

	recs["c"].mu.Lock()
	defer recs["c"].mu.Unlock()
	if !errors.Is(recs["c"].err, ErrBatchDispatchFailed) {
		t.Errorf("sibling error = %v, want ErrBatchDispatchFailed", recs["c"].err)
	}
}

type flakyLimiter struct {
	mu      sync.Mutex
	denials int
	checks  []string
}

func (l *flakyLimiter) CheckLimit(_ context.Context, scope, subScope, endpoint string, _ ratelimit.Rule) (*ratelimit.CheckResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks = append(l.checks, ratelimit.Key(scope, subScope, endpoint))
	if l.denials > 0 {
		l.denials--
		return &ratelimit.CheckResult{Allowed: false, RetryAfter: time.Millisecond}, nil
	}
	return &ratelimit.CheckResult{Allowed: true}, nil
}

func TestQueue_RateLimitDeniedIsNotAnAttempt(t *testing.T) {
	cfg := testConfig()
	limiter := &flakyLimiter{denials: 2}
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return "ok", nil })
	q := newTestQueue(t, cfg, exec, WithRateLimiter(limiter, ratelimit.Rule{MaxRequests: 10, Window: time.Minute}))

	rec := &recorder{}
	id, _ := q.AddTask(TaskSpec{Type: TypeEmail, Options: Options{Provider: "openai"}, Callbacks: rec.callbacks()})
	start(t, q)
	waitFor(t, "completion", rec.terminal)

	snap, _ := q.GetTaskStatus(id)
	if snap.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", snap.Attempts)
	}
	if got := rec.startedCount(); got != 1 {
		t.Errorf("OnProgress(0) calls = %d, want 1", got)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.checks) != 3 {
		t.Errorf("limit checks = %d, want 3", len(limiter.checks))
	}
	if want := "openai|email|/ai/generate-email"; limiter.checks[0] != want {
		t.Errorf("limit key = %q, want %q", limiter.checks[0], want)
	}
}

// routedExecutor resolves every task to one provider.
type routedExecutor struct {
	provider string
}

func (e routedExecutor) ExecuteTask(context.Context, TaskSnapshot) (any, error) { return "ok", nil }

func (e routedExecutor) ResolveProvider(TaskSnapshot) string { return e.provider }

func TestQueue_RateLimitScopedByResolvedProvider(t *testing.T) {
	tests := []struct {
		name string
		exec Executor
		want string
	}{
		{
			name: "resolved provider",
			exec: routedExecutor{provider: "gemini"},
			want: "gemini|email|/ai/generate-email",
		},
		{
			name: "nothing resolvable",
			exec: routedExecutor{},
			want: "auto|email|/ai/generate-email",
		},
		{
			name: "executor without resolver",
			exec: ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return "ok", nil }),
			want: "auto|email|/ai/generate-email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := &flakyLimiter{}
			q := newTestQueue(t, testConfig(), tt.exec, WithRateLimiter(limiter, ratelimit.Rule{MaxRequests: 10, Window: time.Minute}))

			rec := &recorder{}
			q.AddTask(TaskSpec{Type: TypeEmail, Callbacks: rec.callbacks()})
			start(t, q)
			waitFor(t, "completion", rec.terminal)

			limiter.mu.Lock()
			defer limiter.mu.Unlock()
			if len(limiter.checks) != 1 || limiter.checks[0] != tt.want {
				t.Errorf("limit keys = %v, want [%s]", limiter.checks, tt.want)
			}
		})
	}
}

func TestQueue_Sweep(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = time.Hour

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	archived := &memoryArchive{}
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return nil, nil })
	q := newTestQueue(t, cfg, exec, WithClock(clock), WithArchive(archived))

	rec := &recorder{}
	doneID, _ := q.AddTask(TaskSpec{Type: TypeScoring, Callbacks: rec.callbacks()})
	start(t, q)
	waitFor(t, "completion", rec.terminal)
	q.Stop()

	queuedID, _ := q.AddTask(TaskSpec{Type: TypeScoring})

	if n := q.Sweep(now.Add(30 * time.Minute)); n != 0 {
		t.Errorf("Sweep() within retention = %d, want 0", n)
	}
	if n := q.Sweep(now.Add(time.Hour)); n != 1 {
		t.Errorf("Sweep() after retention = %d, want 1", n)
	}
	if _, ok := q.GetTaskStatus(doneID); ok {
		t.Error("swept task still visible")
	}
	if _, ok := q.GetTaskStatus(queuedID); !ok {
		t.Error("queued task was swept")
	}

	archived.mu.Lock()
	defer archived.mu.Unlock()
	if len(archived.tasks) != 1 || archived.tasks[0].ID != doneID {
		t.Errorf("archived = %+v, want the completed task", archived.tasks)
	}
}

type memoryArchive struct {
	mu    sync.Mutex
	tasks []TaskSnapshot
}

func (a *memoryArchive) Archive(_ context.Context, tasks []TaskSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, tasks...)
	return nil
}

func TestQueue_SweepSchedule(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return nil, nil })

	cfg := testConfig()
	cfg.SweepSchedule = "every five minutes"
	if _, err := New(&cfg, exec); err == nil {
		t.Error("New() error = nil for invalid sweep schedule")
	}

	cfg.SweepSchedule = "@every 5m"
	q := newTestQueue(t, cfg, exec)
	if q.NextSweep() != nil {
		t.Error("NextSweep() before Start = non-nil")
	}
	start(t, q)
	waitFor(t, "schedule", func() bool { return q.NextSweep() != nil })
}

func TestQueue_Metrics(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxConcurrency = 4

	exec := ExecutorFunc(func(_ context.Context, task TaskSnapshot) (any, error) {
		if task.Type == TypeAnalysis {
			return nil, errors.New("bad payload")
		}
		return nil, nil
	})
	q := newTestQueue(t, cfg, exec)

	for i := 0; i < 3; i++ {
		q.AddTask(TaskSpec{Type: TypeScoring})
	}
	q.AddTask(TaskSpec{Type: TypeAnalysis})

	m := q.GetMetrics()
	if m.Queued != 4 || m.Processing != 0 || m.Utilization != 0 {
		t.Errorf("metrics before start = %+v, want 4 queued", m)
	}

	start(t, q)
	waitFor(t, "all terminal", func() bool {
		m := q.GetMetrics()
		return m.Completed+m.Failed == 4
	})

	m = q.GetMetrics()
	if m.Completed != 3 || m.Failed != 1 {
		t.Errorf("completed=%d failed=%d, want 3 and 1", m.Completed, m.Failed)
	}
	if m.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", m.SuccessRate)
	}
	if m.ThroughputPerMinute != 4 {
		t.Errorf("ThroughputPerMinute = %d, want 4", m.ThroughputPerMinute)
	}
}

func TestQueue_StartTwice(t *testing.T) {
	q := newTestQueue(t, testConfig(), ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return nil, nil }))
	start(t, q)
	if err := q.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, TaskSnapshot) (any, error) { return nil, nil })

	cfg := testConfig()
	cfg.MaxConcurrency = 0
	if _, err := New(&cfg, exec); err == nil {
		t.Error("New() error = nil for zero concurrency")
	}
	if _, err := New(nil, nil); err == nil {
		t.Error("New() error = nil without executor")
	}
}
