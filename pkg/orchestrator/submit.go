package orchestrator

import (
	"container/heap"
	"context"
	"time"

	"github.com/google/uuid"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/telemetry/logging"
)

// Status is the state of a submitted request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Outcome is the state of a request accepted by SubmitRequest.
type Outcome struct {
	ID          string         `json:"id"`
	Type        ai.RequestType `json:"type"`
	Status      Status         `json:"status"`
	Response    *ai.Response   `json:"response,omitempty"`
	Err         error          `json:"-"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// pendingItem is a submitted request waiting for the loop.
type pendingItem struct {
	req *ai.Request
	seq uint64
}

// pendingQueue orders requests by priority rank, then submission order.
type pendingQueue []*pendingItem

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	ri, rj := q[i].req.EffectivePriority().Rank(), q[j].req.EffectivePriority().Rank()
	if ri != rj {
		return ri > rj
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) { *q = append(*q, x.(*pendingItem)) }

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// SubmitRequest validates req, queues it and returns its id without waiting
// for execution. An empty ID is replaced by a new UUID. The outcome is
// available through GetResult once the loop started by Start has run it.
func (o *Orchestrator) SubmitRequest(req *ai.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	clone := *req
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}

	o.results.Add(clone.ID, &Outcome{
		ID:          clone.ID,
		Type:        clone.Type,
		Status:      StatusPending,
		SubmittedAt: o.now(),
	})

	o.mu.Lock()
	o.seq++
	heap.Push(&o.pending, &pendingItem{req: &clone, seq: o.seq})
	o.mu.Unlock()

	o.notify()
	return clone.ID, nil
}

// PendingCount returns the number of submitted requests not yet started.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending.Len()
}

// GetResult returns a copy of the outcome of a submitted request. ok is
// false when the id is unknown or has been evicted from the result store.
func (o *Orchestrator) GetResult(id string) (Outcome, bool) {
	out, ok := o.results.Get(id)
	if !ok {
		return Outcome{}, false
	}
	return *out, true
}

// Start runs the submit loop in the background until ctx is cancelled or
// Stop is called. Requests are executed one at a time, highest priority first.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	o.logger.Info("Submit loop started", "poll_interval", o.config.PollInterval)
	go o.loop(ctx, o.stopCh, o.doneCh)
	return nil
}

// Stop ends the submit loop and waits for the request in flight, if any.
// Pending requests stay queued and run after the next Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	o.logger.Info("Submit loop stopped")
}

func (o *Orchestrator) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) pop() (*pendingItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&o.pending).(*pendingItem), true
}

func (o *Orchestrator) requeue(item *pendingItem) {
	o.mu.Lock()
	heap.Push(&o.pending, item)
	o.mu.Unlock()
}

func (o *Orchestrator) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	poll := o.config.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		item, ok := o.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-o.wake:
			case <-ticker.C:
			}
			continue
		}

		if !o.admit(ctx, item.req) {
			o.requeue(item)
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(o.config.RateLimitBackoff):
			}
			continue
		}

		o.run(ctx, item.req)
	}
}

// admit runs the optional rate limit check for req.
func (o *Orchestrator) admit(ctx context.Context, req *ai.Request) bool {
	if o.limiter == nil {
		return true
	}

	scope := o.ResolveProvider(req)
	res, err := o.limiter.CheckLimit(ctx, scope, string(req.Type), providers.EndpointFor(req.Type), o.limitRule)
	if err != nil {
		o.logger.WarnContext(logging.WithRequestID(ctx, req.ID), "Rate limit check failed, deferring request", "error", err)
		o.metrics.RecordRateLimitDenial("orchestrator")
		return false
	}
	if !res.Allowed {
		o.logger.DebugContext(logging.WithRequestID(ctx, req.ID), "Request deferred by rate limit",
			"scope", scope,
			"retry_after", res.RetryAfter,
		)
		o.metrics.RecordRateLimitDenial("orchestrator")
		return false
	}
	return true
}

func (o *Orchestrator) run(ctx context.Context, req *ai.Request) {
	resp, err := o.Execute(ctx, req)

	out := &Outcome{ID: req.ID, Type: req.Type, SubmittedAt: o.now()}
	if prev, ok := o.results.Peek(req.ID); ok {
		out.SubmittedAt = prev.SubmittedAt
	}
	done := o.now()
	out.CompletedAt = &done

	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		out.Error = err.Error()
	} else {
		out.Status = StatusCompleted
		out.Response = resp
	}
	o.results.Add(req.ID, out)
}
