package taskqueue

import (
	"time"

	"smartcrm-hq/conductor/pkg/ai"
)

// TaskType is the batch-oriented subset of AI operations.
type TaskType string

const (
	TypeScoring    TaskType = "scoring"
	TypeEnrichment TaskType = "enrichment"
	TypeInsights   TaskType = "insights"
	TypeEmail      TaskType = "email"
	TypeAnalysis   TaskType = "analysis"
)

var requestTypes = map[TaskType]ai.RequestType{
	TypeScoring:    ai.TypeContactScoring,
	TypeEnrichment: ai.TypeContactEnrichment,
	TypeInsights:   ai.TypeInsightsGeneration,
	TypeEmail:      ai.TypeEmailGeneration,
	TypeAnalysis:   ai.TypeCommunicationAnalysis,
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	_, ok := requestTypes[t]
	return ok
}

// RequestType returns the AI request type tasks of type t execute as.
func (t TaskType) RequestType() ai.RequestType {
	return requestTypes[t]
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Options tunes a single task.
type Options struct {
	// Timeout bounds one attempt. Zero uses the queue default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries is the attempt budget. Zero uses the queue default.
	MaxRetries int `json:"max_retries,omitempty"`

	// Provider pins a provider by name. Empty or "auto" selects automatically.
	Provider string `json:"provider,omitempty"`
}

// Callbacks observe a task. OnProgress may fire any number of times with
// values from 0 to 100. Exactly one of OnComplete and OnError fires once the
// task is terminal; neither fires for a cancelled task.
//
// Callbacks run outside queue locks on queue goroutines and must not block
// for long.
type Callbacks struct {
	OnProgress func(progress int)
	OnComplete func(result any)
	OnError    func(err error)
}

// TaskSpec describes a task to enqueue.
type TaskSpec struct {
	// ID is optional. A UUID is assigned when empty.
	ID string

	Type     TaskType
	Priority ai.Priority
	Data     any
	Context  map[string]string
	Options  Options

	Callbacks Callbacks
}

// TaskSnapshot is a point-in-time copy of a task.
type TaskSnapshot struct {
	ID          string            `json:"id"`
	Type        TaskType          `json:"type"`
	Priority    ai.Priority       `json:"priority"`
	Data        any               `json:"data,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Options     Options           `json:"options"`
	Status      Status            `json:"status"`
	Progress    int               `json:"progress"`
	Attempts    int               `json:"attempts"`
	Result      any               `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Request builds the AI request a task attempt executes.
func (s TaskSnapshot) Request() *ai.Request {
	return &ai.Request{
		ID:       s.ID,
		Type:     s.Type.RequestType(),
		Priority: s.Priority,
		Data:     s.Data,
		Context:  s.Context,
		Options: ai.Options{
			Provider: s.Options.Provider,
			Timeout:  s.Options.Timeout,
		},
	}
}

// batchKey is the homogeneity key of a batch.
type batchKey struct {
	taskType TaskType
	priority ai.Priority
	provider string
}

// task is the queue's mutable record. Guarded by Queue.mu.
type task struct {
	id        string
	taskType  TaskType
	priority  ai.Priority
	data      any
	context   map[string]string
	options   Options
	callbacks Callbacks

	status      Status
	progress    int
	attempts    int
	maxRetries  int
	result      any
	err         error
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	seq        uint64
	cancelled  bool
	retryTimer *time.Timer

	// terminalFired guards the exactly-once terminal callback.
	terminalFired bool
}

func (t *task) key() batchKey {
	return batchKey{taskType: t.taskType, priority: t.priority, provider: t.options.Provider}
}

func (t *task) snapshot() TaskSnapshot {
	s := TaskSnapshot{
		ID:        t.id,
		Type:      t.taskType,
		Priority:  t.priority,
		Data:      t.data,
		Context:   t.context,
		Options:   t.options,
		Status:    t.status,
		Progress:  t.progress,
		Attempts:  t.attempts,
		Result:    t.result,
		CreatedAt: t.createdAt,
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		s.CompletedAt = &completed
	}
	return s
}

// Metrics summarizes queue state.
type Metrics struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	// AverageProcessingTime covers the last 100 successful tasks.
	AverageProcessingTime time.Duration `json:"average_processing_time"`

	// ThroughputPerMinute counts tasks that became terminal in the last minute.
	ThroughputPerMinute int `json:"throughput_per_minute"`

	// SuccessRate is completed / (completed + failed) since the queue started.
	SuccessRate float64 `json:"success_rate"`

	// Utilization is Processing / MaxConcurrency.
	Utilization float64 `json:"utilization"`
}
