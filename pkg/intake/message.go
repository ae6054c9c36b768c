package intake

import (
	"encoding/json"
	"fmt"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/taskqueue"
)

// Result event names.
const (
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
)

// TaskMessage is the JSON body of a task delivery.
type TaskMessage struct {
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type"`
	Priority string            `json:"priority,omitempty"`
	Data     any               `json:"data,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	Options  MessageOptions    `json:"options,omitempty"`
}

// MessageOptions mirrors taskqueue.Options with a millisecond timeout.
type MessageOptions struct {
	TimeoutMS  int64  `json:"timeout_ms,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// Event is published to the result queue when a task becomes terminal.
type Event struct {
	Event      string             `json:"event"`
	TaskID     string             `json:"task_id"`
	Type       taskqueue.TaskType `json:"type"`
	Result     any                `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// DecodeTask parses a task delivery body into a task spec. Field validation
// beyond JSON shape is left to taskqueue.Queue.AddTask.
func DecodeTask(body []byte) (taskqueue.TaskSpec, error) {
	var msg TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return taskqueue.TaskSpec{}, &MalformedMessageError{Cause: err}
	}
	if msg.Type == "" {
		return taskqueue.TaskSpec{}, &MalformedMessageError{Cause: fmt.Errorf("missing task type")}
	}
	if msg.Options.TimeoutMS < 0 {
		return taskqueue.TaskSpec{}, &MalformedMessageError{Cause: fmt.Errorf("negative timeout_ms %d", msg.Options.TimeoutMS)}
	}

	return taskqueue.TaskSpec{
		ID:       msg.ID,
		Type:     taskqueue.TaskType(msg.Type),
		Priority: ai.Priority(msg.Priority),
		Data:     msg.Data,
		Context:  msg.Context,
		Options: taskqueue.Options{
			Timeout:    time.Duration(msg.Options.TimeoutMS) * time.Millisecond,
			MaxRetries: msg.Options.MaxRetries,
			Provider:   msg.Options.Provider,
		},
	}, nil
}
