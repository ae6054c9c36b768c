package taskqueue

import (
	"context"

	"smartcrm-hq/conductor/pkg/orchestrator"
	"smartcrm-hq/conductor/pkg/routing"
)

// Executor runs one task attempt and returns its result.
type Executor interface {
	ExecuteTask(ctx context.Context, task TaskSnapshot) (any, error)
}

// BatchPreparer is implemented by executors that check a batch before any of
// its tasks run. An error fails every task of the batch.
type BatchPreparer interface {
	PrepareBatch(ctx context.Context, tasks []TaskSnapshot) error
}

// ProviderResolver is implemented by executors that can name the provider a
// task would be routed to. The queue keys rate limit admission by that name.
type ProviderResolver interface {
	ResolveProvider(task TaskSnapshot) string
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task TaskSnapshot) (any, error)

// ExecuteTask implements Executor.
func (f ExecutorFunc) ExecuteTask(ctx context.Context, task TaskSnapshot) (any, error) {
	return f(ctx, task)
}

// OrchestratorExecutor runs tasks through Orchestrator.Execute.
type OrchestratorExecutor struct {
	orch *orchestrator.Orchestrator
}

// NewOrchestratorExecutor creates an executor backed by orch.
func NewOrchestratorExecutor(orch *orchestrator.Orchestrator) *OrchestratorExecutor {
	return &OrchestratorExecutor{orch: orch}
}

// ExecuteTask implements Executor. The result is the *ai.Response.
func (e *OrchestratorExecutor) ExecuteTask(ctx context.Context, task TaskSnapshot) (any, error) {
	return e.orch.Execute(ctx, task.Request())
}

// ResolveProvider implements ProviderResolver.
func (e *OrchestratorExecutor) ResolveProvider(task TaskSnapshot) string {
	return e.orch.ResolveProvider(task.Request())
}

// PrepareBatch implements BatchPreparer. It fails the batch when no provider
// is selectable, so no task spends an attempt on a guaranteed failure.
func (e *OrchestratorExecutor) PrepareBatch(_ context.Context, tasks []TaskSnapshot) error {
	if len(tasks) == 0 {
		return nil
	}
	registry := e.orch.Registry()
	if len(registry.Candidates()) > 0 {
		return nil
	}

	snapshot := registry.Snapshot()
	names := make([]string, len(snapshot))
	for i, p := range snapshot {
		names[i] = p.Name
	}
	return &routing.NoProviderAvailableError{
		RequestType: tasks[0].Type.RequestType(),
		Registered:  names,
	}
}
