package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/taskqueue"
	"smartcrm-hq/conductor/pkg/telemetry/logging"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

const (
	consumerTag    = "conductor-intake"
	publishTimeout = 5 * time.Second
)

// TaskAdder is the subset of *taskqueue.Queue the intake needs.
type TaskAdder interface {
	AddTask(spec taskqueue.TaskSpec) (string, error)
}

// publisher is the subset of *amqp.Channel used for result events.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Intake consumes task messages from RabbitMQ, enqueues them and publishes
// a result event for every task that becomes terminal.
type Intake struct {
	cfg    config.IntakeConfig
	queue  TaskAdder
	tracer *tracing.Tracer
	logger *slog.Logger
	now    func() time.Time
	dial   func(url string) (*amqp.Connection, error)

	mu   sync.RWMutex
	conn *amqp.Connection
	pub  publisher

	// pubMu serializes publishes on the shared channel.
	pubMu sync.Mutex
}

// Option configures an Intake.
type Option func(*Intake)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(in *Intake) { in.logger = l }
}

// WithTracer records a span per delivery and propagates trace context to
// result events.
func WithTracer(t *tracing.Tracer) Option {
	return func(in *Intake) { in.tracer = t }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(in *Intake) { in.now = now }
}

// New creates an intake that feeds queue. It does not connect until Run.
func New(cfg *config.IntakeConfig, queue TaskAdder, opts ...Option) (*Intake, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("intake broker URL cannot be empty")
	}
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("intake task queue cannot be empty")
	}
	if queue == nil {
		return nil, fmt.Errorf("intake requires a task queue")
	}

	in := &Intake{
		cfg:    *cfg,
		queue:  queue,
		logger: slog.Default(),
		now:    time.Now,
		dial:   amqp.Dial,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With("component", "intake")
	return in, nil
}

// Run consumes until ctx is cancelled, reconnecting after ReconnectDelay
// whenever the broker connection fails or drops.
func (in *Intake) Run(ctx context.Context) error {
	for {
		err := in.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		in.logger.Warn("Intake connection lost, reconnecting",
			"error", err,
			"delay", in.cfg.ReconnectDelay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(in.cfg.ReconnectDelay):
		}
	}
}

func (in *Intake) session(ctx context.Context) error {
	conn, err := in.dial(in.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if in.cfg.Prefetch > 0 {
		if err := ch.Qos(in.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	for _, name := range []string{in.cfg.TaskQueue, in.cfg.ResultQueue} {
		if name == "" {
			continue
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	deliveries, err := ch.Consume(in.cfg.TaskQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", in.cfg.TaskQueue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	in.setSession(conn, ch)
	defer in.setSession(nil, nil)
	in.logger.Info("Intake connected",
		"task_queue", in.cfg.TaskQueue,
		"result_queue", in.cfg.ResultQueue,
		"prefetch", in.cfg.Prefetch,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("connection closed")
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			in.handle(ctx, d)
		}
	}
}

func (in *Intake) setSession(conn *amqp.Connection, pub *amqp.Channel) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.conn = conn
	if pub == nil {
		in.pub = nil
		return
	}
	in.pub = pub
}

// handle enqueues one delivery. Malformed or invalid tasks are rejected
// without requeue so the broker can dead-letter them.
func (in *Intake) handle(ctx context.Context, d amqp.Delivery) {
	ctx = tracing.ExtractFromMap(ctx, headerCarrier(d.Headers))
	ctx, span := in.tracer.Start(ctx, "intake.deliver")
	defer span.End()

	spec, err := DecodeTask(d.Body)
	if err != nil {
		in.logger.WarnContext(ctx, "Rejecting malformed task message", "error", err)
		tracing.SetError(span, err)
		in.settle(ctx, d.Reject(false))
		return
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	ctx = logging.WithTaskID(ctx, spec.ID)
	spec.Callbacks = in.callbacks(context.WithoutCancel(ctx), spec.ID, spec.Type)

	if _, err := in.queue.AddTask(spec); err != nil {
		tracing.SetError(span, err)
		var verr *taskqueue.ValidationError
		if errors.As(err, &verr) {
			in.logger.WarnContext(ctx, "Rejecting invalid task", "error", err)
			in.settle(ctx, d.Reject(false))
			return
		}
		in.logger.ErrorContext(ctx, "Failed to enqueue task, requeueing", "error", err)
		in.settle(ctx, d.Nack(false, true))
		return
	}

	in.logger.DebugContext(ctx, "Task received", "task_type", spec.Type)
	in.settle(ctx, d.Ack(false))
}

func (in *Intake) settle(ctx context.Context, err error) {
	if err != nil {
		in.logger.WarnContext(ctx, "Failed to settle delivery", "error", err)
	}
}

func (in *Intake) callbacks(ctx context.Context, id string, taskType taskqueue.TaskType) taskqueue.Callbacks {
	return taskqueue.Callbacks{
		OnComplete: func(result any) {
			in.publish(ctx, Event{
				Event:      EventTaskCompleted,
				TaskID:     id,
				Type:       taskType,
				Result:     result,
				OccurredAt: in.now(),
			})
		},
		OnError: func(err error) {
			in.publish(ctx, Event{
				Event:      EventTaskFailed,
				TaskID:     id,
				Type:       taskType,
				Error:      err.Error(),
				OccurredAt: in.now(),
			})
		},
	}
}

// publish sends ev to the result queue. Events are dropped, with a warning,
// while disconnected.
func (in *Intake) publish(ctx context.Context, ev Event) {
	if in.cfg.ResultQueue == "" {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		in.logger.ErrorContext(ctx, "Failed to encode result event", "error", err, "event", ev.Event)
		return
	}

	carrier := map[string]string{}
	tracing.InjectToMap(ctx, carrier)
	headers := amqp.Table{}
	for k, v := range carrier {
		headers[k] = v
	}

	in.mu.RLock()
	pub := in.pub
	in.mu.RUnlock()
	if pub == nil {
		in.logger.WarnContext(ctx, "Dropping result event, intake not connected", "event", ev.Event)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	in.pubMu.Lock()
	err = pub.PublishWithContext(ctx, "", in.cfg.ResultQueue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.TaskID,
		Type:         ev.Event,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	in.pubMu.Unlock()
	if err != nil {
		in.logger.ErrorContext(ctx, "Failed to publish result event", "error", err, "event", ev.Event)
	}
}

// IsOpen reports whether a broker connection is open.
func (in *Intake) IsOpen() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.conn != nil && !in.conn.IsClosed()
}

// Ping implements health.Pinger.
func (in *Intake) Ping(context.Context) error {
	if !in.IsOpen() {
		return ErrNotConnected
	}
	return nil
}

// headerCarrier converts string-valued AMQP headers for trace extraction.
func headerCarrier(headers amqp.Table) map[string]string {
	carrier := make(map[string]string, len(headers))
	for k, v := range headers {
		switch s := v.(type) {
		case string:
			carrier[k] = s
		case []byte:
			carrier[k] = string(s)
		}
	}
	return carrier
}
