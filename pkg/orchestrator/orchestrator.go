package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/cache"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/limits/ratelimit"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/routing"
	"smartcrm-hq/conductor/pkg/telemetry/logging"
	"smartcrm-hq/conductor/pkg/telemetry/metrics"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// DefaultConfidence is reported when a provider does not return a confidence.
const DefaultConfidence = 0.8

// Orchestrator executes AI requests against the best available provider,
// with a read-through response cache and a priority-ordered submit loop.
type Orchestrator struct {
	config    config.OrchestratorConfig
	selector  *routing.Selector
	transport providers.Transport

	cache     cache.Cache
	limiter   ratelimit.Checker
	limitRule ratelimit.Rule
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
	now       func() time.Time

	history *history
	results *lru.Cache[string, *Outcome]

	// submit loop state
	mu      sync.Mutex
	pending pendingQueue
	seq     uint64
	running bool
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the read-through response cache.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRateLimiter enables admission checks in the submit loop.
func WithRateLimiter(l ratelimit.Checker, rule ratelimit.Rule) Option {
	return func(o *Orchestrator) {
		o.limiter = l
		o.limitRule = rule
	}
}

// WithMetrics records request, cache and provider metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithTracer records spans for executed requests.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. A nil cfg uses the configuration defaults.
func New(cfg *config.OrchestratorConfig, selector *routing.Selector, transport providers.Transport, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = &config.Default().Orchestrator
	}

	o := &Orchestrator{
		config:    *cfg,
		selector:  selector,
		transport: transport,
		logger:    slog.Default(),
		now:       time.Now,
		history:   newHistory(cfg.HistorySize),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")

	size := cfg.ResultStoreSize
	if size < 1 {
		size = config.DefaultResultStoreSize
	}
	results, err := lru.New[string, *Outcome](size)
	if err != nil {
		return nil, err
	}
	o.results = results

	return o, nil
}

// Registry returns the provider registry used for selection.
func (o *Orchestrator) Registry() *routing.Registry {
	return o.selector.Registry()
}

// ResolveProvider returns the name of the provider that would serve req now,
// or the request's provider preference when none is selectable.
func (o *Orchestrator) ResolveProvider(req *ai.Request) string {
	if p, err := o.selector.Resolve(req); err == nil {
		return p.Name
	}
	return req.Options.ProviderPreference()
}

// Execute runs req synchronously and returns its response.
//
// Returns routing.ErrNoProviderAvailable when no provider can serve the
// request and *ProviderCallFailedError when the provider call fails. Neither
// is retried. Cache failures are logged and never fail the request.
func (o *Orchestrator) Execute(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		clone := *req
		clone.ID = uuid.NewString()
		req = &clone
	}

	ctx = logging.WithRequestID(ctx, req.ID)
	ctx = logging.WithRequestType(ctx, string(req.Type))
	ctx, span := o.tracer.Start(ctx, "orchestrator.execute")
	defer span.End()
	tracing.SetRequestAttributes(span, req.ID, string(req.Type), string(req.EffectivePriority()))

	start := o.now()
	useCache := o.cache != nil && req.Options.CacheEnabled()

	var key string
	if useCache {
		var err error
		if key, err = CacheKey(req); err != nil {
			o.logger.WarnContext(ctx, "Request not cacheable", "error", err)
			useCache = false
		}
	}

	if useCache {
		if resp, ok := o.lookup(ctx, key, req); ok {
			tracing.SetCacheAttributes(span, true, CacheNamespace)
			o.record(req, resp.Metadata.Provider, o.now().Sub(start), true, false)
			o.metrics.RecordRequest(string(req.Type), "cache", "cached", o.now().Sub(start))
			return resp, nil
		}
		tracing.SetCacheAttributes(span, false, CacheNamespace)
	}

	selected := o.now()
	provider, err := o.selector.SelectProvider(req)
	if err != nil {
		o.logger.WarnContext(ctx, "No provider available", "error", err)
		tracing.SetError(span, err)
		o.record(req, "", o.now().Sub(start), false, true)
		o.metrics.RecordRequest(string(req.Type), "none", "no_provider", o.now().Sub(start))
		return nil, err
	}
	ctx = logging.WithProvider(ctx, provider.Name)

	result, err := o.invoke(ctx, provider, req)
	elapsed := o.now().Sub(selected)

	if err != nil {
		o.recordOutcome(ctx, provider.Name, elapsed, false)
		o.metrics.RecordProviderError(provider.Name, providers.Classify(err))
		o.metrics.RecordRequest(string(req.Type), provider.Name, "error", elapsed)
		o.record(req, provider.Name, elapsed, false, true)
		o.logger.ErrorContext(ctx, "Provider call failed",
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
		callErr := &ProviderCallFailedError{Provider: provider.Name, RequestType: req.Type, Cause: err}
		tracing.SetError(span, callErr)
		return nil, callErr
	}

	resp := o.buildResponse(req, provider, result, elapsed)

	if useCache {
		o.store(ctx, key, req, resp)
	}

	o.recordOutcome(ctx, provider.Name, elapsed, true)
	o.metrics.RecordRequest(string(req.Type), provider.Name, "success", elapsed)
	o.record(req, provider.Name, elapsed, false, false)

	o.logger.DebugContext(ctx, "Request executed",
		"model", resp.Metadata.Model,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// invoke calls the transport under the request's timeout.
func (o *Orchestrator) invoke(ctx context.Context, provider routing.Provider, req *ai.Request) (*providers.Result, error) {
	ctx, span := o.tracer.Start(ctx, "provider.invoke")
	defer span.End()
	tracing.SetProviderAttributes(span, provider.Name, provider.Model)

	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.transport.Invoke(ctx, &providers.Call{
		Provider: provider.Name,
		Model:    provider.Model,
		Endpoint: providers.EndpointFor(req.Type),
		Payload:  req.Data,
		Context:  req.Context,
		Timeout:  timeout,
	})
	if err != nil {
		tracing.SetErrorAttributes(span, err, providers.Classify(err))
		tracing.SetError(span, err)
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) buildResponse(req *ai.Request, provider routing.Provider, result *providers.Result, elapsed time.Duration) *ai.Response {
	model := result.Model
	if model == "" {
		model = provider.Model
	}

	confidence := DefaultConfidence
	if result.Confidence != nil {
		confidence = *result.Confidence
	}

	cost := result.Cost
	if cost == nil && result.Units > 0 && provider.Performance.CostPer1K > 0 {
		estimate := float64(result.Units) / 1000 * provider.Performance.CostPer1K
		cost = &estimate
	}

	return &ai.Response{
		ID:     req.ID,
		Type:   req.Type,
		Result: result.Data,
		Metadata: ai.Metadata{
			Provider:       provider.Name,
			Model:          model,
			ProcessingTime: elapsed,
			Confidence:     confidence,
			Cached:         false,
			Timestamp:      o.now(),
			Cost:           cost,
		},
	}
}

// lookup returns a cached response for key, re-addressed to req.
func (o *Orchestrator) lookup(ctx context.Context, key string, req *ai.Request) (*ai.Response, bool) {
	data, ok, err := o.cache.Get(ctx, CacheNamespace, key)
	if err != nil {
		o.logger.WarnContext(ctx, "Cache read failed, treating as miss", "error", err)
		o.metrics.RecordCacheLookup(CacheNamespace, metrics.CacheError)
		return nil, false
	}
	if !ok {
		o.metrics.RecordCacheLookup(CacheNamespace, metrics.CacheMiss)
		return nil, false
	}

	var cached ai.Response
	if err := json.Unmarshal(data, &cached); err != nil {
		o.logger.WarnContext(ctx, "Cached response unreadable, treating as miss", "error", err)
		o.metrics.RecordCacheLookup(CacheNamespace, metrics.CacheError)
		return nil, false
	}

	o.metrics.RecordCacheLookup(CacheNamespace, metrics.CacheHit)
	resp := cached.Clone()
	resp.ID = req.ID
	resp.Metadata.Cached = true
	return resp, true
}

func (o *Orchestrator) store(ctx context.Context, key string, req *ai.Request, resp *ai.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		o.logger.WarnContext(ctx, "Response not cacheable", "error", err)
		return
	}
	tags := []string{CacheTag, string(req.Type)}
	if err := o.cache.Set(ctx, CacheNamespace, key, data, CacheTTL(req.Type), tags); err != nil {
		o.logger.WarnContext(ctx, "Cache write failed", "error", err)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, provider string, d time.Duration, success bool) {
	if err := o.selector.Registry().RecordOutcome(provider, d, success); err != nil {
		o.logger.WarnContext(ctx, "Failed to record provider outcome", "error", err)
	}
}

func (o *Orchestrator) record(req *ai.Request, provider string, d time.Duration, cached, failed bool) {
	o.history.add(historyEntry{
		RequestID:      req.ID,
		Type:           req.Type,
		Provider:       provider,
		ProcessingTime: d,
		Cached:         cached,
		Failed:         failed,
		Timestamp:      o.now(),
	})
}

// InvalidateCache removes cached responses of request type t, or every
// cached response when t is empty. It returns the number of entries removed.
func (o *Orchestrator) InvalidateCache(ctx context.Context, t ai.RequestType) (int, error) {
	if o.cache == nil {
		return 0, nil
	}
	tag := CacheTag
	if t != "" {
		tag = string(t)
	}
	n, err := o.cache.DeleteByTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	o.metrics.RecordCacheInvalidation(tag, n)
	o.logger.InfoContext(ctx, "Cache invalidated", "tag", tag, "removed", n)
	return n, nil
}

// GetPerformanceMetrics aggregates the request history and includes a
// snapshot of the provider registry.
func (o *Orchestrator) GetPerformanceMetrics() PerformanceMetrics {
	m := aggregate(o.history.snapshot(), o.now())
	m.PendingRequests = o.PendingCount()
	m.Providers = o.selector.Registry().Snapshot()
	return m
}
