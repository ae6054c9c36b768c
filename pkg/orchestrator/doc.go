// Package orchestrator executes AI requests for the CRM.
//
// # Execution
//
// Execute runs one request synchronously:
//
//  1. validate the request and assign an id when missing
//  2. consult the response cache unless the request disables it
//  3. select a provider through routing.Selector
//  4. invoke the provider transport under the request timeout
//  5. record the outcome in the provider registry, metrics and history
//  6. cache the response under the request type's TTL
//
// Failures are returned to the caller and never retried here. The task
// queue owns retries.
//
// # Submit Loop
//
// SubmitRequest queues a request and returns its id immediately. Start runs
// a loop that executes queued requests one at a time, highest priority
// first, after an optional rate limit admission check scoped to the provider
// ResolveProvider names. Outcomes are kept in
// a bounded LRU store and read back with GetResult:
//
//	id, err := orch.SubmitRequest(req)
//	...
//	if out, ok := orch.GetResult(id); ok && out.Status == orchestrator.StatusCompleted {
//	    use(out.Response)
//	}
//
// # Cache Keys
//
// CacheKey hashes the request type, the JSON encoding of its data and its
// provider preference. Every cached response carries the "ai" tag and its
// request type as a tag, which InvalidateCache uses.
package orchestrator
