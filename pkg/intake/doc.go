// Package intake feeds the task queue from RabbitMQ.
//
// Each delivery on the task queue is a JSON TaskMessage:
//
//	{"id": "t-1", "type": "scoring", "priority": "high",
//	 "data": {"contact_id": "c-9"}, "options": {"timeout_ms": 5000}}
//
// Valid messages are enqueued and acknowledged. Malformed messages and tasks
// the queue refuses are rejected without requeue. When a task completes or
// fails, an Event named task.completed or task.failed is published to the
// result queue, carrying the W3C trace context of the originating delivery
// in its headers.
//
// Run reconnects after ReconnectDelay whenever the broker connection drops.
// Ping reports ErrNotConnected while no connection is open and is registered
// as the "intake" readiness check.
package intake
