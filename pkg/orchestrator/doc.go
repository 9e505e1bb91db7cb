// Package orchestrator runs n8n workflows to completion.
//
// RunAndWait triggers a workflow exactly once, then polls its execution
// until a terminal status, the timeout, or cancellation:
//
//	Triggering -> Polling -> Succeeded | Failed | TimedOut
//	Triggering -> TriggerFailed
//	(any wait)  -> Canceled
//
// A poll that fails after the transport's own retries is a skipped tick,
// not an error. Waits between polls select on the context, so cancellation
// is observed within one poll interval.
package orchestrator
