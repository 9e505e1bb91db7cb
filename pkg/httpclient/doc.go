// Package httpclient builds the pooled HTTP client used to talk to the n8n
// API.
//
// The client composes round-tripper layers, outermost first:
//   - retry with exponential backoff and jitter
//   - optional client-side rate limiting
//   - logging with sanitized URLs, User-Agent and correlation ID injection
//
// # Retry Behavior
//
// Transient conditions are HTTP 5xx, 408, 429 and network errors.
// Idempotent methods (GET, HEAD, OPTIONS, PUT, DELETE) are retried on all
// of them. POST and PATCH are retried only when the request provably never
// reached the server: dial failures and 429 responses. A POST that timed
// out or drew a 5xx may already have created a resource, so it is returned
// to the caller as is.
//
// Request bodies are replayed through Request.GetBody, which
// http.NewRequest sets for in-memory readers.
//
// # Attempt accounting
//
// Callers that need the number of round trips issued attach a counter:
//
//	ctx, attempts := httpclient.WithAttemptCounter(ctx)
//	resp, err := client.Do(req.WithContext(ctx))
//	fmt.Println(attempts.Load())
//
// # Security
//
// Sensitive query parameters are redacted from logs. Request headers,
// including X-N8N-API-KEY, are never logged.
package httpclient
