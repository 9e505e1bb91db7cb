// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports an entity that does not satisfy the workflow,
// execution, or credential rules. It is never retried.
type ValidationError struct {
	// Field is the JSON path of the offending value (e.g. "nodes[2].name").
	Field string

	// Rule names the violated rule (e.g. "required", "unique", "node_exists").
	Rule string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// RenderErrorKind classifies template rendering failures.
type RenderErrorKind string

const (
	// RenderUndefinedVariable means a referenced variable had no value and no default.
	RenderUndefinedVariable RenderErrorKind = "undefined_variable"

	// RenderSyntaxError means the template text could not be parsed.
	RenderSyntaxError RenderErrorKind = "syntax_error"

	// RenderEvaluationError means an expression failed at evaluation time.
	RenderEvaluationError RenderErrorKind = "evaluation_error"

	// RenderIncludeError means an included template could not be loaded.
	RenderIncludeError RenderErrorKind = "include_error"
)

// RenderError reports a template that could not be turned into text.
type RenderError struct {
	Kind RenderErrorKind

	// Template is the template name, empty for inline text.
	Template string

	// Name is the undefined variable or the offending token.
	Name string

	Line   int
	Column int

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("render ")
	b.WriteString(string(e.Kind))
	if e.Template != "" {
		fmt.Fprintf(&b, " in %s", e.Template)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at %d:%d", e.Line, e.Column)
	}
	switch {
	case e.Kind == RenderUndefinedVariable:
		fmt.Fprintf(&b, ": variable %q is undefined", e.Name)
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *RenderError) ErrorType() string { return "render" }

// IsRetryable implements ErrorClassifier.
func (e *RenderError) IsRetryable() bool { return false }

// TransportError describes a failed call to the n8n API after the retry
// budget was spent or a non-transient failure was seen.
type TransportError struct {
	Method string
	Path   string

	// StatusCode is zero when no response was received.
	StatusCode int

	// Attempts counts every round trip issued, including the first.
	Attempts int

	// Body is the (truncated) response body of a non-2xx reply.
	Body string

	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.Path)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
		if detail := strings.TrimSpace(e.Body); detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
	} else if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable implements ErrorClassifier. Callers that already went
// through the retrying client should not retry again.
func (e *TransportError) IsRetryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode >= 500, e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	}
	return false
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "execution", "credential")
	Resource string

	// ID is the identifier that was not found
	ID string

	Cause error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "api_key", "base_url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	switch e.Key {
	case "api_key":
		return "Set N8N_API_KEY or run 'n8nctl config set-key'"
	case "base_url":
		return "Set N8N_BASE_URL or add base_url to the config file"
	}
	return ""
}
