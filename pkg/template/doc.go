// Package template renders parameterized workflow definitions.
//
// Templates mix literal text with three kinds of markup:
//
//	{{ expr }}            output an expr-lang expression
//	{% if %} / {% for %}  control flow, plus set, include and raw
//	{# comment #}         dropped from the output
//
// A variable that is referenced but not defined is an error, unless the
// reference is guarded by default() or the ?? operator:
//
//	{{ name | default("anonymous") }}
//	{{ retries ?? 3 }}
//
// Strings print raw; use json(v) to embed a value as a JSON literal.
// Output expressions starting with $ belong to n8n and are copied through
// unchanged, so {{ $json.id }} survives rendering.
//
// RenderWorkflow renders and then parses the result with model.ParseWorkflow.
package template
