// Package model defines the n8n entities (workflows, executions and
// credentials) and the parse/validate layer that guards them.
//
// Parse functions never return a partially valid entity: either the whole
// document satisfies the rules or a *errors.ValidationError names the
// offending field path and rule.
package model
