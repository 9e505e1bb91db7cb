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

package shared

import (
	"errors"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// Error codes for structured JSON output
const (
	// Input errors (E001-E099)
	ErrorCodeValidation = "E001" // Workflow or entity failed validation
	ErrorCodeRender     = "E002" // Template failed to render
	ErrorCodeInvalidArg = "E003" // Invalid command argument

	// Execution errors (E100-E199)
	ErrorCodeTransport       = "E101" // API call failed
	ErrorCodeTriggerFailed   = "E102" // Workflow could not be started
	ErrorCodeTimeout         = "E103" // Execution did not finish in time
	ErrorCodeExecutionFailed = "E104" // Execution finished unsuccessfully
	ErrorCodeCanceled        = "E105" // Wait was interrupted

	// Configuration errors (E200-E299)
	ErrorCodeConfig = "E201"

	// Resource errors (E400-E499)
	ErrorCodeNotFound = "E401"
	ErrorCodeInternal = "E402"
)

// ErrorCodeFor maps an error to its JSON error code.
func ErrorCodeFor(err error) string {
	var (
		nf         *flowerrors.NotFoundError
		cfg        *flowerrors.ConfigError
		render     *flowerrors.RenderError
		valid      *flowerrors.ValidationError
		transport  *flowerrors.TransportError
		triggerErr *orchestrator.TriggerError
		timeoutErr *orchestrator.TimeoutError
	)
	switch {
	case errors.As(err, &triggerErr):
		return ErrorCodeTriggerFailed
	case errors.As(err, &timeoutErr):
		return ErrorCodeTimeout
	case errors.As(err, &nf):
		return ErrorCodeNotFound
	case errors.As(err, &cfg):
		return ErrorCodeConfig
	case errors.As(err, &render):
		return ErrorCodeRender
	case errors.As(err, &valid):
		return ErrorCodeValidation
	case errors.As(err, &transport):
		return ErrorCodeTransport
	}

	switch ExitCodeFor(err) {
	case ExitCanceled:
		return ErrorCodeCanceled
	case ExitExecutionFailed:
		return ErrorCodeExecutionFailed
	case ExitInvalidWorkflow:
		return ErrorCodeValidation
	}
	return ErrorCodeInternal
}
