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

package model

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			switch fl.Field().Kind() {
			case reflect.Float32, reflect.Float64:
				f := fl.Field().Float()
				return !math.IsNaN(f) && !math.IsInf(f, 0)
			}
			return true
		})
		validate = v
	})
	return validate
}

// Validate checks w against the workflow rules: required fields, unique
// node names, resolvable connections and finite, non-negative numbers.
func (w *Workflow) Validate() error {
	if err := validateStruct(w); err != nil {
		return err
	}

	seen := make(map[string]int, len(w.Nodes))
	for i, n := range w.Nodes {
		if first, dup := seen[n.Name]; dup {
			return &flowerrors.ValidationError{
				Field:      fmt.Sprintf("nodes[%d].name", i),
				Rule:       "unique",
				Message:    fmt.Sprintf("duplicate node name %q (first used by nodes[%d])", n.Name, first),
				Suggestion: "Node names must be unique within a workflow",
			}
		}
		seen[n.Name] = i
	}

	sources := make([]string, 0, len(w.Connections))
	for src := range w.Connections {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		if _, ok := seen[src]; !ok {
			return &flowerrors.ValidationError{
				Field:   "connections." + src,
				Rule:    "node_exists",
				Message: fmt.Sprintf("connection source %q is not a node in this workflow", src),
			}
		}

		ports := w.Connections[src]
		portTypes := make([]string, 0, len(ports))
		for pt := range ports {
			portTypes = append(portTypes, pt)
		}
		sort.Strings(portTypes)

		for _, pt := range portTypes {
			for i, outputs := range ports[pt] {
				for j, target := range outputs {
					path := fmt.Sprintf("connections.%s.%s[%d][%d]", src, pt, i, j)
					if _, ok := seen[target.Node]; !ok {
						return &flowerrors.ValidationError{
							Field:   path + ".node",
							Rule:    "node_exists",
							Message: fmt.Sprintf("connection target %q is not a node in this workflow", target.Node),
						}
					}
					if target.Index < 0 {
						return &flowerrors.ValidationError{
							Field:   path + ".index",
							Rule:    "gte",
							Message: fmt.Sprintf("input index must be >= 0, got %d", target.Index),
						}
					}
				}
			}
		}
	}

	if v, ok := w.Settings["executionTimeout"]; ok && !v.IsNull() {
		f, isNum := v.AsFloat()
		if !isNum || math.IsNaN(f) || math.IsInf(f, 0) || (f < 0 && f != -1) {
			return &flowerrors.ValidationError{
				Field:   "settings.executionTimeout",
				Rule:    "timeout",
				Message: fmt.Sprintf("must be a number of seconds >= 0 or -1, got %s", v),
			}
		}
	}

	return nil
}

func validateStruct(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return &flowerrors.ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	return &flowerrors.ValidationError{
		Field:   fieldPath(fe.Namespace()),
		Rule:    fe.Tag(),
		Message: ruleMessage(fe),
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must have exactly %s elements", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "finite":
		return "must be a finite number"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	}
	return fmt.Sprintf("failed %q rule", fe.Tag())
}

// decode unmarshals data into dst, reporting syntax and type problems as
// validation errors.
func decode(data []byte, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &flowerrors.ValidationError{Rule: "json", Message: "empty document"}
	}

	err := json.Unmarshal(data, dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return &flowerrors.ValidationError{
			Rule:    "json",
			Message: fmt.Sprintf("invalid JSON at offset %d: %v", syntaxErr.Offset, syntaxErr),
		}
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return &flowerrors.ValidationError{
			Field:   typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
		}
	}

	var verr *flowerrors.ValidationError
	if stderrors.As(err, &verr) {
		return verr
	}

	return &flowerrors.ValidationError{Rule: "json", Message: err.Error()}
}

func indexPath(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

// prefixField qualifies the field path of a validation error.
func prefixField(err error, prefix string) error {
	var verr *flowerrors.ValidationError
	if !stderrors.As(err, &verr) {
		return err
	}
	out := *verr
	switch {
	case out.Field == "":
		out.Field = prefix
	case strings.HasPrefix(out.Field, "["):
		out.Field = prefix + out.Field
	default:
		out.Field = prefix + "." + out.Field
	}
	return &out
}
