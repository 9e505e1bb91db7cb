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

package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

// expression is a compiled {{ }} or tag expression.
type expression struct {
	src     string
	program *vm.Program

	// free lists top-level variable names the expression needs from the
	// scope. Names guarded by default() or ?? are left out.
	free []string

	tmpl string
	line int
	col  int
}

var exprOptions = []expr.Option{
	expr.Function("default", defaultFunc),
	expr.Function("json", jsonFunc),
}

// defaultFunc returns its first argument unless it is nil, in which case it
// returns the fallback (or "").
func defaultFunc(params ...any) (any, error) {
	switch len(params) {
	case 1:
		if params[0] == nil {
			return "", nil
		}
		return params[0], nil
	case 2:
		if params[0] == nil {
			return params[1], nil
		}
		return params[0], nil
	}
	return nil, fmt.Errorf("default() takes 1 or 2 arguments, got %d", len(params))
}

// jsonFunc encodes its argument as compact JSON, so strings can be embedded
// with quotes and escapes intact.
func jsonFunc(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("json() takes 1 argument, got %d", len(params))
	}
	return marshalCompact(params[0])
}

func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func compileExpression(src string, s *source, pos int) (*expression, error) {
	line, col := s.position(pos)
	e := &expression{src: src, tmpl: s.name, line: line, col: col}

	tree, err := parser.Parse(src)
	if err != nil {
		return nil, e.syntaxError(err)
	}
	e.free = freeIdentifiers(tree.Node)

	program, err := expr.Compile(src, exprOptions...)
	if err != nil {
		return nil, e.syntaxError(err)
	}
	e.program = program
	return e, nil
}

func (e *expression) syntaxError(err error) error {
	msg := err.Error()
	var ferr *file.Error
	if errors.As(err, &ferr) {
		msg = ferr.Message
	}
	return &flowerrors.RenderError{
		Kind:     flowerrors.RenderSyntaxError,
		Template: e.tmpl,
		Name:     e.src,
		Line:     e.line,
		Column:   e.col,
		Message:  fmt.Sprintf("invalid expression %q: %s", e.src, msg),
		Cause:    err,
	}
}

// eval runs the expression against the scope. A free variable missing from
// the scope is an undefined-variable error, never an empty string.
func (e *expression) eval(s *Scope) (any, error) {
	for _, name := range e.free {
		if !s.has(name) {
			return nil, &flowerrors.RenderError{
				Kind:     flowerrors.RenderUndefinedVariable,
				Template: e.tmpl,
				Name:     name,
				Line:     e.line,
				Column:   e.col,
			}
		}
	}

	out, err := expr.Run(e.program, s.vars)
	if err != nil {
		return nil, &flowerrors.RenderError{
			Kind:     flowerrors.RenderEvaluationError,
			Template: e.tmpl,
			Name:     e.src,
			Line:     e.line,
			Column:   e.col,
			Message:  fmt.Sprintf("evaluating %q: %v", e.src, err),
			Cause:    err,
		}
	}
	return out, nil
}

// identCollector gathers identifiers from an expression tree and the ones
// that do not need a value: function callees, let-bound names and
// arguments guarded by default() or ??.
type identCollector struct {
	all      []*ast.IdentifierNode
	excluded map[*ast.IdentifierNode]bool
	declared map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.all = append(c.all, n)
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return
		}
		c.excluded[callee] = true
		if callee.Value == "default" && len(n.Arguments) > 0 {
			if arg := guardedIdent(n.Arguments[0]); arg != nil {
				c.excluded[arg] = true
			}
		}
	case *ast.BinaryNode:
		if n.Operator == "??" {
			if left := guardedIdent(n.Left); left != nil {
				c.excluded[left] = true
			}
		}
	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

// guardedIdent returns the identifier a nil guard protects: a bare name or
// the root of an optional chain such as user?.name.
func guardedIdent(n ast.Node) *ast.IdentifierNode {
	switch n := n.(type) {
	case *ast.IdentifierNode:
		return n
	case *ast.ChainNode:
		for inner := n.Node; inner != nil; {
			switch m := inner.(type) {
			case *ast.MemberNode:
				inner = m.Node
			case *ast.IdentifierNode:
				return m
			default:
				return nil
			}
		}
	}
	return nil
}

func freeIdentifiers(root ast.Node) []string {
	c := &identCollector{
		excluded: map[*ast.IdentifierNode]bool{},
		declared: map[string]bool{},
	}
	ast.Walk(&root, c)

	seen := map[string]bool{}
	var free []string
	for _, id := range c.all {
		name := id.Value
		if c.excluded[id] || c.declared[name] || seen[name] || name == "$env" {
			continue
		}
		seen[name] = true
		free = append(free, name)
	}
	return free
}
