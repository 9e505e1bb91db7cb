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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// Option configures parsing and rendering.
type Option func(*options)

type options struct {
	name     string
	defaults map[string]any
	loader   fs.FS
}

// WithName sets the template name reported in errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDefaults supplies values used when the caller's variables do not
// define a name.
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) { o.defaults = defaults }
}

// WithLoader sets the file system that {% include %} tags read from.
func WithLoader(loader fs.FS) Option {
	return func(o *options) { o.loader = loader }
}

// Template is a parsed template. It is safe for concurrent use.
type Template struct {
	name     string
	nodes    []node
	defaults map[string]any
}

// Parse parses template text. Syntax errors and include failures are
// reported here, before any variables are bound.
func Parse(text string, opts ...Option) (*Template, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var including []string
	if o.name != "" {
		including = []string{o.name}
	}
	nodes, err := parseTemplate(o.name, text, o.loader, including)
	if err != nil {
		return nil, err
	}
	return &Template{name: o.name, nodes: nodes, defaults: o.defaults}, nil
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Execute renders the template with vars. The vars map is not modified.
func (t *Template) Execute(vars map[string]any) (string, error) {
	var b strings.Builder
	if err := execute(&b, t.nodes, NewScope(vars, t.defaults)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Render parses and executes text in one step.
func Render(text string, vars map[string]any, opts ...Option) (string, error) {
	t, err := Parse(text, opts...)
	if err != nil {
		return "", err
	}
	return t.Execute(vars)
}

// RenderWorkflow renders text and parses the result as a workflow. The
// workflow parser only runs when rendering succeeded.
func RenderWorkflow(text string, vars map[string]any, opts ...Option) (*model.Workflow, error) {
	rendered, err := Render(text, vars, opts...)
	if err != nil {
		return nil, err
	}
	return model.ParseWorkflow([]byte(rendered))
}

// LoadWorkflowFile reads a workflow file. With no variables the file is
// parsed as plain JSON; otherwise it is rendered first, with includes
// resolved relative to the file's directory.
func LoadWorkflowFile(path string, vars map[string]any, opts ...Option) (*model.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	if len(vars) == 0 && len(opts) == 0 {
		return model.ParseWorkflow(data)
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	opts = append([]Option{WithName(name), WithLoader(os.DirFS(dir))}, opts...)
	return RenderWorkflow(string(data), vars, opts...)
}

// LoadWorkflowFromDir renders the named template from a template
// directory. Includes resolve against the same directory.
func LoadWorkflowFromDir(dir, name string, vars map[string]any, opts ...Option) (*model.Workflow, error) {
	loader := os.DirFS(dir)
	data, err := fs.ReadFile(loader, name)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	opts = append([]Option{WithName(name), WithLoader(loader)}, opts...)
	return RenderWorkflow(string(data), vars, opts...)
}
