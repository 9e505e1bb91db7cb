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
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
)

type node any

type textNode struct {
	text string
}

type outputNode struct {
	expr *expression
}

type ifBranch struct {
	cond *expression // nil for else
	body []node
}

type ifNode struct {
	branches []ifBranch
}

type forNode struct {
	key, value string // key is empty for single-variable loops
	iter       *expression
	sep        string
	body       []node
	elseBody   []node
}

type setNode struct {
	name string
	expr *expression
}

type includeNode struct {
	name string
	body []node
}

var (
	forPattern     = regexp.MustCompile(`^for\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?\s+in\s+(.+?)(?:\s+sep\s+("(?:[^"\\]|\\.)*"))?$`)
	setPattern     = regexp.MustCompile(`^set\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
	includePattern = regexp.MustCompile(`^include\s+("(?:[^"\\]|\\.)*")$`)
)

type templateParser struct {
	src    *source
	tokens []token
	pos    int

	loader    fs.FS
	including []string
}

// parseTemplate turns template text into a node tree. Includes are loaded
// and parsed eagerly so that a broken include fails before rendering.
func parseTemplate(name, text string, loader fs.FS, including []string) ([]node, error) {
	src := newSource(name, text)
	tokens, err := lex(text)
	if err != nil {
		return nil, src.wrap(err)
	}
	p := &templateParser{src: src, tokens: tokens, loader: loader, including: including}
	nodes, end, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, p.errorAt(end.pos, "unexpected {%% %s %%}", keyword(end.val))
	}
	return nodes, nil
}

// wrap converts a lexer or parser failure to a RenderError with position.
func (s *source) wrap(err error) error {
	var se *syntaxError
	if !errors.As(err, &se) {
		return err
	}
	line, col := s.position(se.pos)
	return &flowerrors.RenderError{
		Kind:     flowerrors.RenderSyntaxError,
		Template: s.name,
		Line:     line,
		Column:   col,
		Message:  se.msg,
	}
}

func (p *templateParser) errorAt(pos int, format string, args ...any) error {
	return p.src.wrap(errorf(pos, format, args...))
}

func keyword(tag string) string {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// parseBody consumes tokens until EOF or a tag whose keyword is in stop.
// The stop tag is returned unconsumed by the body and consumed from the
// stream.
func (p *templateParser) parseBody(stop ...string) ([]node, *token, error) {
	var nodes []node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++

		switch tok.kind {
		case tokenText:
			nodes = append(nodes, &textNode{text: tok.val})

		case tokenOutput:
			body := strings.TrimSpace(tok.val)
			if strings.HasPrefix(body, "$") {
				// n8n's own expression syntax passes through untouched.
				nodes = append(nodes, &textNode{text: "{{" + tok.val + "}}"})
				continue
			}
			e, err := compileExpression(body, p.src, tok.pos)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, &outputNode{expr: e})

		case tokenTag:
			tag := strings.TrimSpace(tok.val)
			kw := keyword(tag)
			if slices.Contains(stop, kw) {
				return nodes, &tok, nil
			}
			n, err := p.parseTag(tok, tag, kw)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil, nil
}

func (p *templateParser) parseTag(tok token, tag, kw string) (node, error) {
	switch kw {
	case "if":
		return p.parseIf(tok, tag)
	case "for":
		return p.parseFor(tok, tag)
	case "set":
		m := setPattern.FindStringSubmatch(tag)
		if m == nil {
			return nil, p.errorAt(tok.pos, "malformed set tag %q", tag)
		}
		e, err := compileExpression(m[2], p.src, tok.pos)
		if err != nil {
			return nil, err
		}
		return &setNode{name: m[1], expr: e}, nil
	case "include":
		return p.parseInclude(tok, tag)
	case "elif", "else", "endif", "endfor", "endraw":
		return nil, p.errorAt(tok.pos, "unexpected {%% %s %%}", kw)
	case "":
		return nil, p.errorAt(tok.pos, "empty tag")
	}
	return nil, p.errorAt(tok.pos, "unknown tag %q", kw)
}

func (p *templateParser) parseIf(tok token, tag string) (node, error) {
	n := &ifNode{}
	condSrc := strings.TrimSpace(strings.TrimPrefix(tag, "if"))
	condPos := tok.pos
	seenElse := false

	for {
		if !seenElse && condSrc == "" {
			return nil, p.errorAt(condPos, "missing condition")
		}
		var cond *expression
		if !seenElse {
			var err error
			if cond, err = compileExpression(condSrc, p.src, condPos); err != nil {
				return nil, err
			}
		}

		body, end, err := p.parseBody("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, p.errorAt(tok.pos, "unclosed {%% if %%}")
		}
		n.branches = append(n.branches, ifBranch{cond: cond, body: body})

		endTag := strings.TrimSpace(end.val)
		switch keyword(endTag) {
		case "endif":
			return n, nil
		case "else":
			if seenElse {
				return nil, p.errorAt(end.pos, "duplicate {%% else %%}")
			}
			seenElse = true
		case "elif":
			if seenElse {
				return nil, p.errorAt(end.pos, "{%% elif %%} after {%% else %%}")
			}
			condSrc = strings.TrimSpace(strings.TrimPrefix(endTag, "elif"))
			condPos = end.pos
		}
	}
}

func (p *templateParser) parseFor(tok token, tag string) (node, error) {
	m := forPattern.FindStringSubmatch(tag)
	if m == nil {
		return nil, p.errorAt(tok.pos, "malformed for tag %q", tag)
	}
	n := &forNode{value: m[1]}
	if m[2] != "" {
		n.key, n.value = m[1], m[2]
	}
	if m[4] != "" {
		sep, err := strconv.Unquote(m[4])
		if err != nil {
			return nil, p.errorAt(tok.pos, "invalid separator %s", m[4])
		}
		n.sep = sep
	}

	iter, err := compileExpression(m[3], p.src, tok.pos)
	if err != nil {
		return nil, err
	}
	n.iter = iter

	body, end, err := p.parseBody("else", "endfor")
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, p.errorAt(tok.pos, "unclosed {%% for %%}")
	}
	n.body = body

	if keyword(end.val) == "else" {
		elseBody, end, err := p.parseBody("endfor")
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, p.errorAt(tok.pos, "unclosed {%% for %%}")
		}
		n.elseBody = elseBody
	}
	return n, nil
}

func (p *templateParser) parseInclude(tok token, tag string) (node, error) {
	m := includePattern.FindStringSubmatch(tag)
	if m == nil {
		return nil, p.errorAt(tok.pos, "malformed include tag %q", tag)
	}
	name, err := strconv.Unquote(m[1])
	if err != nil {
		return nil, p.errorAt(tok.pos, "invalid include name %s", m[1])
	}

	line, col := p.src.position(tok.pos)
	includeErr := func(msg string, cause error) error {
		return &flowerrors.RenderError{
			Kind:     flowerrors.RenderIncludeError,
			Template: p.src.name,
			Name:     name,
			Line:     line,
			Column:   col,
			Message:  msg,
			Cause:    cause,
		}
	}

	if p.loader == nil {
		return nil, includeErr(fmt.Sprintf("cannot include %q: no template loader configured", name), nil)
	}
	if slices.Contains(p.including, name) {
		chain := strings.Join(append(slices.Clone(p.including), name), " -> ")
		return nil, includeErr("include cycle: "+chain, nil)
	}

	data, err := fs.ReadFile(p.loader, name)
	if err != nil {
		return nil, includeErr(fmt.Sprintf("cannot include %q: %v", name, err), err)
	}

	including := append(slices.Clone(p.including), name)
	body, err := parseTemplate(name, string(data), p.loader, including)
	if err != nil {
		return nil, err
	}
	return &includeNode{name: name, body: body}, nil
}
