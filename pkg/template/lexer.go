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
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOutput
	tokenTag
)

type token struct {
	kind tokenKind
	val  string
	pos  int // byte offset of the token start in the source
}

// source maps byte offsets to line and column numbers.
type source struct {
	name  string
	text  string
	lines []int // byte offsets of line starts
}

func newSource(name, text string) *source {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &source{name: name, text: text, lines: lines}
}

// position returns the 1-based line and rune column of offset.
func (s *source) position(offset int) (int, int) {
	line := 0
	for line+1 < len(s.lines) && s.lines[line+1] <= offset {
		line++
	}
	col := utf8.RuneCountInString(s.text[s.lines[line]:offset]) + 1
	return line + 1, col
}

type syntaxError struct {
	pos int
	msg string
}

func (e *syntaxError) Error() string { return e.msg }

func errorf(pos int, format string, args ...any) *syntaxError {
	return &syntaxError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// lex splits text into text, output and tag tokens. Comments are dropped,
// raw blocks become text, and "-" markers trim the adjacent whitespace.
func lex(text string) ([]token, error) {
	var tokens []token
	trimNext := false
	i := 0

	emitText := func(s string, pos int) {
		if trimNext {
			trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
			pos += len(s) - len(trimmed)
			s = trimmed
			trimNext = false
		}
		if s != "" {
			tokens = append(tokens, token{kind: tokenText, val: s, pos: pos})
		}
	}
	trimPrev := func() {
		if n := len(tokens); n > 0 && tokens[n-1].kind == tokenText {
			tokens[n-1].val = strings.TrimRightFunc(tokens[n-1].val, unicode.IsSpace)
			if tokens[n-1].val == "" {
				tokens = tokens[:n-1]
			}
		}
	}

	for i < len(text) {
		open := indexOpen(text, i)
		if open < 0 {
			emitText(text[i:], i)
			break
		}
		emitText(text[i:open], i)

		var closeDelim string
		kind := tokenText
		switch text[open+1] {
		case '{':
			closeDelim, kind = "}}", tokenOutput
		case '%':
			closeDelim, kind = "%}", tokenTag
		case '#':
			closeDelim = "#}"
		}

		start := open + 2
		end := strings.Index(text[start:], closeDelim)
		if end < 0 {
			return nil, errorf(open, "unclosed %q", text[open:open+2])
		}
		end += start
		body := text[start:end]
		i = end + len(closeDelim)

		if strings.HasPrefix(body, "-") {
			body = body[1:]
			trimPrev()
		}
		trimAfter := false
		if strings.HasSuffix(body, "-") {
			body = body[:len(body)-1]
			trimAfter = true
		}
		trimNext = false

		switch kind {
		case tokenOutput:
			if strings.TrimSpace(body) == "" {
				return nil, errorf(open, "empty expression")
			}
			tokens = append(tokens, token{kind: tokenOutput, val: body, pos: open})
		case tokenTag:
			if strings.TrimSpace(body) == "raw" {
				rawEnd, next, trimRaw, trimAfterRaw, err := findEndRaw(text, i)
				if err != nil {
					return nil, errorf(open, "%s", err.Error())
				}
				raw := text[i:rawEnd]
				if trimAfter {
					raw = strings.TrimLeftFunc(raw, unicode.IsSpace)
				}
				if trimRaw {
					raw = strings.TrimRightFunc(raw, unicode.IsSpace)
				}
				if raw != "" {
					tokens = append(tokens, token{kind: tokenText, val: raw, pos: i})
				}
				i = next
				trimNext = trimAfterRaw
				continue
			}
			tokens = append(tokens, token{kind: tokenTag, val: body, pos: open})
		}
		trimNext = trimAfter
	}

	return tokens, nil
}

// indexOpen finds the next "{{", "{%" or "{#" at or after from.
func indexOpen(text string, from int) int {
	for i := from; i < len(text)-1; i++ {
		if text[i] != '{' {
			continue
		}
		switch text[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

// findEndRaw locates the {% endraw %} tag closing a raw block that starts
// at from. It returns the end of the raw content, the offset after the
// tag, and the tag's trim markers.
func findEndRaw(text string, from int) (rawEnd, next int, trimBefore, trimAfter bool, err error) {
	for i := from; ; {
		open := strings.Index(text[i:], "{%")
		if open < 0 {
			return 0, 0, false, false, fmt.Errorf("unclosed {%% raw %%} block")
		}
		open += i
		end := strings.Index(text[open+2:], "%}")
		if end < 0 {
			return 0, 0, false, false, fmt.Errorf("unclosed {%% raw %%} block")
		}
		end += open + 2
		body := text[open+2 : end]
		if strings.TrimSpace(strings.Trim(body, "-")) == "endraw" {
			return open, end + 2, strings.HasPrefix(body, "-"), strings.HasSuffix(body, "-"), nil
		}
		i = end + 2
	}
}
