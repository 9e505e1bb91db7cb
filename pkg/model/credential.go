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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Credential is a stored secret usable by workflow nodes. Data is
// write-only on the n8n side and is redacted whenever logged or printed.
type Credential struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name" validate:"required"`
	Type        string              `json:"type" validate:"required"`
	Data        CredentialData      `json:"data,omitempty"`
	NodesAccess []map[string]string `json:"nodesAccess,omitempty"`
	CreatedAt   *time.Time          `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time          `json:"updatedAt,omitempty"`
}

// CredentialData holds secret fields. Its String and LogValue forms list
// only the field names.
type CredentialData map[string]Value

// String implements fmt.Stringer.
func (d CredentialData) String() string {
	if len(d) == 0 {
		return "{}"
	}
	return "{" + strings.Join(d.keys(), ":[REDACTED] ") + ":[REDACTED]}"
}

// LogValue implements slog.LogValuer.
func (d CredentialData) LogValue() slog.Value {
	return slog.StringValue(d.String())
}

// GoString keeps %#v from leaking secrets.
func (d CredentialData) GoString() string { return d.String() }

func (d CredentialData) keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.String("type", c.Type),
		slog.Any("data", c.Data),
	)
}

// String implements fmt.Stringer.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{id=%s name=%q type=%s data=%s}", c.ID, c.Name, c.Type, c.Data)
}

// Validate checks the required fields.
func (c *Credential) Validate() error {
	return validateStruct(c)
}

type credentialPayload struct {
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Data        map[string]Value    `json:"data,omitempty"`
	NodesAccess []map[string]string `json:"nodesAccess,omitempty"`
}

// CreatePayload returns the request body for creating or updating c.
func (c *Credential) CreatePayload() any {
	return credentialPayload{
		Name:        c.Name,
		Type:        c.Type,
		Data:        c.Data,
		NodesAccess: c.NodesAccess,
	}
}

// ParseCredential decodes and validates a credential document.
func ParseCredential(data []byte) (*Credential, error) {
	var c Credential
	if err := decode(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseCredentialList decodes a JSON array of credentials, validating each.
func ParseCredentialList(data []byte) ([]Credential, error) {
	var raw []json.RawMessage
	if err := decode(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(raw))
	for i, r := range raw {
		c, err := ParseCredential(r)
		if err != nil {
			return nil, prefixField(err, indexPath("", i))
		}
		out = append(out, *c)
	}
	return out, nil
}
