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
	"time"
)

// Workflow is an n8n workflow: a named graph of nodes and connections.
type Workflow struct {
	// ID is assigned by n8n and empty until the workflow is created.
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name" validate:"required"`
	Active      bool             `json:"active"`
	Nodes       []Node           `json:"nodes" validate:"required,dive"`
	Connections Connections      `json:"connections"`
	Settings    map[string]Value `json:"settings"`
	StaticData  *Value           `json:"staticData,omitempty"`
	PinData     *Value           `json:"pinData,omitempty"`
	Meta        *Value           `json:"meta,omitempty"`
	Tags        []Tag            `json:"tags,omitempty"`
	VersionID   string           `json:"versionId,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
}

// Node is a single step of a workflow. Parameters are transported as is.
type Node struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name" validate:"required"`
	Type        string           `json:"type" validate:"required"`
	TypeVersion *float64         `json:"typeVersion,omitempty" validate:"omitempty,finite,gte=0"`
	Position    []float64        `json:"position" validate:"len=2,dive,finite"`
	Parameters  map[string]Value `json:"parameters"`
	Credentials map[string]Value `json:"credentials,omitempty"`
	Disabled    bool             `json:"disabled,omitempty"`
	WebhookID   string           `json:"webhookId,omitempty"`

	Notes            string `json:"notes,omitempty"`
	NotesInFlow      bool   `json:"notesInFlow,omitempty"`
	ExecuteOnce      bool   `json:"executeOnce,omitempty"`
	AlwaysOutputData bool   `json:"alwaysOutputData,omitempty"`
	RetryOnFail      bool   `json:"retryOnFail,omitempty"`
	MaxTries         int    `json:"maxTries,omitempty" validate:"gte=0"`
	WaitBetweenTries int    `json:"waitBetweenTries,omitempty" validate:"gte=0"`
	OnError          string `json:"onError,omitempty"`
}

// Connections maps a source node name to its output ports. Each port type
// (usually "main") holds one list of targets per output index, in the order
// n8n executes them.
type Connections map[string]map[string][][]ConnectionTarget

// ConnectionTarget is the receiving end of a connection.
type ConnectionTarget struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Tag labels a workflow. n8n returns objects; bare strings are accepted on
// input and become a name-only tag.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*t = Tag{Name: name}
		return nil
	}
	type plain Tag
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Tag(p)
	return nil
}

// NodeByName returns the node called name.
func (w *Workflow) NodeByName(name string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// TagNames returns the tag names in order.
func (w *Workflow) TagNames() []string {
	names := make([]string, len(w.Tags))
	for i, t := range w.Tags {
		names[i] = t.Name
	}
	return names
}

// Connect appends a "main" connection from source output 0 to target input 0.
func (w *Workflow) Connect(source, target string) {
	if w.Connections == nil {
		w.Connections = Connections{}
	}
	ports := w.Connections[source]
	if ports == nil {
		ports = map[string][][]ConnectionTarget{}
		w.Connections[source] = ports
	}
	if len(ports["main"]) == 0 {
		ports["main"] = [][]ConnectionTarget{{}}
	}
	ports["main"][0] = append(ports["main"][0], ConnectionTarget{Node: target, Type: "main", Index: 0})
}

// workflowPayload is the body n8n accepts on create and update. Other
// workflow fields are read-only through the public API.
type workflowPayload struct {
	Name        string           `json:"name"`
	Nodes       []nodePayload    `json:"nodes"`
	Connections Connections      `json:"connections"`
	Settings    map[string]Value `json:"settings"`
	StaticData  *Value           `json:"staticData,omitempty"`
}

type nodePayload struct {
	Name             string           `json:"name"`
	Type             string           `json:"type"`
	TypeVersion      *float64         `json:"typeVersion,omitempty"`
	Position         []float64        `json:"position"`
	Parameters       map[string]Value `json:"parameters"`
	Credentials      map[string]Value `json:"credentials,omitempty"`
	Disabled         bool             `json:"disabled,omitempty"`
	AlwaysOutputData bool             `json:"alwaysOutputData,omitempty"`
}

// CreatePayload returns the request body for creating or updating w.
// Settings is always present because n8n rejects bodies without it.
func (w *Workflow) CreatePayload() any {
	p := workflowPayload{
		Name:        w.Name,
		Nodes:       make([]nodePayload, len(w.Nodes)),
		Connections: w.Connections,
		Settings:    w.Settings,
		StaticData:  w.StaticData,
	}
	if p.Connections == nil {
		p.Connections = Connections{}
	}
	if p.Settings == nil {
		p.Settings = map[string]Value{}
	}
	for i, n := range w.Nodes {
		params := n.Parameters
		if params == nil {
			params = map[string]Value{}
		}
		p.Nodes[i] = nodePayload{
			Name:             n.Name,
			Type:             n.Type,
			TypeVersion:      n.TypeVersion,
			Position:         n.Position,
			Parameters:       params,
			Credentials:      n.Credentials,
			Disabled:         n.Disabled,
			AlwaysOutputData: n.AlwaysOutputData,
		}
	}
	return p
}

// MarshalWorkflow serializes w to JSON. ParseWorkflow(MarshalWorkflow(w))
// yields a workflow equal to w.
func MarshalWorkflow(w *Workflow) ([]byte, error) {
	return json.Marshal(w)
}

// MarshalWorkflowIndent is MarshalWorkflow with two-space indentation.
func MarshalWorkflowIndent(w *Workflow) ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

// ParseWorkflow decodes and validates a workflow document. On failure it
// returns a *errors.ValidationError and no workflow.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := decode(data, &w); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// ParseWorkflowList decodes a JSON array of workflows, validating each.
func ParseWorkflowList(data []byte) ([]Workflow, error) {
	var raw []json.RawMessage
	if err := decode(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Workflow, 0, len(raw))
	for i, r := range raw {
		w, err := ParseWorkflow(r)
		if err != nil {
			return nil, prefixField(err, indexPath("", i))
		}
		out = append(out, *w)
	}
	return out, nil
}
