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

package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// APIKey is the key the fake server accepts.
const APIKey = "n8n_api_mock_key"

// Server is an in-memory n8n public API for command and integration tests.
// Triggered executions walk through the scripted statuses, one per poll.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	nextID      int
	workflows   map[string]*model.Workflow
	executions  map[string]*model.Execution
	credentials map[string]*model.Credential
	schemas     map[string]json.RawMessage
	script      []model.Status
	progress    map[string]int
	triggerFail int
	requests    []string
	inputs      map[string]map[string]any
}

// NewServer starts a fake n8n server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:      1,
		workflows:   map[string]*model.Workflow{},
		executions:  map[string]*model.Execution{},
		credentials: map[string]*model.Credential{},
		schemas:     map[string]json.RawMessage{},
		progress:    map[string]int{},
		inputs:      map[string]map[string]any{},
		script:      []model.Status{model.StatusSuccess},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workflows", s.listWorkflows)
	mux.HandleFunc("POST /api/v1/workflows", s.createWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.getWorkflow)
	mux.HandleFunc("PUT /api/v1/workflows/{id}", s.updateWorkflow)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", s.deleteWorkflow)
	mux.HandleFunc("POST /api/v1/workflows/{id}/activate", s.setActive(true))
	mux.HandleFunc("POST /api/v1/workflows/{id}/deactivate", s.setActive(false))
	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", s.trigger)
	mux.HandleFunc("GET /api/v1/executions", s.listExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.getExecution)
	mux.HandleFunc("DELETE /api/v1/executions/{id}", s.deleteExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/retry", s.retryExecution)
	mux.HandleFunc("GET /api/v1/credentials", s.listCredentials)
	mux.HandleFunc("POST /api/v1/credentials", s.createCredential)
	mux.HandleFunc("GET /api/v1/credentials/{id}", s.getCredential)
	mux.HandleFunc("PATCH /api/v1/credentials/{id}", s.updateCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", s.deleteCredential)
	mux.HandleFunc("GET /api/v1/credentials/schema/{type}", s.getSchema)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		if r.Header.Get("X-N8N-API-KEY") != APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Script sets the statuses successive polls of a new execution report.
// The last status repeats.
func (s *Server) Script(statuses ...model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = statuses
}

// FailTrigger makes every execute call answer with status.
func (s *Server) FailTrigger(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerFail = status
}

// AddWorkflow stores w and returns its ID.
func (s *Server) AddWorkflow(w model.Workflow) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = s.newID()
	}
	s.workflows[w.ID] = &w
	return w.ID
}

// Workflow returns a copy of the stored workflow.
func (s *Server) Workflow(id string) (model.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, false
	}
	return *w, true
}

// WorkflowCount reports how many workflows are stored.
func (s *Server) WorkflowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workflows)
}

// AddExecution stores e as is.
func (s *Server) AddExecution(e model.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID.String()] = &e
}

// HasExecution reports whether the execution exists.
func (s *Server) HasExecution(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.executions[id]
	return ok
}

// AddCredential stores c and returns its ID.
func (s *Server) AddCredential(c model.Credential) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.newID()
	}
	s.credentials[c.ID] = &c
	return c.ID
}

// Credential returns a copy of the stored credential, data included.
func (s *Server) Credential(id string) (model.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return model.Credential{}, false
	}
	return *c, true
}

// AddSchema registers the data schema for a credential type.
func (s *Server) AddSchema(typeName string, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[typeName] = json.RawMessage(schema)
}

// Input returns the input the workflow was last triggered with.
func (s *Server) Input(workflowID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[workflowID]
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts requests whose "METHOD path" starts with prefix.
func (s *Server) CountRequests(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) newID() string {
	id := strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, resource string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": resource + " not found"})
}

type page[T any] struct {
	Data       []T     `json:"data"`
	NextCursor *string `json:"nextCursor"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := r.URL.Query().Get("active")
	var tags []string
	if t := r.URL.Query().Get("tags"); t != "" {
		tags = strings.Split(t, ",")
	}

	out := page[model.Workflow]{Data: []model.Workflow{}}
	for _, id := range sortedKeys(s.workflows) {
		wf := s.workflows[id]
		if active != "" && strconv.FormatBool(wf.Active) != active {
			continue
		}
		if !hasTags(wf, tags) {
			continue
		}
		out.Data = append(out.Data, *wf)
	}
	writeJSON(w, http.StatusOK, out)
}

func hasTags(wf *model.Workflow, tags []string) bool {
	names := wf.TagNames()
	for _, want := range tags {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Server) decodeWorkflow(w http.ResponseWriter, r *http.Request) (*model.Workflow, bool) {
	var wf model.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return nil, false
	}
	if wf.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "request/body must have required property 'name'"})
		return nil, false
	}
	return &wf, true
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.decodeWorkflow(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	wf.ID = s.newID()
	wf.Active = false
	wf.CreatedAt, wf.UpdatedAt = &now, &now
	s.workflows[wf.ID] = wf
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[r.PathValue("id")]
	if !ok {
		notFound(w, "workflow")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.decodeWorkflow(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	existing, ok := s.workflows[id]
	if !ok {
		notFound(w, "workflow")
		return
	}
	now := time.Now().UTC()
	wf.ID = id
	wf.Active = existing.Active
	wf.Tags = existing.Tags
	wf.CreatedAt, wf.UpdatedAt = existing.CreatedAt, &now
	s.workflows[id] = wf
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	wf, ok := s.workflows[id]
	if !ok {
		notFound(w, "workflow")
		return
	}
	delete(s.workflows, id)
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		wf, ok := s.workflows[r.PathValue("id")]
		if !ok {
			notFound(w, "workflow")
			return
		}
		wf.Active = active
		writeJSON(w, http.StatusOK, wf)
	}
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data map[string]any `json:"data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggerFail != 0 {
		writeJSON(w, s.triggerFail, map[string]string{"message": "trigger rejected"})
		return
	}
	wfID := r.PathValue("id")
	if _, ok := s.workflows[wfID]; !ok {
		notFound(w, "workflow")
		return
	}

	now := time.Now().UTC()
	id := s.newID()
	s.executions[id] = &model.Execution{
		ID:         model.ID(id),
		WorkflowID: model.ID(wfID),
		Status:     model.StatusNew,
		Mode:       "manual",
		StartedAt:  &now,
	}
	s.progress[id] = 0
	s.inputs[wfID] = body.Data
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"executionId": id}})
}

// advance moves a scripted execution one step forward.
func (s *Server) advance(e *model.Execution) {
	step, scripted := s.progress[e.ID.String()]
	if !scripted || len(s.script) == 0 {
		return
	}
	e.Status = s.script[min(step, len(s.script)-1)]
	s.progress[e.ID.String()] = step + 1
	if e.Status.IsTerminal() {
		now := time.Now().UTC()
		e.Finished = e.Status.IsSuccessful()
		e.StoppedAt = &now
		if e.Status.IsFailed() {
			v, _ := model.FromAny(map[string]any{
				"resultData": map[string]any{"error": map[string]any{"message": "node failed"}},
			})
			e.Data = &v
		}
	}
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wfID := r.URL.Query().Get("workflowId")
	status := r.URL.Query().Get("status")

	out := page[model.Execution]{Data: []model.Execution{}}
	keys := sortedKeys(s.executions)
	for i := len(keys) - 1; i >= 0; i-- {
		e := s.executions[keys[i]]
		if wfID != "" && e.WorkflowID.String() != wfID {
			continue
		}
		if status != "" && string(e.Status) != status {
			continue
		}
		out.Data = append(out.Data, *e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[r.PathValue("id")]
	if !ok {
		notFound(w, "execution")
		return
	}
	s.advance(e)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) deleteExecution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	e, ok := s.executions[id]
	if !ok {
		notFound(w, "execution")
		return
	}
	delete(s.executions, id)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) retryExecution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.executions[r.PathValue("id")]
	if !ok {
		notFound(w, "execution")
		return
	}
	now := time.Now().UTC()
	retry := &model.Execution{
		ID:         model.ID(s.newID()),
		WorkflowID: orig.WorkflowID,
		Status:     model.StatusSuccess,
		Finished:   true,
		Mode:       "retry",
		RetryOf:    orig.ID,
		StartedAt:  &now,
		StoppedAt:  &now,
	}
	s.executions[retry.ID.String()] = retry
	writeJSON(w, http.StatusOK, retry)
}

// credentialView omits data, which n8n never returns.
func credentialView(c *model.Credential) model.Credential {
	out := *c
	out.Data = nil
	return out
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	typeName := r.URL.Query().Get("type")
	out := page[model.Credential]{Data: []model.Credential{}}
	for _, id := range sortedKeys(s.credentials) {
		c := s.credentials[id]
		if typeName != "" && c.Type != typeName {
			continue
		}
		out.Data = append(out.Data, credentialView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCredential(w http.ResponseWriter, r *http.Request) {
	var c model.Credential
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schemas[c.Type]; len(s.schemas) > 0 && !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("unknown credential type %q", c.Type)})
		return
	}
	c.ID = s.newID()
	s.credentials[c.ID] = &c
	writeJSON(w, http.StatusOK, credentialView(&c))
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[r.PathValue("id")]
	if !ok {
		notFound(w, "credential")
		return
	}
	writeJSON(w, http.StatusOK, credentialView(c))
}

func (s *Server) updateCredential(w http.ResponseWriter, r *http.Request) {
	var patch model.Credential
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[r.PathValue("id")]
	if !ok {
		notFound(w, "credential")
		return
	}
	if patch.Name != "" {
		c.Name = patch.Name
	}
	if len(patch.Data) > 0 {
		c.Data = patch.Data
	}
	writeJSON(w, http.StatusOK, credentialView(c))
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	c, ok := s.credentials[id]
	if !ok {
		notFound(w, "credential")
		return
	}
	delete(s.credentials, id)
	writeJSON(w, http.StatusOK, credentialView(c))
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok := s.schemas[r.PathValue("type")]
	if !ok {
		notFound(w, "credential type")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(schema)
}
