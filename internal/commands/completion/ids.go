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

package completion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

const (
	idCacheTTL   = 2 * time.Second
	apiTimeout   = 500 * time.Millisecond
	maxIDResults = 50
)

// idInfo is a completable identifier with its description.
type idInfo struct {
	id          string
	description string
}

type idCacheEntry struct {
	ids       []idInfo
	expiresAt time.Time
}

// idCache holds recent lookups keyed by resource.
var (
	idCache   = map[string]*idCacheEntry{}
	idCacheMu sync.RWMutex
)

// CompleteWorkflowIDs completes workflow IDs with their names as
// descriptions.
func CompleteWorkflowIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		ids, err := cachedIDs("workflows", fetchWorkflowIDs)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return formatIDs(ids, args, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteExecutionIDs completes recent execution IDs, described by
// workflow and status.
func CompleteExecutionIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		ids, err := cachedIDs("executions", fetchExecutionIDs)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return formatIDs(ids, args, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteCredentialIDs completes credential IDs with their names and types.
func CompleteCredentialIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		ids, err := cachedIDs("credentials", fetchCredentialIDs)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return formatIDs(ids, args, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// Func is the signature of cobra argument and flag completion functions.
type Func = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective)

// FirstArg limits fn to the first positional argument.
func FirstArg(fn Func) Func {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fn(cmd, args, toComplete)
	}
}

// formatIDs keeps the IDs matching prefix that are not already arguments.
func formatIDs(ids []idInfo, args []string, prefix string) []string {
	given := make(map[string]bool, len(args))
	for _, a := range args {
		given[a] = true
	}
	completions := make([]string, 0, len(ids))
	for _, info := range ids {
		if given[info.id] || !strings.HasPrefix(info.id, prefix) {
			continue
		}
		if info.description == "" {
			completions = append(completions, info.id)
			continue
		}
		completions = append(completions, info.id+"\t"+info.description)
	}
	return completions
}

func cachedIDs(key string, fetch func(context.Context, *n8n.Client) ([]idInfo, error)) ([]idInfo, error) {
	idCacheMu.RLock()
	entry, ok := idCache[key]
	idCacheMu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.ids, nil
	}

	client := newCompletionClient()
	if client == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
	defer cancel()

	ids, err := fetch(ctx, client)
	if err != nil {
		return nil, err
	}

	idCacheMu.Lock()
	idCache[key] = &idCacheEntry{ids: ids, expiresAt: time.Now().Add(idCacheTTL)}
	idCacheMu.Unlock()
	return ids, nil
}

func fetchWorkflowIDs(ctx context.Context, c *n8n.Client) ([]idInfo, error) {
	workflows, err := c.Workflows.List(ctx, n8n.ListWorkflowsOptions{Limit: maxIDResults})
	if err != nil {
		return nil, err
	}
	ids := make([]idInfo, 0, len(workflows))
	for _, w := range workflows {
		desc := w.Name
		if w.Active {
			desc += " (active)"
		}
		ids = append(ids, idInfo{id: w.ID, description: desc})
	}
	return ids, nil
}

func fetchExecutionIDs(ctx context.Context, c *n8n.Client) ([]idInfo, error) {
	executions, err := c.Executions.List(ctx, n8n.ListExecutionsOptions{Limit: maxIDResults})
	if err != nil {
		return nil, err
	}
	ids := make([]idInfo, 0, len(executions))
	for _, e := range executions {
		desc := "workflow " + e.WorkflowID.String()
		if e.Status != "" {
			desc += " (" + string(e.Status) + ")"
		}
		ids = append(ids, idInfo{id: e.ID.String(), description: desc})
	}
	return ids, nil
}

func fetchCredentialIDs(ctx context.Context, c *n8n.Client) ([]idInfo, error) {
	credentials, err := c.Credentials.List(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make([]idInfo, 0, len(credentials))
	for _, cred := range credentials {
		ids = append(ids, idInfo{id: cred.ID, description: cred.Name + " (" + cred.Type + ")"})
	}
	return ids, nil
}

// resetIDCache drops every cached lookup.
func resetIDCache() {
	idCacheMu.Lock()
	idCache = map[string]*idCacheEntry{}
	idCacheMu.Unlock()
}
