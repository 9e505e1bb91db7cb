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

package docs

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
)

const n8nDocsURL = "https://docs.n8n.io"

// DocResource represents a documentation resource with its URL
type DocResource struct {
	Topic       string `json:"topic"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// DocsResponse is the JSON response for docs commands
type DocsResponse struct {
	shared.JSONResponse
	Resources []DocResource `json:"resources"`
}

// resources lists the n8n documentation n8nctl users need most.
var resources = []DocResource{
	{
		Topic:       "api",
		Name:        "Public API",
		Description: "The REST API n8nctl talks to",
		URL:         n8nDocsURL + "/api/",
	},
	{
		Topic:       "auth",
		Name:        "API Authentication",
		Description: "Creating the API key for N8N_API_KEY or 'config set-key'",
		URL:         n8nDocsURL + "/api/authentication/",
	},
	{
		Topic:       "pagination",
		Name:        "API Pagination",
		Description: "Cursor pagination used by list commands",
		URL:         n8nDocsURL + "/api/pagination/",
	},
	{
		Topic:       "executions",
		Name:        "Executions",
		Description: "Execution statuses, retries and data retention",
		URL:         n8nDocsURL + "/workflows/executions/",
	},
	{
		Topic:       "credentials",
		Name:        "Credentials",
		Description: "Credential types and their fields",
		URL:         n8nDocsURL + "/credentials/",
	},
	{
		Topic:       "export",
		Name:        "Export and Import",
		Description: "The workflow JSON format used by backup, restore and deploy",
		URL:         n8nDocsURL + "/workflows/export-import/",
	},
}

// NewDocsCommand creates the docs command
func NewDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "docs [topic]",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Show n8n documentation URLs",
		Long: `Display links to the n8n documentation that n8nctl builds on.

Give a topic to show a single link:
  n8nctl docs api          - Public API reference
  n8nctl docs auth         - API key setup
  n8nctl docs pagination   - Cursor pagination
  n8nctl docs executions   - Execution statuses and retries
  n8nctl docs credentials  - Credential types
  n8nctl docs export       - Workflow JSON format`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: topics(),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := resources
			command := "docs"
			if len(args) == 1 {
				r, ok := lookup(args[0])
				if !ok {
					return &shared.ExitError{
						Code:    shared.ExitGeneralError,
						Message: fmt.Sprintf("unknown topic %q (known: %v)", args[0], topics()),
					}
				}
				selected = []DocResource{r}
				command = "docs " + r.Topic
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, DocsResponse{
					JSONResponse: shared.NewJSONResponse(command),
					Resources:    selected,
				})
			}
			printResources(out, selected)
			return nil
		},
	}

	return cmd
}

func topics() []string {
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		names = append(names, r.Topic)
	}
	return names
}

func lookup(topic string) (DocResource, bool) {
	for _, r := range resources {
		if r.Topic == topic {
			return r, true
		}
	}
	return DocResource{}, false
}

func printResources(out io.Writer, rs []DocResource) {
	fmt.Fprintln(out)
	if len(rs) > 1 {
		fmt.Fprintln(out, shared.RenderHeader("n8n Documentation:"))
		fmt.Fprintln(out)
	}
	for _, r := range rs {
		fmt.Fprintf(out, "  %s\n", r.Name)
		fmt.Fprintf(out, "    %s\n", r.Description)
		fmt.Fprintf(out, "    %s\n", r.URL)
		fmt.Fprintln(out)
	}
}
