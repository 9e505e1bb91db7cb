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

// Package credentials implements the "n8nctl credentials" command group.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/completion"
	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/model"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// NewCommand creates the credentials command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"credential", "cred"},
		Annotations: map[string]string{
			"group": "credentials",
		},
		Short: "Manage n8n credentials",
		Long: `Manage the credentials workflows use to reach other services.

Secret data is write-only. n8n never returns it, so list and get show
names and types only.

See also: n8nctl credentials schema, n8nctl workflows deploy`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newSchemaCommand())

	return cmd
}

type listResponse struct {
	shared.JSONResponse
	Credentials []model.Credential `json:"credentials"`
}

func newListCommand() *cobra.Command {
	var credType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List credentials",
		Example: `  n8nctl credentials list
  n8nctl credentials list --type slackApi --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			creds, err := sess.Client.Credentials.List(cmd.Context(), credType)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, listResponse{
					JSONResponse: shared.NewJSONResponse("credentials list"),
					Credentials:  creds,
				})
			}
			if len(creds) == 0 {
				fmt.Fprintln(out, "No credentials found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tUPDATED")
			for _, c := range creds {
				updated := ""
				if c.UpdatedAt != nil {
					updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, updated)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&credType, "type", "", "Only credentials of this type")

	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "get <id>",
		Short:             "Show a credential's metadata",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.FirstArg(completion.CompleteCredentialIDs),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			c, err := sess.Client.Credentials.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, c)
			}
			printCredential(out, c)
			return nil
		},
	}
}

func printCredential(out io.Writer, c *model.Credential) {
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Credential:"), c.Name)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("ID:        "), c.ID)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Type:      "), c.Type)
	if c.CreatedAt != nil {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Created:   "), c.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if c.UpdatedAt != nil {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Updated:   "), c.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func newCreateCommand() *cobra.Command {
	var (
		name     string
		credType string
		data     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a credential",
		Long: `Create a credential from a JSON object of secret fields.

Without --data, n8nctl fetches the type's schema and prompts for each
required field with masked input. Prompting needs a terminal; in scripts
pass --data.`,
		Example: `  # Example 1: Prompt for the fields of an API key credential
  n8nctl credentials create --name "Slack bot" --type slackApi

  # Example 2: Read the secret fields from a file
  n8nctl credentials create --name "Postgres prod" --type postgres --data @pg.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := shared.NewSession(ctx, shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			fields, err := shared.ParseInput(data)
			if err != nil {
				return &flowerrors.ValidationError{Field: "data", Rule: "json_object", Message: err.Error()}
			}
			if fields == nil {
				fields, err = promptFields(ctx, sess.Client.Credentials, credType)
				if err != nil {
					return err
				}
			}

			credData, err := toCredentialData(fields)
			if err != nil {
				return err
			}

			created, err := sess.Client.Credentials.Create(ctx, &model.Credential{Name: name, Type: credType, Data: credData})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, created)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Credential '%s' created (ID %s)", created.Name, created.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Credential name")
	cmd.Flags().StringVar(&credType, "type", "", "Credential type, e.g. slackApi or httpHeaderAuth")
	cmd.Flags().StringVar(&data, "data", "", "Secret fields as a JSON object, or @file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newUpdateCommand() *cobra.Command {
	var (
		name string
		data string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a credential or replace its secret fields",
		Example: `  n8nctl credentials update 14 --name "Slack bot (old)"
  n8nctl credentials update 14 --data '{"accessToken": "xoxb-..."}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && data == "" {
				return &flowerrors.ValidationError{Message: "nothing to update", Suggestion: "pass --name or --data"}
			}

			ctx := cmd.Context()
			sess, err := shared.NewSession(ctx, shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			current, err := sess.Client.Credentials.Get(ctx, args[0])
			if err != nil {
				return err
			}

			patch := &model.Credential{Name: current.Name, Type: current.Type}
			if name != "" {
				patch.Name = name
			}
			if data != "" {
				fields, err := shared.ParseInput(data)
				if err != nil {
					return &flowerrors.ValidationError{Field: "data", Rule: "json_object", Message: err.Error()}
				}
				if patch.Data, err = toCredentialData(fields); err != nil {
					return err
				}
			}

			updated, err := sess.Client.Credentials.Update(ctx, args[0], patch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, updated)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Credential '%s' updated", updated.Name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New credential name")
	cmd.Flags().StringVar(&data, "data", "", "New secret fields as a JSON object, or @file")

	cmd.ValidArgsFunction = completion.FirstArg(completion.CompleteCredentialIDs)
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete credentials",
		Long: `Delete credentials. Workflows that use a deleted credential fail on
their next execution.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := shared.Confirm(fmt.Sprintf("Delete %d credential(s): %s?", len(args), strings.Join(args, ", ")), yes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, id := range args {
				if err := sess.Client.Credentials.Delete(cmd.Context(), id); err != nil {
					return err
				}
				if !shared.GetJSON() && !shared.GetQuiet() {
					fmt.Fprintln(out, shared.RenderOK("Deleted credential "+id))
				}
			}
			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Deleted []string `json:"deleted"`
				}{shared.NewJSONResponse("credentials delete"), args})
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	cmd.ValidArgsFunction = completion.CompleteCredentialIDs
	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <type>",
		Short: "Show the fields a credential type expects",
		Example: `  n8nctl credentials schema slackApi
  n8nctl credentials schema postgres --jq '.required'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := shared.NewSession(cmd.Context(), shared.SessionOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			raw, err := sess.Client.Credentials.Schema(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, raw)
			}

			schema, err := parseSchema(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, shared.RenderHeader(args[0]))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tTYPE\tREQUIRED")
			for _, f := range schema.fields() {
				req := ""
				if f.required {
					req = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.name, f.typ, req)
			}
			w.Flush()
			return nil
		},
	}
}

// credentialSchema is the subset of n8n's JSON schema used for prompting.
type credentialSchema struct {
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
	Required []string `json:"required"`
}

type schemaField struct {
	name     string
	typ      string
	required bool
}

func parseSchema(raw json.RawMessage) (*credentialSchema, error) {
	var s credentialSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse credential schema: %w", err)
	}
	return &s, nil
}

// fields lists required fields first, then the rest, each alphabetically.
func (s *credentialSchema) fields() []schemaField {
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	fields := make([]schemaField, 0, len(s.Properties))
	for name, p := range s.Properties {
		fields = append(fields, schemaField{name: name, typ: p.Type, required: required[name]})
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].required != fields[j].required {
			return fields[i].required
		}
		return fields[i].name < fields[j].name
	})
	return fields
}

// promptFields asks for each required field of credType's schema.
func promptFields(ctx context.Context, api *n8n.CredentialService, credType string) (map[string]any, error) {
	if shared.IsNonInteractive() {
		return nil, &flowerrors.ValidationError{
			Field:      "data",
			Rule:       "required",
			Message:    "credential data is required in non-interactive mode",
			Suggestion: "pass --data '{...}' or --data @file.json",
		}
	}

	raw, err := api.Schema(ctx, credType)
	if err != nil {
		var nf *flowerrors.NotFoundError
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("unknown credential type %q: %w", credType, err)
		}
		return nil, err
	}
	schema, err := parseSchema(raw)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	for _, f := range schema.fields() {
		if !f.required {
			continue
		}
		value, err := shared.PromptSecret(f.name, fmt.Sprintf("%s field of %s", f.typ, credType))
		if err != nil {
			return nil, err
		}
		fields[f.name] = value
	}
	return fields, nil
}

func toCredentialData(fields map[string]any) (model.CredentialData, error) {
	data := make(model.CredentialData, len(fields))
	for k, v := range fields {
		val, err := model.FromAny(v)
		if err != nil {
			return nil, &flowerrors.ValidationError{Field: "data." + k, Rule: "json_value", Message: err.Error()}
		}
		data[k] = val
	}
	return data, nil
}
