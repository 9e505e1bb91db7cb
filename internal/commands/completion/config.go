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
	"os"

	"github.com/spf13/cobra"

	"github.com/woakes070048/n8n-flow-manager/internal/commands/shared"
	"github.com/woakes070048/n8n-flow-manager/internal/config"
	"github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// CheckFilePermissions verifies that a file has secure permissions (mode <= 0600).
// Returns true if permissions are acceptable, false if too permissive.
func CheckFilePermissions(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Missing files are fine; completion fails gracefully later.
		return true
	}
	return info.Mode().Perm() <= 0600
}

// LoadConfigForCompletion loads the n8nctl configuration with permission validation.
// Returns a nil config when the config file is readable by others, so
// completion never sends a key taken from a file that may have leaked.
func LoadConfigForCompletion() (*config.Config, error) {
	configPath := shared.GetConfigPath()
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if !CheckFilePermissions(configPath) {
		return nil, nil
	}

	cfg, err := config.Load(shared.ConfigOptions())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newCompletionClient builds an n8n client that gives up quickly. Nil is
// returned when no usable configuration exists.
func newCompletionClient() *n8n.Client {
	cfg, err := LoadConfigForCompletion()
	if err != nil || cfg == nil {
		return nil
	}

	hc := cfg.HTTPConfig()
	hc.Timeout = apiTimeout
	hc.RetryAttempts = 0
	hc.UserAgent = "n8nctl-completion"

	client, err := n8n.New(cfg.BaseURL, cfg.APIKey, n8n.WithHTTPConfig(hc))
	if err != nil {
		return nil
	}
	return client
}

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
