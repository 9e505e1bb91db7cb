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

package shared

import (
	"github.com/spf13/pflag"
)

// Global flag values - set by root command
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string
	envFlag     string
	baseURLFlag string
	apiKeyFlag  string
	jqFlag      string
	traceFlag   string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterGlobalFlags binds the persistent flags shared by every command.
func RegisterGlobalFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	fs.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-error output")
	fs.BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	fs.StringVar(&configFlag, "config", "", "Path to config file (default: ~/.config/n8nctl/config.yaml)")
	fs.StringVarP(&envFlag, "env", "e", "", "Named environment from the config file")
	fs.StringVar(&baseURLFlag, "base-url", "", "n8n base URL (overrides N8N_BASE_URL)")
	fs.StringVar(&apiKeyFlag, "api-key", "", "n8n API key (overrides N8N_API_KEY)")
	fs.StringVar(&jqFlag, "jq", "", "Filter JSON output with a jq expression (implies --json)")
	fs.StringVar(&traceFlag, "trace", "", "Export traces: stdout, otlp-http or otlp-grpc")
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verboseFlag
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quietFlag
}

// GetJSON reports whether output should be JSON. A jq filter implies JSON.
func GetJSON() bool {
	return jsonFlag || jqFlag != ""
}

// GetJQ returns the jq filter applied to JSON output
func GetJQ() string {
	return jqFlag
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return configFlag
}

// GetEnvironment returns the selected environment name
func GetEnvironment() string {
	return envFlag
}

// GetTrace returns the trace exporter name
func GetTrace() string {
	return traceFlag
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ResetFlagsForTest restores every global flag to its zero value.
func ResetFlagsForTest() {
	verboseFlag, quietFlag, jsonFlag = false, false, false
	configFlag, envFlag, baseURLFlag, apiKeyFlag, jqFlag, traceFlag = "", "", "", "", "", ""
}
