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
	"os"
	"strings"
	"testing"
)

// Isolate points config, data and dotenv lookups at fresh temp dirs and
// clears inherited N8N_ variables, so commands under test see only what
// the test sets.
func Isolate(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "N8N_") || key == "LOG_LEVEL" || key == "LOG_FORMAT" {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("N8N_NON_INTERACTIVE", "true")
	t.Setenv("NO_COLOR", "1")
	t.Chdir(t.TempDir())
}
