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
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredential(t *testing.T) {
	c, err := ParseCredential([]byte(`{"id": "5", "name": "Slack", "type": "slackApi", "data": {"accessToken": "xoxb-secret"}}`))
	require.NoError(t, err)
	assert.Equal(t, "slackApi", c.Type)

	_, err = ParseCredential([]byte(`{"name": "Slack"}`))
	requireValidationError(t, err, "type", "required")
}

func TestCredentialRedaction(t *testing.T) {
	c := Credential{
		ID:   "5",
		Name: "Slack",
		Type: "slackApi",
		Data: CredentialData{"accessToken": StringValue("xoxb-secret"), "team": StringValue("eng")},
	}

	assert.NotContains(t, c.String(), "xoxb-secret")
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", c, c.Data, c.Data), "xoxb-secret")
	assert.Contains(t, c.String(), "accessToken:[REDACTED]")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("created", "credential", c)
	logger.Info("data", "data", c.Data)
	assert.NotContains(t, buf.String(), "xoxb-secret")
	assert.Contains(t, buf.String(), "slackApi")
}

func TestCredentialCreatePayload(t *testing.T) {
	c := Credential{
		ID:   "5",
		Name: "Slack",
		Type: "slackApi",
		Data: CredentialData{"accessToken": StringValue("xoxb-secret")},
	}

	data, err := json.Marshal(c.CreatePayload())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Slack", "type": "slackApi", "data": {"accessToken": "xoxb-secret"}}`, string(data))
}
