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

package n8n

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/woakes070048/n8n-flow-manager/pkg/model"
)

// CredentialService manages credentials. Secret data is write-only: n8n
// never returns it.
type CredentialService struct {
	client *Client
}

// List returns credentials, optionally filtered by type.
func (s *CredentialService) List(ctx context.Context, credentialType string) ([]model.Credential, error) {
	query := url.Values{}
	if credentialType != "" {
		query.Set("type", credentialType)
	}
	creds, err := listAll(ctx, s.client, "/credentials", query, 0, model.ParseCredentialList)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// Get fetches one credential's metadata.
func (s *CredentialService) Get(ctx context.Context, id string) (*model.Credential, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, "/credentials/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, notFound(err, "credential", id)
	}
	return model.ParseCredential(raw)
}

// Create stores a new credential.
func (s *CredentialService) Create(ctx context.Context, c *model.Credential) (*model.Credential, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Request(ctx, http.MethodPost, "/credentials", c.CreatePayload(), nil)
	if err != nil {
		return nil, rejected(err, "credential")
	}
	return model.ParseCredential(raw)
}

// Update patches the credential with the given ID.
func (s *CredentialService) Update(ctx context.Context, id string, c *model.Credential) (*model.Credential, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Request(ctx, http.MethodPatch, "/credentials/"+url.PathEscape(id), c.CreatePayload(), nil)
	if err != nil {
		return nil, rejected(notFound(err, "credential", id), "credential")
	}
	return model.ParseCredential(raw)
}

// Delete removes a credential.
func (s *CredentialService) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Request(ctx, http.MethodDelete, "/credentials/"+url.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "credential", id)
	}
	return nil
}

// Schema returns the JSON schema of a credential type's data.
func (s *CredentialService) Schema(ctx context.Context, typeName string) (json.RawMessage, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, "/credentials/schema/"+url.PathEscape(typeName), nil, nil)
	if err != nil {
		return nil, notFound(err, "credential type", typeName)
	}
	return raw, nil
}
