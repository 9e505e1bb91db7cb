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

package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name used for keychain entries.
const keychainService = "n8nctl"

// ErrKeyNotFound is returned when no API key is stored for an environment.
var ErrKeyNotFound = errors.New("config: no API key in keychain")

// GetAPIKey reads the API key stored for environment from the system
// keychain.
func GetAPIKey(environment string) (string, error) {
	key, err := keyring.Get(keychainService, keychainUser(environment))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("keychain error: %w", err)
	}
	return key, nil
}

// SetAPIKey stores the API key for environment in the system keychain.
func SetAPIKey(environment, key string) error {
	if key == "" {
		return errors.New("API key must not be empty")
	}
	if err := keyring.Set(keychainService, keychainUser(environment), key); err != nil {
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored API key for environment.
func DeleteAPIKey(environment string) error {
	if err := keyring.Delete(keychainService, keychainUser(environment)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

func keychainUser(environment string) string {
	if environment == "" {
		environment = DefaultEnvironment
	}
	return "api_key." + environment
}
