package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trendsift/viral-engine/pkg/seal"
)

type storedCredential struct {
	ID     string `json:"id"`
	Secret string `json:"secret,omitempty"`
}

// LoadStore reads a credential store mapping provider names to credential
// lists. Files with a .enc extension are sealed with pkg/seal and require
// a key ring; plain .json stores are read as-is.
func LoadStore(path string, ring *seal.KeyRing) (map[string][]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	content := string(data)
	if strings.EqualFold(filepath.Ext(path), ".enc") {
		if ring == nil {
			return nil, fmt.Errorf("credential store %s is sealed but no keys are configured", path)
		}
		content, err = ring.Unseal(strings.TrimSpace(content))
		if err != nil {
			return nil, fmt.Errorf("failed to unseal credential store: %w", err)
		}
	}

	var raw map[string][]storedCredential
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credential store: %w", err)
	}

	store := make(map[string][]Credential, len(raw))
	for provider, entries := range raw {
		creds := make([]Credential, 0, len(entries))
		for _, entry := range entries {
			if entry.ID == "" {
				continue
			}
			creds = append(creds, Credential{ID: entry.ID, Secret: entry.Secret})
		}
		store[provider] = creds
	}
	return store, nil
}

// SaveStore writes a credential store, sealing it when the path carries a
// .enc extension.
func SaveStore(path string, ring *seal.KeyRing, store map[string][]Credential) error {
	raw := make(map[string][]storedCredential, len(store))
	for provider, creds := range store {
		entries := make([]storedCredential, 0, len(creds))
		for _, cred := range creds {
			entries = append(entries, storedCredential{ID: cred.ID, Secret: cred.Secret})
		}
		raw[provider] = entries
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential store: %w", err)
	}

	content := string(data)
	if strings.EqualFold(filepath.Ext(path), ".enc") {
		if ring == nil {
			return fmt.Errorf("cannot seal credential store %s: no keys are configured", path)
		}
		content, err = ring.Seal(content)
		if err != nil {
			return fmt.Errorf("failed to seal credential store: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	return nil
}
