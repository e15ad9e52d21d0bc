package credentials

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// FromKeys builds credentials from bare API keys. Empty entries are dropped.
func FromKeys(keys []string) []Credential {
	creds := make([]Credential, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		creds = append(creds, Credential{ID: key})
	}
	return creds
}

// FromPairs builds credentials from "id:secret" items, splitting on the
// first colon so secrets may themselves contain colons. Items without a
// separator are skipped.
func FromPairs(items []string) []Credential {
	creds := make([]Credential, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			logrus.Warnf("Skipping malformed credential pair %q", item)
			continue
		}
		creds = append(creds, Credential{ID: parts[0], Secret: parts[1]})
	}
	return creds
}
