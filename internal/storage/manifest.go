// Package storage persists session manifests as JSON files. Each run writes
// a fresh file; existing manifests are never touched again.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/trendsift/viral-engine/api/types"
)

const querySlugMaxLen = 30

var querySlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// ManifestPath returns the path WriteManifest uses for a manifest. The name
// is a function of the query and the extraction timestamp, so it can be
// derived from the manifest alone.
func ManifestPath(outputDir string, manifest *types.SessionManifest) string {
	name := fmt.Sprintf("viral_results_%s_%s.json",
		querySlug(manifest.Query), manifest.ExtractedAt.Format("20060102_150405"))
	return filepath.Join(outputDir, name)
}

// WriteManifest writes the manifest under outputDir and returns the full
// path. The write goes through a temp file in the same directory and a
// rename, so readers never observe a half-written manifest.
func WriteManifest(outputDir string, manifest *types.SessionManifest) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	path := ManifestPath(outputDir, manifest)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}

	tmp, err := os.CreateTemp(outputDir, ".manifest-*.json")
	if err != nil {
		return "", fmt.Errorf("creating temp manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("setting manifest permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publishing manifest: %w", err)
	}
	return path, nil
}

func querySlug(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	s = querySlugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > querySlugMaxLen {
		s = strings.TrimRight(s[:querySlugMaxLen], "_")
	}
	if s == "" {
		return "query"
	}
	return s
}
