package types

import (
	"encoding/json"
	"time"
)

// Job types understood by the job server.
const (
	SearchJobType = "search"
)

// SearchRequest are the caller-facing arguments of one acquisition session.
// Zero values fall back to the engine configuration defaults.
type SearchRequest struct {
	Query         string   `json:"query"`
	Platforms     []string `json:"platforms,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	MinEngagement float64  `json:"min_engagement,omitempty"`
	// SkipMedia runs a metadata-only session: no downloads, no screenshots.
	SkipMedia bool `json:"skip_media,omitempty"`
}

// Arguments converts the request into the loosely typed job arguments the
// job server carries.
func (r SearchRequest) Arguments() (JobArguments, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var args JobArguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

type JobArguments map[string]interface{}

// Job is one unit of queued work.
type Job struct {
	Type      string        `json:"type"`
	Arguments JobArguments  `json:"arguments"`
	UUID      string        `json:"-"`
	Timeout   time.Duration `json:"-"`
}

// Unmarshal round-trips the loosely typed arguments into a concrete
// argument struct.
func (ja JobArguments) Unmarshal(i interface{}) error {
	dat, err := json.Marshal(ja)
	if err != nil {
		return err
	}
	return json.Unmarshal(dat, i)
}

// JobResult is what the result cache stores for a finished job.
type JobResult struct {
	Error    string           `json:"error"`
	Manifest *SessionManifest `json:"manifest,omitempty"`
}

func (jr JobResult) Success() bool {
	return jr.Error == ""
}

type JobResponse struct {
	UID string `json:"uid"`
}

type JobError struct {
	Error string `json:"error"`
}
