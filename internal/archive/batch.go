// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litrev/pkg/types"
)

// BatchFile is the on-disk list of review requests for `litrev batch`.
// Results are written back into the same file so a rerun can skip the
// entries that already finished.
type BatchFile struct {
	Model   string       `yaml:"model,omitempty"`
	Reviews []BatchEntry `yaml:"reviews"`
}

// BatchEntry is one request and, once run, its outcome.
type BatchEntry struct {
	Topic     string `yaml:"topic"`
	NumPapers int    `yaml:"num_papers"`

	RunID      string         `yaml:"run_id,omitempty"`
	State      types.RunState `yaml:"state,omitempty"`
	Error      string         `yaml:"error,omitempty"`
	Selected   []string       `yaml:"selected,omitempty"`
	FinishedAt *time.Time     `yaml:"finished_at,omitempty"`
}

// Request returns the entry as a ReviewRequest.
func (e BatchEntry) Request() types.ReviewRequest {
	return types.ReviewRequest{Topic: e.Topic, NumPapers: e.NumPapers}
}

// Done reports whether the entry already finished successfully.
func (e BatchEntry) Done() bool {
	return e.State == types.StateDone
}

// Record copies the outcome of r into the entry.
func (e *BatchEntry) Record(r types.Review) {
	e.RunID = r.ID
	e.State = r.State
	e.Error = r.Error
	e.Selected = e.Selected[:0]
	for _, p := range r.Selected {
		e.Selected = append(e.Selected, p.Title)
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt.UTC()
		e.FinishedAt = &t
	}
}

// ReadBatchFile loads a batch file from disk and validates every entry.
func ReadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	if len(bf.Reviews) == 0 {
		return nil, fmt.Errorf("batch file %s has no reviews", path)
	}
	for i, e := range bf.Reviews {
		if err := e.Request().Validate(); err != nil {
			return nil, fmt.Errorf("review %d: %w", i+1, err)
		}
	}
	return &bf, nil
}

// WriteBatchFile saves bf to path.
func WriteBatchFile(path string, bf *BatchFile) error {
	data, err := yaml.Marshal(bf)
	if err != nil {
		return fmt.Errorf("marshaling batch file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
