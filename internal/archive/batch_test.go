package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/litrev/pkg/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviews.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadBatchFile(t *testing.T) {
	path := writeFile(t, `model: llama3
reviews:
  - topic: graph neural networks
    num_papers: 3
  - topic: diffusion models
    num_papers: 5
`)
	bf, err := ReadBatchFile(path)
	if err != nil {
		t.Fatalf("ReadBatchFile: %v", err)
	}
	if bf.Model != "llama3" || len(bf.Reviews) != 2 {
		t.Fatalf("got %+v", bf)
	}
	if req := bf.Reviews[1].Request(); req.Topic != "diffusion models" || req.CandidateCount() != 25 {
		t.Errorf("request = %+v", req)
	}
}

func TestReadBatchFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "reviews: [", "parsing"},
		{"no reviews", "model: llama3\n", "no reviews"},
		{"zero papers", "reviews:\n  - topic: x\n    num_papers: 0\n", "review 1"},
		{"empty topic", "reviews:\n  - topic: x\n    num_papers: 1\n  - num_papers: 2\n", "review 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBatchFile(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	if _, err := ReadBatchFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBatchWriteBack(t *testing.T) {
	path := writeFile(t, "reviews:\n  - topic: graph neural networks\n    num_papers: 1\n  - topic: t2\n    num_papers: 1\n")
	bf, err := ReadBatchFile(path)
	if err != nil {
		t.Fatal(err)
	}

	finished := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	bf.Reviews[0].Record(types.Review{
		ID:         "run-1",
		State:      types.StateDone,
		Selected:   []types.PaperRecord{{Title: "Graph Attention Networks"}},
		FinishedAt: finished,
	})
	bf.Reviews[1].Record(types.Review{ID: "run-2", State: types.StateFailed, Error: "search unavailable"})

	if err := WriteBatchFile(path, bf); err != nil {
		t.Fatalf("WriteBatchFile: %v", err)
	}
	again, err := ReadBatchFile(path)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}

	first := again.Reviews[0]
	if !first.Done() || first.RunID != "run-1" || len(first.Selected) != 1 || first.Selected[0] != "Graph Attention Networks" {
		t.Errorf("first = %+v", first)
	}
	if first.FinishedAt == nil || !first.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v", first.FinishedAt)
	}
	second := again.Reviews[1]
	if second.Done() || second.State != types.StateFailed || second.Error != "search unavailable" || second.FinishedAt != nil {
		t.Errorf("second = %+v", second)
	}
}
