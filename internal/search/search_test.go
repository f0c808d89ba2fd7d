// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/litrev/internal/httputil"
	"github.com/pdiddy/litrev/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// --- mock backend ---

type mockBackend struct {
	name    string
	results []types.PaperRecord
	err     error

	calls   int
	lastMax int
	lastQ   string
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(_ context.Context, query string, maxResults int) ([]types.PaperRecord, error) {
	m.calls++
	m.lastQ = query
	m.lastMax = maxResults
	return m.results, m.err
}

func papers(n int) []types.PaperRecord {
	out := make([]types.PaperRecord, n)
	for i := range out {
		out[i] = types.PaperRecord{
			ID:    fmt.Sprintf("2401.%05d", i),
			Title: fmt.Sprintf("Paper %d", i),
		}
	}
	return out
}

// --- Tool ---

func TestToolRejectsNonPositiveMaxResults(t *testing.T) {
	for _, n := range []int{0, -1} {
		b := &mockBackend{name: "mock"}
		_, err := NewTool(b).Search(context.Background(), "graphs", n)
		if !errors.Is(err, ErrInvalidMaxResults) {
			t.Errorf("max_results=%d: err = %v, want ErrInvalidMaxResults", n, err)
		}
		if b.calls != 0 {
			t.Errorf("max_results=%d: backend called %d times, want 0", n, b.calls)
		}
	}
}

func TestToolRejectsEmptyQuery(t *testing.T) {
	b := &mockBackend{name: "mock"}
	_, err := NewTool(b).Search(context.Background(), "   ", 5)
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
	if b.calls != 0 {
		t.Errorf("backend called %d times, want 0", b.calls)
	}
}

func TestToolWrapsBackendFailure(t *testing.T) {
	b := &mockBackend{name: "mock", err: fmt.Errorf("connection refused")}
	_, err := NewTool(b).Search(context.Background(), "graphs", 5)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("err should be *UnavailableError, got %T", err)
	}
	if ue.Backend != "mock" {
		t.Errorf("Backend = %q, want %q", ue.Backend, "mock")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error should carry the cause, got %q", err.Error())
	}
}

func TestToolReturnsContextErrorUnwrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &mockBackend{name: "mock", err: context.Canceled}
	_, err := NewTool(b).Search(ctx, "graphs", 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("cancellation should not be reported as unavailable")
	}
}

func TestToolPreservesUpstreamOrderAndTruncates(t *testing.T) {
	upstream := papers(8)
	b := &mockBackend{name: "mock", results: upstream}

	got, err := NewTool(b).Search(context.Background(), "  graph neural networks ", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := range got {
		if got[i].ID != upstream[i].ID {
			t.Errorf("result %d = %s, want %s (no local re-sorting)", i, got[i].ID, upstream[i].ID)
		}
	}
	if b.lastQ != "graph neural networks" {
		t.Errorf("query passed to backend = %q", b.lastQ)
	}
	if b.lastMax != 5 {
		t.Errorf("max passed to backend = %d, want 5", b.lastMax)
	}
}

func TestToolRateLimitsCalls(t *testing.T) {
	b := &mockBackend{name: "mock", results: papers(1)}
	tool := NewTool(b, WithRequestInterval(50*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := tool.Search(context.Background(), "q", 1); err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 calls took %v, want >= ~100ms with a 50ms interval", elapsed)
	}
}

func TestToolRateLimitHonorsCancellation(t *testing.T) {
	b := &mockBackend{name: "mock", results: papers(1)}
	tool := NewTool(b, WithRequestInterval(time.Hour))

	if _, err := tool.Search(context.Background(), "q", 1); err != nil {
		t.Fatalf("first Search: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tool.Search(ctx, "q", 1)
	if err == nil {
		t.Fatal("second Search should fail while the limiter waits")
	}
	if b.calls != 1 {
		t.Errorf("backend called %d times, want 1", b.calls)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		backend types.SearchBackendName
		want    string
		wantErr bool
	}{
		{"", "arxiv", false},
		{types.BackendArxiv, "arxiv", false},
		{types.BackendSemanticScholar, "semantic_scholar", false},
		{"openalex", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			cfg := types.DefaultConfig().Search
			cfg.Backend = tt.backend
			tool, err := New(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown backend")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer tool.Close()
			if tool.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", tool.Name(), tt.want)
			}
		})
	}
}

// --- NormalizeTitle ---

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Attention Is All You Need", "attention is all you need"},
		{"attention is all you need!", "attention is all you need"},
		{"  Graph   Neural\nNetworks: A Review ", "graph neural networks a review"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Formatting ---

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable([]types.PaperRecord{{
		Title:     "A Very Long Title That Certainly Exceeds The Sixty Character Column Width",
		Authors:   []string{"Ada Lovelace", "Alan Turing"},
		Published: types.NewDate(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)),
		Source:    "arxiv",
	}}, &buf)

	out := buf.String()
	for _, want := range []string{"Rank", "...", "et al.", "2021-03-04", "1 results"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short ascii", "Graph", 10, "Graph"},
		{"long ascii", "Graph Neural Networks", 10, "Graph N..."},
		{"exact multibyte", "Žižek Ćirić", 11, "Žižek Ćirić"},
		{"long multibyte", "Étude des réseaux de neurones", 10, "Étude d..."},
		{"cjk", "图神经网络的综述研究", 6, "图神经..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
			}
		})
	}
}

func TestFormatTableNonASCIIAuthors(t *testing.T) {
	var buf bytes.Buffer
	FormatTable([]types.PaperRecord{{
		Title:   "Réseaux de neurones sur graphes pour la chimie quantique et la découverte",
		Authors: []string{"Jérôme Müller-Łukasiewicz", "B. Author"},
	}}, &buf)
	if !utf8.Valid(buf.Bytes()) {
		t.Errorf("table output is not valid UTF-8:\n%s", buf.String())
	}
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFormatJSONUsesWireDates(t *testing.T) {
	var buf bytes.Buffer
	err := FormatJSON([]types.PaperRecord{{
		Title:     "Paper",
		Published: types.NewDate(time.Date(2020, 1, 2, 15, 0, 0, 0, time.UTC)),
	}}, &buf)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"published": "2020-01-02"`) {
		t.Errorf("JSON should carry YYYY-MM-DD dates:\n%s", buf.String())
	}
}
