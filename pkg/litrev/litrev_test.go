// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package litrev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/pkg/types"
)

type stubBackend struct {
	mu     sync.Mutex
	papers []types.PaperRecord
	err    error
	calls  int
	limits []int
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Search(_ context.Context, _ string, maxResults int) ([]types.PaperRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.limits = append(b.limits, maxResults)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.papers) > maxResults {
		return b.papers[:maxResults], nil
	}
	return b.papers, nil
}

func (b *stubBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubModel struct {
	replies []model.Response
	calls   int
}

func (m *stubModel) Name() string { return "stub-llm" }

func (m *stubModel) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	m.calls++
	if m.calls > len(m.replies) {
		return model.Response{}, errors.New("no more replies")
	}
	return m.replies[m.calls-1], nil
}

type memArchive struct {
	saved []types.Review
}

func (a *memArchive) Save(_ context.Context, r types.Review) error {
	a.saved = append(a.saved, r)
	return nil
}

func stubPapers(n int) []types.PaperRecord {
	out := make([]types.PaperRecord, n)
	for i := range out {
		out[i] = types.PaperRecord{
			ID:        fmt.Sprintf("p%d", i+1),
			Title:     fmt.Sprintf("Message Passing Paper %d", i+1),
			Authors:   []string{"A. Author"},
			Published: types.NewDate(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)),
			PDFURL:    fmt.Sprintf("https://example.org/p%d.pdf", i+1),
		}
	}
	return out
}

func scriptFor(papers []types.PaperRecord, pick ...int) []model.Response {
	var titles []map[string]string
	for _, i := range pick {
		titles = append(titles, map[string]string{"title": papers[i].Title})
	}
	sel, _ := json.Marshal(titles)
	return []model.Response{
		{ToolCalls: []model.ToolCall{{ID: "c1", Name: "search_papers", Arguments: `{"query":"gnn","max_results":15}`}}},
		{Content: string(sel)},
		{Content: "## Review\n" + papers[pick[0]].Title},
	}
}

func noLimit() types.SearchConfig {
	cfg := types.DefaultConfig().Search
	cfg.RequestInterval = 0
	return cfg
}

func TestRunEndToEndWithStubs(t *testing.T) {
	papers := stubPapers(15)
	backend := &stubBackend{papers: papers}
	chat := &stubModel{replies: scriptFor(papers, 0, 4, 8)}
	archive := &memArchive{}

	seq, run, err := Run(context.Background(), "graph neural networks", 3, "",
		WithSearchConfig(noLimit()),
		WithSearchBackend(backend),
		WithChatModel(chat),
		WithArchive(archive))
	require.NoError(t, err)
	assert.Equal(t, types.StateIdle, run.State())
	assert.Zero(t, backend.callCount(), "nothing runs before iteration")

	var msgs []types.ConversationMessage
	for msg, err := range seq {
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}

	require.Len(t, msgs, 4)
	assert.Equal(t, []int{15}, backend.limits)
	assert.Equal(t, types.StateDone, run.State())

	review := run.Review()
	assert.Len(t, review.Selected, 3)
	assert.Equal(t, "stub-llm", review.Model)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, review.ID, archive.saved[0].ID)
	assert.Equal(t, types.StateDone, archive.saved[0].State)
}

func TestRunValidationBeforeClients(t *testing.T) {
	backend := &stubBackend{papers: stubPapers(5)}
	chat := &stubModel{}

	tests := []struct {
		name  string
		topic string
		n     int
		opts  []Option
	}{
		{"zero papers", "graph neural networks", 0, nil},
		{"empty topic", "", 3, nil},
		{"unknown backend", "t", 1, []Option{WithSearchConfig(types.SearchConfig{Backend: "scholar.google"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithChatModel(chat)}, tt.opts...)
			if tt.name != "unknown backend" {
				opts = append(opts, WithSearchBackend(backend))
			}
			seq, run, err := Run(context.Background(), tt.topic, tt.n, "llama3", opts...)
			assert.ErrorIs(t, err, types.ErrInvalidRequest)
			assert.Nil(t, seq)
			assert.Nil(t, run)
		})
	}
	assert.Zero(t, backend.callCount())
	assert.Zero(t, chat.calls)
}

func TestRunSearchFailureIsArchived(t *testing.T) {
	backend := &stubBackend{err: errors.New("HTTP 503")}
	chat := &stubModel{replies: scriptFor(stubPapers(1), 0)}
	archive := &memArchive{}

	seq, run, err := Run(context.Background(), "t", 1, "",
		WithSearchConfig(noLimit()), WithSearchBackend(backend), WithChatModel(chat), WithArchive(archive))
	require.NoError(t, err)

	var last error
	for _, err := range seq {
		last = err
	}
	require.Error(t, last)
	assert.Equal(t, types.StateFailed, run.State())
	require.Len(t, archive.saved, 1)
	assert.Equal(t, types.StateFailed, archive.saved[0].State)
	assert.Contains(t, archive.saved[0].Error, "search unavailable")
}

func TestRunAbandonedEarly(t *testing.T) {
	papers := stubPapers(15)
	backend := &stubBackend{papers: papers}
	chat := &stubModel{replies: scriptFor(papers, 0)}

	seq, run, err := Run(context.Background(), "t", 3, "",
		WithSearchConfig(noLimit()), WithSearchBackend(backend), WithChatModel(chat))
	require.NoError(t, err)

	for range seq {
		break
	}
	assert.Equal(t, types.StateFailed, run.State())
	assert.Zero(t, backend.callCount())
	assert.Equal(t, 1, chat.calls)
}

// TestRunAgainstOpenAICompatibleHost drives the real model client against
// a scripted chat completions server.
func TestRunAgainstOpenAICompatibleHost(t *testing.T) {
	papers := stubPapers(10)
	sel, _ := json.Marshal([]map[string]string{{"title": papers[1].Title}, {"title": papers[3].Title}})

	completions := []string{
		`{"id":"1","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_papers","arguments":"{\"query\":\"gnn\",\"max_results\":10}"}}]}}]}`,
		fmt.Sprintf(`{"id":"2","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, string(sel)),
		`{"id":"3","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"## Review"}}]}`,
	}

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(hits.Add(1)) - 1
		if i >= len(completions) {
			http.Error(w, "unexpected call", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completions[i])
	}))
	defer ts.Close()

	modelCfg := types.DefaultConfig().Model
	modelCfg.BaseURL = ts.URL + "/v1"
	modelCfg.MaxRetries = 0

	seq, run, err := Run(context.Background(), "graph neural networks", 2, "llama3",
		WithModelConfig(modelCfg),
		WithSearchConfig(noLimit()),
		WithSearchBackend(&stubBackend{papers: papers}))
	require.NoError(t, err)
	assert.Zero(t, hits.Load(), "no model call before iteration")

	var kinds []types.MessageKind
	for msg, err := range seq {
		require.NoError(t, err)
		kinds = append(kinds, msg.Kind)
	}

	assert.Equal(t, []types.MessageKind{types.KindToolCall, types.KindToolResult, types.KindText, types.KindText}, kinds)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, types.StateDone, run.State())
	assert.Equal(t, "llama3", run.Review().Model)
	assert.Equal(t, "## Review", run.Review().Markdown)
}

func TestRunModelHostDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	modelCfg := types.DefaultConfig().Model
	modelCfg.BaseURL = ts.URL
	modelCfg.MaxRetries = 0

	backend := &stubBackend{papers: stubPapers(5)}
	seq, run, err := Run(context.Background(), "t", 1, "llama3",
		WithModelConfig(modelCfg), WithSearchConfig(noLimit()), WithSearchBackend(backend))
	require.NoError(t, err)

	var last error
	for _, err := range seq {
		last = err
	}
	assert.ErrorIs(t, last, model.ErrUnavailable)
	assert.Equal(t, types.StateFailed, run.State())
	assert.Zero(t, backend.callCount())
}
