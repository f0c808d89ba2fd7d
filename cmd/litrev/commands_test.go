package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litrev/internal/archive"
	"github.com/pdiddy/litrev/pkg/types"
)

const cliArxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v1</id>
    <title>Attention Is All You Need</title>
    <summary>We propose the Transformer.</summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/1810.04805v2</id>
    <title>BERT: Pre-training of Deep Bidirectional Transformers</title>
    <summary>We introduce BERT.</summary>
    <published>2018-10-11T00:00:00Z</published>
    <author><name>Jacob Devlin</name></author>
  </entry>
</feed>`

// chatHost answers chat completion requests the way a cooperative model
// would: a search call while tools are offered, a selection once a tool
// result is in the history, and a markdown review otherwise.
type chatHost struct {
	calls atomic.Int32
}

func (h *chatHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	var body struct {
		Tools    []json.RawMessage `json:"tools"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sawTool := false
	for _, m := range body.Messages {
		if m.Role == "tool" {
			sawTool = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case len(body.Tools) > 0:
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_papers","arguments":"{\"query\":\"attention\",\"max_results\":5}"}}]}}]}`)
	case sawTool:
		fmt.Fprint(w, `{"id":"2","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"[{\"title\":\"Attention Is All You Need\"}]"}}]}`)
	default:
		fmt.Fprint(w, `{"id":"3","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"## Review\n\nAttention Is All You Need replaces recurrence with attention."}}]}`)
	}
}

type cliEnv struct {
	chat        *chatHost
	searchCalls *atomic.Int32
	archiveDir  string
}

// setupCLI points the CLI at local search and chat servers through
// LITREV_* variables and runs it from an empty working directory.
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	env := &cliEnv{chat: &chatHost{}, searchCalls: &atomic.Int32{}, archiveDir: filepath.Join(t.TempDir(), "reviews")}

	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.searchCalls.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, cliArxivFeed)
	}))
	t.Cleanup(arxiv.Close)
	model := httptest.NewServer(env.chat)
	t.Cleanup(model.Close)

	t.Setenv("LITREV_SEARCH_BASE_URL", arxiv.URL)
	t.Setenv("LITREV_SEARCH_REQUEST_INTERVAL", "0s")
	t.Setenv("LITREV_SEARCH_MAX_RETRIES", "0")
	t.Setenv("LITREV_MODEL_BASE_URL", model.URL+"/v1")
	t.Setenv("LITREV_MODEL_MAX_RETRIES", "0")
	t.Setenv("LITREV_ARCHIVE_DIR", env.archiveDir)
	t.Setenv("LITREV_LOG_LEVEL", "error")
	return env
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so earlier runs do not leak.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestVersionCommand(t *testing.T) {
	setupCLI(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "litrev dev\n", out)
}

func TestSearchCommandFormats(t *testing.T) {
	env := setupCLI(t)

	out, err := execute(t, "search", "--query", "attention", "--format", "json")
	require.NoError(t, err)
	var papers []types.PaperRecord
	require.NoError(t, json.Unmarshal([]byte(out), &papers))
	require.Len(t, papers, 2)
	assert.Equal(t, "Attention Is All You Need", papers[0].Title)

	out, err = execute(t, "search", "attention", "is", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "Rank")
	assert.Contains(t, out, "2 results")

	out, err = execute(t, "search", "--query", "attention", "--format", "csl")
	require.NoError(t, err)
	assert.Contains(t, out, "title: Attention Is All You Need")

	_, err = execute(t, "search", "--query", "attention", "--format", "bibtex")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = execute(t, "search")
	assert.Error(t, err)
	assert.Equal(t, int32(4), env.searchCalls.Load(), "missing query fails before any request")
}

func TestReviewCommandAndHistory(t *testing.T) {
	env := setupCLI(t)

	out, err := execute(t, "review", "--topic", "attention mechanisms", "--papers", "1", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "---------- searcher (tool call: search_papers) ----------")
	assert.Contains(t, out, "---------- searcher (tool result: search_papers) ----------")
	assert.Contains(t, out, "---------- summarizer ----------\n## Review")
	assert.Equal(t, int32(3), env.chat.calls.Load())
	assert.Equal(t, int32(1), env.searchCalls.Load())

	out, err = execute(t, "history", "list", "--json")
	require.NoError(t, err)
	var rows []archive.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, types.StateDone, rows[0].State)
	assert.Equal(t, "attention mechanisms", rows[0].Topic)
	assert.Equal(t, 1, rows[0].Selected)
	id := rows[0].ID

	out, err = execute(t, "history", "show", id[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "State:    done")
	assert.Contains(t, out, "1 requested, 1 selected of 2 candidates")
	assert.Contains(t, out, "## Review")

	out, err = execute(t, "history", "search", "Transformer")
	require.NoError(t, err)
	assert.Contains(t, out, "attention mechanisms")

	out, err = execute(t, "history", "export", id, "--format", "csl")
	require.NoError(t, err)
	assert.Contains(t, out, "Attention Is All You Need")
	assert.NotContains(t, out, "BERT")

	out, err = execute(t, "history", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted review")

	out, err = execute(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "No reviews found.\n", out)
}

func TestReviewCommandJSONLines(t *testing.T) {
	env := setupCLI(t)

	out, err := execute(t, "review", "--topic", "attention", "--papers", "1", "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	var last types.ConversationMessage
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &last))
	assert.Equal(t, types.SenderSummarizer, last.Sender)
	assert.Equal(t, 4, last.Seq)

	_, err = os.Stat(filepath.Join(env.archiveDir, "reviews.db"))
	assert.True(t, os.IsNotExist(err), "nothing is archived without --save")
}

func TestReviewCommandRejectsBadRequest(t *testing.T) {
	env := setupCLI(t)

	_, err := execute(t, "review", "--topic", "attention", "--papers", "0")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
	assert.Zero(t, env.chat.calls.Load())
	assert.Zero(t, env.searchCalls.Load())
}

func TestBatchCommandWritesBackAndSkipsDone(t *testing.T) {
	env := setupCLI(t)

	path := filepath.Join(t.TempDir(), "reviews.yaml")
	content := `reviews:
  - topic: finished earlier
    num_papers: 2
    run_id: kept-run
    state: done
    selected: [Some Paper]
  - topic: attention mechanisms
    num_papers: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	out, err := execute(t, "batch", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 1 reviews (0 failed, 1 skipped)")
	assert.Equal(t, int32(3), env.chat.calls.Load(), "only the pending entry runs")

	bf, err := archive.ReadBatchFile(path)
	require.NoError(t, err)
	require.Len(t, bf.Reviews, 2)

	assert.Equal(t, "kept-run", bf.Reviews[0].RunID)
	assert.Equal(t, []string{"Some Paper"}, bf.Reviews[0].Selected)

	second := bf.Reviews[1]
	assert.Equal(t, types.StateDone, second.State)
	assert.NotEmpty(t, second.RunID)
	assert.Equal(t, []string{"Attention Is All You Need"}, second.Selected)
	require.NotNil(t, second.FinishedAt)

	store, err := archive.Open(types.ArchiveConfig{Dir: env.archiveDir})
	require.NoError(t, err)
	defer store.Close()
	saved, err := store.Get(t.Context(), second.RunID)
	require.NoError(t, err)
	assert.Equal(t, "attention mechanisms", saved.Request.Topic)

	// A second pass has nothing left to run.
	out, err = execute(t, "batch", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 0 reviews (0 failed, 2 skipped)")
	assert.Equal(t, int32(3), env.chat.calls.Load())
}

func TestBatchCommandRecordsFailure(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("LITREV_SEARCH_BASE_URL", "http://127.0.0.1:1")

	path := filepath.Join(t.TempDir(), "reviews.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reviews:\n  - topic: unreachable\n    num_papers: 1\n"), 0o644))

	_, err := execute(t, "batch", "--file", path)
	assert.ErrorContains(t, err, "1 of 1 reviews failed")

	bf, err := archive.ReadBatchFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, bf.Reviews[0].State)
	assert.Contains(t, bf.Reviews[0].Error, "search unavailable")
	assert.Equal(t, int32(1), env.chat.calls.Load(), "summarizer never runs")
}
