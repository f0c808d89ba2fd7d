// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search wraps a paper-search API as the tool the searcher role
// calls. A Tool validates arguments, rate-limits outbound calls, and maps
// every backend failure to ErrUnavailable. It returns results in the order
// the upstream service ranked them and never re-sorts locally.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/litrev/pkg/types"
)

var (
	// ErrUnavailable marks failures of the upstream search service:
	// unreachable host, non-200 status, or a malformed response body.
	ErrUnavailable = errors.New("search unavailable")

	// ErrInvalidMaxResults is returned for a non-positive result cap.
	ErrInvalidMaxResults = errors.New("max_results must be positive")

	// ErrEmptyQuery is returned when the query has no searchable terms.
	ErrEmptyQuery = errors.New("query is empty")
)

// UnavailableError wraps a backend failure. errors.Is(err, ErrUnavailable)
// holds for every UnavailableError.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("search unavailable (%s): %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable as a match.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Backend queries one paper-search API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error)
}

// Tool is the search capability bound to the searcher role.
type Tool struct {
	backend Backend
	limiter *rate.Limiter
	client  *http.Client
	log     *zap.Logger
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithLogger sets the tool's logger.
func WithLogger(l *zap.Logger) ToolOption {
	return func(t *Tool) { t.log = l }
}

// WithHTTPClient records the client owned by the backend so Close can
// release its idle connections.
func WithHTTPClient(c *http.Client) ToolOption {
	return func(t *Tool) { t.client = c }
}

// WithRequestInterval spaces outbound calls at least d apart. Zero disables
// limiting.
func WithRequestInterval(d time.Duration) ToolOption {
	return func(t *Tool) {
		if d <= 0 {
			t.limiter = nil
			return
		}
		t.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewTool wraps backend as a search tool.
func NewTool(backend Backend, opts ...ToolOption) *Tool {
	t := &Tool{backend: backend, log: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// New builds the tool described by cfg with its own HTTP client.
func New(cfg types.SearchConfig, log *zap.Logger) (*Tool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout}

	var backend Backend
	switch cfg.Backend {
	case types.BackendArxiv, "":
		backend = &ArxivBackend{BaseURL: cfg.BaseURL, Client: client, UserAgent: cfg.UserAgent, MaxRetries: cfg.MaxRetries, Log: log}
	case types.BackendSemanticScholar:
		backend = &SemanticScholarBackend{BaseURL: cfg.BaseURL, Client: client, UserAgent: cfg.UserAgent, APIKey: cfg.SemanticScholarAPIKey, MaxRetries: cfg.MaxRetries, Log: log}
	default:
		return nil, fmt.Errorf("unknown search backend %q: use arxiv or semantic_scholar", cfg.Backend)
	}

	return NewTool(backend,
		WithHTTPClient(client),
		WithRequestInterval(cfg.RequestInterval),
		WithLogger(log.With(zap.String("component", "search"), zap.String("backend", backend.Name()))),
	), nil
}

// Name returns the backend identifier.
func (t *Tool) Name() string { return t.backend.Name() }

// Search returns up to maxResults papers matching query, ranked by the
// upstream service.
func (t *Tool) Search(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error) {
	if maxResults <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxResults, maxResults)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
	}

	t.log.Debug("searching", zap.String("query", query), zap.Int("max_results", maxResults))

	results, err := t.backend.Search(ctx, query, maxResults)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnavailableError{Backend: t.backend.Name(), Err: err}
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	t.log.Debug("search complete", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// Close releases idle connections held by the tool's HTTP client.
func (t *Tool) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}

// NormalizeTitle returns a lowercased, punctuation-stripped version of the
// title with whitespace collapsed. Two titles that differ only in case,
// punctuation, or spacing normalize to the same string.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// collapseSpace folds runs of whitespace (including the line breaks arXiv
// puts inside titles and abstracts) into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.PaperRecord, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-10s  %s\n",
		"Rank", "Title", "Authors", "Published", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, p := range papers {
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-10s  %s\n",
			i+1, truncate(p.Title, 60), formatAuthors(p.Authors), p.Published.String(), p.Source)
	}

	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.PaperRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

// truncate shortens s to max runes, ending in "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
