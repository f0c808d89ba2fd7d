// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

// compactPaper is the wire shape papers take inside the conversation:
// tool results, the searcher's forwarded selection, and the summarizer's
// input.
type compactPaper struct {
	Title     string     `json:"title"`
	Authors   []string   `json:"authors"`
	Published types.Date `json:"published"`
	Summary   string     `json:"summary"`
	PDFURL    string     `json:"pdf_url"`
}

// encodePapers renders papers as compact JSON.
func encodePapers(papers []types.PaperRecord) (string, error) {
	out := make([]compactPaper, 0, len(papers))
	for _, p := range papers {
		authors := p.Authors
		if authors == nil {
			authors = []string{}
		}
		out = append(out, compactPaper{
			Title:     p.Title,
			Authors:   authors,
			Published: p.Published,
			Summary:   p.Summary,
			PDFURL:    p.PDFURL,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// selectionEntry accepts either a paper object or a bare title string.
type selectionEntry struct {
	Title string
}

func (e *selectionEntry) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		e.Title = title
		return nil
	}
	var obj struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Title = obj.Title
	return nil
}

// parseSelection extracts the selected titles from the searcher's terminal
// text. It accepts a JSON array, an object with a "papers" array, and
// either of those inside a Markdown code fence or surrounded by prose.
func parseSelection(text string) ([]string, error) {
	for _, candidate := range jsonCandidates(text) {
		entries, ok := decodeEntries(candidate)
		if !ok {
			continue
		}
		titles := make([]string, 0, len(entries))
		for _, e := range entries {
			titles = append(titles, e.Title)
		}
		return titles, nil
	}
	return nil, errors.New("no JSON paper list found in reply")
}

func decodeEntries(s string) ([]selectionEntry, bool) {
	var list []selectionEntry
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list, true
	}
	var wrapped struct {
		Papers []selectionEntry `json:"papers"`
	}
	if err := json.Unmarshal([]byte(s), &wrapped); err == nil && wrapped.Papers != nil {
		return wrapped.Papers, true
	}
	return nil, false
}

// jsonCandidates returns the substrings of text worth trying as JSON, most
// specific first.
func jsonCandidates(text string) []string {
	text = strings.TrimSpace(text)
	out := []string{text}

	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			out = append(out, strings.TrimSpace(body[:end]))
		}
	}
	if i, j := strings.IndexByte(text, '['), strings.LastIndexByte(text, ']'); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	if i, j := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	return out
}

// resolveSelection maps selected titles onto fetched candidates by
// normalized title. The result keeps the searcher's order.
func resolveSelection(titles []string, candidates []types.PaperRecord, limit int) ([]types.PaperRecord, error) {
	if len(titles) == 0 {
		return nil, errors.New("selection is empty")
	}
	if len(titles) > limit {
		return nil, fmt.Errorf("selected %d papers, at most %d allowed", len(titles), limit)
	}

	index := make(map[string]types.PaperRecord, len(candidates))
	for _, c := range candidates {
		key := search.NormalizeTitle(c.Title)
		if _, ok := index[key]; !ok {
			index[key] = c
		}
	}

	seen := make(map[string]bool, len(titles))
	selected := make([]types.PaperRecord, 0, len(titles))
	for _, title := range titles {
		key := search.NormalizeTitle(title)
		if key == "" {
			return nil, errors.New("selection entry has no title")
		}
		p, ok := index[key]
		if !ok {
			return nil, fmt.Errorf("selected title %q was not returned by the search tool", title)
		}
		if seen[key] {
			return nil, fmt.Errorf("title %q selected more than once", title)
		}
		seen[key] = true
		selected = append(selected, p)
	}
	return selected, nil
}

// mergeCandidates appends results not already present by normalized title,
// stopping once the pool holds limit papers. A non-positive limit means no cap.
func mergeCandidates(existing, results []types.PaperRecord, limit int) []types.PaperRecord {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[search.NormalizeTitle(p.Title)] = true
	}
	for _, p := range results {
		if limit > 0 && len(existing) >= limit {
			break
		}
		key := search.NormalizeTitle(p.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, p)
	}
	return existing
}
