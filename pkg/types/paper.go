// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litrev assistant:
// paper records returned by the search tool, review requests, the messages
// exchanged during a review conversation, and the configuration of each
// stage.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dateLayout is the wire format for publication dates.
const dateLayout = "2006-01-02"

// Date is a calendar date that serializes as YYYY-MM-DD in both JSON and YAML.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// String returns the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts YYYY-MM-DD
// and full RFC 3339 timestamps.
func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		*d = Date{t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	*d = NewDate(t)
	return nil
}

// MarshalJSON overrides the promoted time.Time method so dates stay YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a YYYY-MM-DD or RFC 3339 string, or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date %s: %w", b, err)
	}
	return d.UnmarshalText([]byte(s))
}

// PaperRecord is one paper returned by the search tool. Records are treated
// as immutable once produced: the conversation copies them, it never edits
// them in place.
type PaperRecord struct {
	// ID is the backend identifier (arXiv ID, DOI, or Semantic Scholar paper ID).
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the publication or preprint date.
	Published Date `json:"published" yaml:"published"`

	// Summary is the paper abstract.
	Summary string `json:"summary" yaml:"summary"`

	// PDFURL links to the full text, when the source exposes one.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Source names the backend that produced the record (e.g. "arxiv").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}
