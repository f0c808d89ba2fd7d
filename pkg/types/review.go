// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Review is the outcome of one conversation run. It is what the archive
// persists and what `litrev history show` prints.
type Review struct {
	// ID is a UUID assigned when the run starts.
	ID string `json:"id" yaml:"id"`

	Request ReviewRequest `json:"request" yaml:"request"`

	// Model is the chat model name both roles ran on.
	Model string `json:"model" yaml:"model"`

	// State is the final state of the run (done or failed).
	State RunState `json:"state" yaml:"state"`

	// Error holds the failure message when State is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Candidates are the papers fetched by the searcher's tool calls.
	Candidates []PaperRecord `json:"candidates" yaml:"candidates"`

	// Selected are the papers the searcher forwarded to the summarizer.
	Selected []PaperRecord `json:"selected" yaml:"selected"`

	// Markdown is the summarizer's review.
	Markdown string `json:"markdown" yaml:"markdown"`

	Transcript []ConversationMessage `json:"transcript" yaml:"transcript"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration returns the wall time of the run, or zero if it has not finished.
func (r Review) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
