// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OverFetchFactor is how many candidates the searcher fetches per requested
// paper before down-selecting.
const OverFetchFactor = 5

// ErrInvalidRequest is returned when a ReviewRequest fails validation.
var ErrInvalidRequest = errors.New("invalid review request")

// ReviewRequest is the caller-supplied input to one conversation run.
type ReviewRequest struct {
	// Topic is the free-text research topic.
	Topic string `json:"topic" yaml:"topic"`

	// NumPapers is how many papers the review should cover. Must be positive.
	NumPapers int `json:"num_papers" yaml:"num_papers"`
}

// Validate reports whether the request can start a run.
func (r ReviewRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidRequest)
	}
	if r.NumPapers <= 0 {
		return fmt.Errorf("%w: num_papers must be positive, got %d", ErrInvalidRequest, r.NumPapers)
	}
	return nil
}

// CandidateCount returns the number of candidates the searcher must fetch.
func (r ReviewRequest) CandidateCount() int {
	return r.NumPapers * OverFetchFactor
}

// Sender identifies the participant that produced a message.
type Sender string

const (
	SenderSearcher   Sender = "searcher"
	SenderSummarizer Sender = "summarizer"
)

// MessageKind distinguishes terminal text from tool traffic within a turn.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
)

// ConversationMessage is one element of the conversation stream. Seq starts
// at 1 and follows production order.
type ConversationMessage struct {
	Seq       int         `json:"seq" yaml:"seq"`
	Sender    Sender      `json:"sender" yaml:"sender"`
	Kind      MessageKind `json:"kind" yaml:"kind"`
	Content   string      `json:"content" yaml:"content"`
	Tool      string      `json:"tool,omitempty" yaml:"tool,omitempty"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
}

// IsTerminal reports whether the message ends its sender's turn.
func (m ConversationMessage) IsTerminal() bool {
	return m.Kind == KindText
}

// RunState is a state of the conversation state machine.
type RunState string

const (
	StateIdle           RunState = "idle"
	StateSearcherTurn   RunState = "searcher_turn"
	StateSummarizerTurn RunState = "summarizer_turn"
	StateDone           RunState = "done"
	StateFailed         RunState = "failed"
)

// Finished reports whether s is a terminal state.
func (s RunState) Finished() bool {
	return s == StateDone || s == StateFailed
}
