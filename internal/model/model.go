// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package model is the boundary to the chat-completion host. It defines the
// small message and tool-call vocabulary the conversation needs and an
// OpenAI-compatible client (Ollama, vLLM, OpenAI) that speaks it.
package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks failures of the chat-completion host.
var ErrUnavailable = errors.New("model unavailable")

// UnavailableError wraps a host failure. StatusCode is set when the host
// answered with an HTTP error.
type UnavailableError struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model unavailable (%s, HTTP %d): %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model unavailable (%s): %v", e.Model, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable as a match.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// Message is one entry of the chat history sent to the model.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
}

// ToolSpec declares a function the model may call. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// Usage reports token counts when the host returns them.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is the first choice of a completion.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// ChatModel completes a chat history.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message echoing a previous response, tool
// calls included, so the host can match tool results to calls.
func Assistant(r Response) Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.ToolCalls}
}

// ToolResult returns the message answering call id.
func ToolResult(id, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: id}
}
