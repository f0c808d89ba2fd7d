// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conversation

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/pkg/types"
)

// extraCallResult answers every tool call after the first in one response.
const extraCallResult = `{"error":"only one search_papers call is allowed per round; this call was not run"}`

// searchArgs are the arguments of a search_papers call.
type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searcherTurn runs the searcher until it produces its terminal selection.
// The role gets at most MaxToolRounds rounds of tool calls; the call after
// the last round is made without tools so the turn always ends in text.
func (o *Orchestrator) searcherTurn(ctx context.Context, emit emitFunc) error {
	role := o.searcher
	task, err := searcherTask(o.req)
	if err != nil {
		return err
	}
	history := []model.Message{model.System(role.Instructions), model.User(task)}

	rounds := 0
	for {
		req := model.Request{Messages: history}
		if rounds < o.cfg.MaxToolRounds {
			req.Tools = role.Tools
		}
		resp, err := o.complete(ctx, role.Name, req)
		if err != nil {
			return err
		}

		if len(resp.ToolCalls) == 0 {
			return o.acceptSelection(role, resp.Content, emit)
		}
		if rounds >= o.cfg.MaxToolRounds {
			return violation(role.Name, "requested a tool after %d tool round(s)", rounds)
		}
		rounds++

		history = append(history, model.Assistant(resp))
		for i, call := range resp.ToolCalls {
			if i > 0 {
				// Only the first call of a round runs.
				o.log.Warn("ignoring extra tool call in round",
					zap.Int("round", rounds),
					zap.String("tool", call.Name),
					zap.String("call_id", call.ID))
				history = append(history, model.ToolResult(call.ID, extraCallResult))
				continue
			}
			result, err := o.runToolCall(ctx, role, call, emit)
			if err != nil {
				return err
			}
			history = append(history, model.ToolResult(call.ID, result))
		}

		if !role.ReflectOnToolUse {
			return o.forwardCandidates(emit)
		}
	}
}

// runToolCall executes one search_papers call and emits its call and
// result messages. It returns the result payload for the model history.
func (o *Orchestrator) runToolCall(ctx context.Context, role Role, call model.ToolCall, emit emitFunc) (string, error) {
	if !role.HasTool(call.Name) {
		return "", violation(role.Name, "called unknown tool %q", call.Name)
	}

	var args searchArgs
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", violation(role.Name, "malformed %s arguments: %v", call.Name, err)
		}
	}
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		args.Query = o.req.Topic
	}
	want := o.req.CandidateCount()
	if args.MaxResults != want {
		o.log.Debug("overriding max_results",
			zap.Int("requested", args.MaxResults),
			zap.Int("max_results", want))
		args.MaxResults = want
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	if err := emit(types.SenderSearcher, types.KindToolCall, call.Name, string(payload)); err != nil {
		return "", err
	}

	results, err := o.searchPapers(ctx, args.Query, args.MaxResults)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.review.Candidates = mergeCandidates(o.review.Candidates, results, want)
	o.mu.Unlock()

	o.log.Info("search returned",
		zap.String("query", args.Query),
		zap.Int("max_results", args.MaxResults),
		zap.Int("results", len(results)))

	encoded, err := encodePapers(results)
	if err != nil {
		return "", err
	}
	if err := emit(types.SenderSearcher, types.KindToolResult, call.Name, encoded); err != nil {
		return "", err
	}
	return encoded, nil
}

// acceptSelection validates the searcher's terminal text against the
// fetched candidates, records the selection and emits the text.
func (o *Orchestrator) acceptSelection(role Role, content string, emit emitFunc) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return violation(role.Name, "ended its turn with empty content")
	}

	o.mu.Lock()
	candidates := o.review.Candidates
	o.mu.Unlock()
	if len(candidates) == 0 {
		return violation(role.Name, "answered without search results to select from")
	}

	titles, err := parseSelection(text)
	if err != nil {
		return violation(role.Name, "%v", err)
	}
	selected, err := resolveSelection(titles, candidates, o.req.NumPapers)
	if err != nil {
		return violation(role.Name, "%v", err)
	}

	o.mu.Lock()
	o.review.Selected = selected
	o.mu.Unlock()
	o.log.Info("selection accepted", zap.Int("selected", len(selected)), zap.Int("candidates", len(candidates)))

	return emit(types.SenderSearcher, types.KindText, "", text)
}

// forwardCandidates ends the turn without a reflection call by forwarding
// the first NumPapers candidates.
func (o *Orchestrator) forwardCandidates(emit emitFunc) error {
	o.mu.Lock()
	selected := o.review.Candidates
	if len(selected) > o.req.NumPapers {
		selected = selected[:o.req.NumPapers]
	}
	selected = append([]types.PaperRecord(nil), selected...)
	o.review.Selected = selected
	o.mu.Unlock()

	if len(selected) == 0 {
		return violation(o.searcher.Name, "search returned no papers to forward")
	}
	text, err := encodePapers(selected)
	if err != nil {
		return err
	}
	return emit(types.SenderSearcher, types.KindText, "", text)
}
