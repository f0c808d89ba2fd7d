// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conversation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

// summarizerTurn asks the summarizer for the markdown review of the
// selected papers. The summarizer has no tools and answers exactly once.
func (o *Orchestrator) summarizerTurn(ctx context.Context, emit emitFunc) error {
	role := o.summarizer

	o.mu.Lock()
	selected := append([]types.PaperRecord(nil), o.review.Selected...)
	o.mu.Unlock()

	papers, err := encodePapers(selected)
	if err != nil {
		return err
	}
	task, err := summarizerTask(o.req.Topic, papers, len(selected))
	if err != nil {
		return err
	}

	resp, err := o.complete(ctx, role.Name, model.Request{
		Messages: []model.Message{model.System(role.Instructions), model.User(task)},
	})
	if err != nil {
		return err
	}
	if len(resp.ToolCalls) > 0 {
		return violation(role.Name, "requested tool %q but has no tools", resp.ToolCalls[0].Name)
	}
	markdown := strings.TrimSpace(resp.Content)
	if markdown == "" {
		return violation(role.Name, "returned an empty review")
	}

	if missing := uncoveredTitles(markdown, selected); len(missing) > 0 {
		o.log.Warn("review does not mention every selected paper", zap.Strings("missing", missing))
	}

	o.mu.Lock()
	o.review.Markdown = markdown
	o.mu.Unlock()

	err = emit(types.SenderSummarizer, types.KindText, "", markdown)
	if errors.Is(err, ErrAbandoned) {
		// The final message was delivered; there is nothing left to abandon.
		return nil
	}
	return err
}

// uncoveredTitles returns the titles of papers the markdown never names.
func uncoveredTitles(markdown string, papers []types.PaperRecord) []string {
	body := search.NormalizeTitle(markdown)
	var missing []string
	for _, p := range papers {
		if !strings.Contains(body, search.NormalizeTitle(p.Title)) {
			missing = append(missing, p.Title)
		}
	}
	return missing
}
