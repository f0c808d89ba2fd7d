// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conversation

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/pdiddy/litrev/internal/model"
	"github.com/pdiddy/litrev/pkg/types"
)

// SearchToolName is the function name the searcher role calls.
const SearchToolName = "search_papers"

const (
	searcherName   = "search_agent"
	summarizerName = "summarizer"
)

// Role is the declarative configuration of one participant: what it is
// told, which tools it may call, and whether it reflects on tool output.
type Role struct {
	Name             string
	Description      string
	Instructions     string
	Tools            []model.ToolSpec
	ReflectOnToolUse bool
}

// HasTool reports whether the role may call name.
func (r Role) HasTool(name string) bool {
	for _, t := range r.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

var searcherInstructionsTmpl = template.Must(template.New("searcher").Parse(`Given a user topic, think of the best arXiv query and call the provided {{.Tool}} tool. Always fetch five times the papers requested ({{.Candidates}} for this task) so that you can down-select the most relevant ones. When the tool returns, choose exactly {{.NumPapers}} of the returned papers and pass them to the summarizer as concise JSON: an array of objects with "title", "authors", "published", "summary" and "pdf_url" fields. Copy titles exactly as the tool returned them. Do not add any text outside the JSON array.`))

var searcherTaskTmpl = template.Must(template.New("searcher-task").Parse(`Conduct a literature review on the topic: {{.Topic}}
Number of papers to review: {{.NumPapers}}`))

var summarizerInstructionsTmpl = template.Must(template.New("summarizer").Parse(`You are an expert researcher. When you receive the JSON list of papers, write a literature-review style report in Markdown:
1. Start with a 2-3 sentence introduction of the topic.
2. Then include one bullet per paper with: title (as a Markdown link to the pdf_url), authors, the specific problem tackled, and its key contribution.
3. Close with a single-sentence takeaway.
Mention every paper by its exact title.`))

var summarizerTaskTmpl = template.Must(template.New("summarizer-task").Parse(`Topic: {{.Topic}}
Selected papers ({{.Count}}):
{{.Papers}}`))

// SearchToolSpec is the schema of the search_papers tool.
func SearchToolSpec() model.ToolSpec {
	return model.ToolSpec{
		Name: SearchToolName,
		Description: "Searches arXiv and returns up to max_results papers, each containing " +
			"title, authors, publication date, abstract, and pdf_url.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query for the paper index.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Number of candidate papers to fetch.",
				},
			},
			"required": []string{"query", "max_results"},
		},
	}
}

// SearcherRole returns the searcher's configuration for req.
func SearcherRole(req types.ReviewRequest, reflect bool) (Role, error) {
	instructions, err := render(searcherInstructionsTmpl, struct {
		Tool       string
		NumPapers  int
		Candidates int
	}{SearchToolName, req.NumPapers, req.CandidateCount()})
	if err != nil {
		return Role{}, fmt.Errorf("rendering searcher instructions: %w", err)
	}
	return Role{
		Name:             searcherName,
		Description:      "Crafts arXiv queries and retrieves candidate papers.",
		Instructions:     instructions,
		Tools:            []model.ToolSpec{SearchToolSpec()},
		ReflectOnToolUse: reflect,
	}, nil
}

// SummarizerRole returns the summarizer's configuration. It has no tools.
func SummarizerRole() (Role, error) {
	instructions, err := render(summarizerInstructionsTmpl, nil)
	if err != nil {
		return Role{}, fmt.Errorf("rendering summarizer instructions: %w", err)
	}
	return Role{
		Name:         summarizerName,
		Description:  "Produces a short Markdown review from provided papers.",
		Instructions: instructions,
	}, nil
}

func searcherTask(req types.ReviewRequest) (string, error) {
	return render(searcherTaskTmpl, req)
}

func summarizerTask(topic, papersJSON string, count int) (string, error) {
	return render(summarizerTaskTmpl, struct {
		Topic  string
		Papers string
		Count  int
	}{topic, papersJSON, count})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
