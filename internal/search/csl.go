package search

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litrev/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-JSON/CSL-YAML schema
// so that output is consumable by Pandoc and reference managers.
type CSLItem struct {
	ID       string    `yaml:"id" json:"id"`
	Type     string    `yaml:"type" json:"type"`
	Title    string    `yaml:"title" json:"title"`
	Author   []CSLName `yaml:"author,omitempty" json:"author,omitempty"`
	Abstract string    `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Issued   *CSLDate  `yaml:"issued,omitempty" json:"issued,omitempty"`
	DOI      string    `yaml:"DOI,omitempty" json:"DOI,omitempty"`
	URL      string    `yaml:"URL,omitempty" json:"URL,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty" json:"family,omitempty"`
	Given   string `yaml:"given,omitempty" json:"given,omitempty"`
	Literal string `yaml:"literal,omitempty" json:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts" json:"date-parts"`
}

// FormatCSL writes papers as a CSL-YAML list to w.
func FormatCSL(papers []types.PaperRecord, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(ToCSL(papers))
}

// ToCSL converts papers to CSL items in order.
func ToCSL(papers []types.PaperRecord) []CSLItem {
	items := make([]CSLItem, len(papers))
	for i, p := range papers {
		items[i] = toCSLItem(p)
	}
	return items
}

// toCSLItem converts a PaperRecord to a CSLItem. arXiv preprints are typed
// as "article"; the PDF link becomes the URL.
func toCSLItem(p types.PaperRecord) CSLItem {
	item := CSLItem{
		ID:       p.ID,
		Type:     "article",
		Title:    p.Title,
		Abstract: p.Summary,
		URL:      p.PDFURL,
	}
	if item.ID == "" {
		item.ID = NormalizeTitle(p.Title)
	}

	for _, a := range p.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}

	if !p.Published.IsZero() {
		item.Issued = &CSLDate{
			DateParts: [][]int{{p.Published.Year(), int(p.Published.Month()), p.Published.Day()}},
		}
	}

	// Set DOI if the identifier looks like one.
	if strings.HasPrefix(p.ID, "10.") {
		item.DOI = p.ID
	}

	return item
}

// parseAuthorName splits a full name string into CSL family/given parts.
// It splits on the last space: everything before is given, the last token
// is family. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
