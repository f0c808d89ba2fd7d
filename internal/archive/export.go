// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litrev/internal/search"
	"github.com/pdiddy/litrev/pkg/types"
)

// ExportFormat selects the encoding written by Export.
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
	FormatCSL  ExportFormat = "csl"
)

// Export writes the review with the given ID to w. YAML and JSON carry the
// whole review; CSL carries only the selected papers as a bibliography.
func (s *Store) Export(ctx context.Context, id string, format ExportFormat, w io.Writer) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return WriteReview(r, format, w)
}

// WriteReview encodes r in format to w.
func WriteReview(r types.Review, format ExportFormat, w io.Writer) error {
	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	case FormatCSL:
		return search.FormatCSL(r.Selected, w)
	default:
		return fmt.Errorf("unknown export format %q: use yaml, json, or csl", format)
	}
}
