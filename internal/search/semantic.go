// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/httputil"
	"github.com/pdiddy/litrev/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,openAccessPdf"

// semanticMaxLimit is the largest page size the search endpoint accepts.
const semanticMaxLimit = 100

// SemanticScholarBackend queries the Semantic Scholar Graph API.
type SemanticScholarBackend struct {
	// BaseURL overrides the search endpoint when set.
	BaseURL    string
	Client     *http.Client
	UserAgent  string
	APIKey     string
	MaxRetries int
	Log        *zap.Logger
}

// Name returns the backend identifier.
func (b *SemanticScholarBackend) Name() string { return "semantic_scholar" }

// Search queries Semantic Scholar and returns papers in relevance order.
func (b *SemanticScholarBackend) Search(ctx context.Context, query string, maxResults int) ([]types.PaperRecord, error) {
	q := strings.Join(strings.Fields(query), " ")
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}
	limit := maxResults
	if limit > semanticMaxLimit {
		limit = semanticMaxLimit
	}

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(limit)},
		"fields": {semanticFields},
	}

	base := semanticAPIBase
	if b.BaseURL != "" {
		base = b.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, httputil.Policy{MaxRetries: b.MaxRetries, Log: b.Log})
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	results := make([]types.PaperRecord, 0, len(sr.Data))
	for _, paper := range sr.Data {
		if strings.TrimSpace(paper.Title) == "" {
			continue
		}
		p := types.PaperRecord{
			ID:      paper.identifier(),
			Title:   collapseSpace(paper.Title),
			Summary: collapseSpace(paper.Abstract),
			Source:  "semantic_scholar",
		}
		if paper.OpenAccessPDF != nil {
			p.PDFURL = paper.OpenAccessPDF.URL
		}
		for _, a := range paper.Authors {
			p.Authors = append(p.Authors, a.Name)
		}
		if paper.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", paper.PublicationDate); parseErr == nil {
				p.Published = types.NewDate(t)
			}
		} else if paper.Year > 0 {
			p.Published = types.NewDate(time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC))
		}
		results = append(results, p)
	}
	return results, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF   *semanticPDF        `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticPDF struct {
	URL string `json:"url"`
}

// identifier prefers the arXiv ID, then the DOI, then the S2 paper ID.
func (p semanticPaper) identifier() string {
	switch {
	case p.ExternalIDs.ArXiv != "":
		return p.ExternalIDs.ArXiv
	case p.ExternalIDs.DOI != "":
		return p.ExternalIDs.DOI
	default:
		return p.PaperID
	}
}
