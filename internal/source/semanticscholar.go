// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// SemanticScholarConfig configures the Semantic Scholar client.
type SemanticScholarConfig struct {
	BaseURL string // default https://api.semanticscholar.org/graph/v1
	APIKey  string
}

const semanticScholarFields = "title,abstract,year,authors,venue,citationCount,isOpenAccess,openAccessPdf,externalIds,publicationTypes,fieldsOfStudy"

// SemanticScholarClient implements Client against the Semantic Scholar
// Graph API.
type SemanticScholarClient struct {
	cfg      SemanticScholarConfig
	client   *http.Client
	throttle *Throttle
}

// NewSemanticScholarClient builds a SemanticScholarClient.
func NewSemanticScholarClient(cfg SemanticScholarConfig) *SemanticScholarClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.semanticscholar.org/graph/v1"
	}
	return &SemanticScholarClient{
		cfg:    cfg,
		client: newHTTPClient(0),
		throttle: NewThrottle(RateLimiterConfig{
			RequestsPerSecond:                1,
			RequestsPerSecondWithCredentials: 10,
		}, cfg.APIKey != ""),
	}
}

func (c *SemanticScholarClient) Name() string { return "semantic_scholar" }

func (c *SemanticScholarClient) headers() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.cfg.APIKey}
}

func (c *SemanticScholarClient) IsAvailable(ctx context.Context) bool {
	if err := c.throttle.Wait(ctx); err != nil {
		return false
	}
	var out semanticScholarSearchResponse
	q := url.Values{"query": {"test"}, "limit": {"1"}}
	err := getJSON(ctx, c.client, c.cfg.BaseURL+"/paper/search", q, c.headers(), &out)
	return err == nil
}

func (c *SemanticScholarClient) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := url.Values{}
	q.Set("query", opts.Query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", semanticScholarFields)
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		q.Set("year", yearRangeParam(opts.YearFrom, opts.YearTo))
	}
	if s := semanticScholarSort(opts.SortBy); s != "" {
		q.Set("sort", s)
	}

	var out semanticScholarSearchResponse
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/paper/search", q, c.headers(), &out); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	papers := make([]*paper.Paper, 0, len(out.Data))
	for _, d := range out.Data {
		papers = append(papers, mapSemanticScholarPaper(d))
	}
	return SearchResult{Papers: papers, TotalHits: out.Total, Source: c.Name()}, nil
}

func (c *SemanticScholarClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"fields": {semanticScholarFields}}
	var d semanticScholarPaper
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/paper/"+nativeID, q, c.headers(), &d); err != nil {
		return nil, err
	}
	return mapSemanticScholarPaper(d), nil
}

func semanticScholarSort(s SortBy) string {
	switch s {
	case SortCitations:
		return "citationCount:desc"
	case SortDate:
		return "publicationDate:desc"
	default:
		return ""
	}
}

func yearRangeParam(from, to int) string {
	switch {
	case from > 0 && to > 0:
		return strconv.Itoa(from) + "-" + strconv.Itoa(to)
	case from > 0:
		return strconv.Itoa(from) + "-"
	case to > 0:
		return "-" + strconv.Itoa(to)
	default:
		return ""
	}
}

type semanticScholarSearchResponse struct {
	Total int                   `json:"total"`
	Data  []semanticScholarPaper `json:"data"`
}

type semanticScholarPaper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	Venue         string `json:"venue"`
	CitationCount int    `json:"citationCount"`
	IsOpenAccess  bool   `json:"isOpenAccess"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPDF struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	ExternalIDs struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
		PMID  string `json:"PubMed"`
	} `json:"externalIds"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
}

func mapSemanticScholarPaper(p semanticScholarPaper) *paper.Paper {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, a.Name)
	}

	availability := paper.MetadataOnly
	if p.Abstract != "" {
		availability = paper.WithAbstract
	}
	if p.OpenAccessPDF.URL != "" {
		availability = paper.WithPDFLink
	}

	citations := p.CitationCount

	return &paper.Paper{
		ID:               paper.DeriveID(p.ExternalIDs.DOI, "semantic_scholar", p.PaperID),
		Title:            p.Title,
		Authors:          authors,
		Year:             p.Year,
		Abstract:         p.Abstract,
		Venue:            p.Venue,
		DOI:              p.ExternalIDs.DOI,
		ArxivID:          p.ExternalIDs.ArXiv,
		PMID:             p.ExternalIDs.PMID,
		Subjects:         p.FieldsOfStudy,
		DataAvailability: availability,
		SourceOrigin:     []string{"semantic_scholar"},
		Citations:        &citations,
		OpenAccess:       p.IsOpenAccess,
		PDFURL:           p.OpenAccessPDF.URL,
	}
}
