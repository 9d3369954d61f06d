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
	"strings"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// OpenAlexConfig configures the OpenAlex client.
type OpenAlexConfig struct {
	BaseURL string // default https://api.openalex.org
	// Email enables the "polite pool" (mailto= param) and a higher rate.
	Email string
}

// OpenAlexClient implements Client against the OpenAlex Works API.
type OpenAlexClient struct {
	cfg      OpenAlexConfig
	client   *http.Client
	throttle *Throttle
}

// NewOpenAlexClient builds an OpenAlexClient.
func NewOpenAlexClient(cfg OpenAlexConfig) *OpenAlexClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openalex.org"
	}
	return &OpenAlexClient{
		cfg:    cfg,
		client: newHTTPClient(0),
		throttle: NewThrottle(RateLimiterConfig{
			RequestsPerSecond:                10,
			RequestsPerSecondWithCredentials: 10, // polite pool raises the shared pool's ceiling, not this client's
		}, cfg.Email != ""),
	}
}

func (c *OpenAlexClient) Name() string { return "openalex" }

func (c *OpenAlexClient) IsAvailable(ctx context.Context) bool {
	if err := c.throttle.Wait(ctx); err != nil {
		return false
	}
	var out openAlexListResponse
	q := url.Values{"per_page": {"1"}}
	if c.cfg.Email != "" {
		q.Set("mailto", c.cfg.Email)
	}
	err := getJSON(ctx, c.client, c.cfg.BaseURL+"/works", q, nil, &out)
	return err == nil
}

func (c *OpenAlexClient) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	q := url.Values{}
	q.Set("search", opts.Query)
	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("sort", openAlexSort(opts.SortBy))
	if c.cfg.Email != "" {
		q.Set("mailto", c.cfg.Email)
	}

	var filters []string
	if opts.YearFrom > 0 {
		filters = append(filters, "from_publication_date:"+strconv.Itoa(opts.YearFrom)+"-01-01")
	}
	if opts.YearTo > 0 {
		filters = append(filters, "to_publication_date:"+strconv.Itoa(opts.YearTo)+"-12-31")
	}
	if opts.OpenAccess {
		filters = append(filters, "is_oa:true")
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	var out openAlexListResponse
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/works", q, nil, &out); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	papers := make([]*paper.Paper, 0, len(out.Results))
	for _, w := range out.Results {
		papers = append(papers, mapOpenAlexWork(w))
	}
	return SearchResult{Papers: papers, TotalHits: out.Meta.Count, Source: c.Name()}, nil
}

func (c *OpenAlexClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var w openAlexWork
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/works/"+nativeID, nil, nil, &w); err != nil {
		return nil, err
	}
	return mapOpenAlexWork(w), nil
}

func openAlexSort(s SortBy) string {
	switch s {
	case SortCitations:
		return "cited_by_count:desc"
	case SortDate:
		return "publication_date:desc"
	default:
		return "relevance_score:desc"
	}
}

type openAlexListResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                string `json:"id"`
	DOI               string `json:"doi"`
	Title             string `json:"display_name"`
	PublicationYear   int    `json:"publication_year"`
	CitedByCount      int    `json:"cited_by_count"`
	IsOA              bool   `json:"is_oa"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships       []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
		PDFURL string `json:"pdf_url"`
	} `json:"primary_location"`
	Concepts []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
}

func mapOpenAlexWork(w openAlexWork) *paper.Paper {
	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}
	subjects := make([]string, 0, len(w.Concepts))
	for _, c := range w.Concepts {
		subjects = append(subjects, c.DisplayName)
	}

	abstract := reconstructAbstract(w.AbstractInvertedIndex)

	availability := paper.MetadataOnly
	if abstract != "" {
		availability = paper.WithAbstract
	}
	if w.PrimaryLocation.PDFURL != "" {
		availability = paper.WithPDFLink
	}

	citations := w.CitedByCount
	nativeID := strings.TrimPrefix(w.ID, "https://openalex.org/")

	return &paper.Paper{
		ID:               paper.DeriveID(w.DOI, "openalex", nativeID),
		Title:            w.Title,
		Authors:          authors,
		Year:             w.PublicationYear,
		Abstract:         abstract,
		Journal:          w.PrimaryLocation.Source.DisplayName,
		DOI:              w.DOI,
		Subjects:         subjects,
		DataAvailability: availability,
		SourceOrigin:     []string{"openalex"},
		Citations:        &citations,
		OpenAccess:       w.IsOA,
		PDFURL:           w.PrimaryLocation.PDFURL,
	}
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted index
// representation (word -> []position).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			words[p] = word
		}
	}
	return strings.Join(words, " ")
}
