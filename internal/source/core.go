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

// COREConfig configures the CORE client (core.ac.uk).
type COREConfig struct {
	BaseURL string // default https://api.core.ac.uk/v3
	APIKey  string // required by CORE v3
}

// COREClient implements Client against the CORE v3 Search API.
type COREClient struct {
	cfg      COREConfig
	client   *http.Client
	throttle *Throttle
}

// NewCOREClient builds a COREClient.
func NewCOREClient(cfg COREConfig) *COREClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.core.ac.uk/v3"
	}
	return &COREClient{
		cfg:    cfg,
		client: newHTTPClient(0),
		throttle: NewThrottle(RateLimiterConfig{
			RequestsPerSecond:                2,
			RequestsPerSecondWithCredentials: 10,
		}, cfg.APIKey != ""),
	}
}

func (c *COREClient) Name() string { return "core" }

func (c *COREClient) headers() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

func (c *COREClient) IsAvailable(ctx context.Context) bool {
	if err := c.throttle.Wait(ctx); err != nil {
		return false
	}
	var out coreSearchResponse
	q := url.Values{"q": {"test"}, "limit": {"1"}}
	err := getJSON(ctx, c.client, c.cfg.BaseURL+"/search/works", q, c.headers(), &out)
	return err == nil
}

func (c *COREClient) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}

	query := opts.Query
	var filters []string
	if opts.YearFrom > 0 {
		filters = append(filters, "yearPublished>="+strconv.Itoa(opts.YearFrom))
	}
	if opts.YearTo > 0 {
		filters = append(filters, "yearPublished<="+strconv.Itoa(opts.YearTo))
	}
	if len(filters) > 0 {
		query = query + " AND " + strings.Join(filters, " AND ")
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var out coreSearchResponse
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/search/works", q, c.headers(), &out); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	papers := make([]*paper.Paper, 0, len(out.Results))
	for _, w := range out.Results {
		papers = append(papers, mapCOREWork(w))
	}
	return SearchResult{Papers: papers, TotalHits: out.TotalHits, Source: c.Name()}, nil
}

func (c *COREClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var w coreWork
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/works/"+nativeID, nil, c.headers(), &w); err != nil {
		return nil, err
	}
	return mapCOREWork(w), nil
}

type coreSearchResponse struct {
	TotalHits int        `json:"totalHits"`
	Results   []coreWork `json:"results"`
}

type coreWork struct {
	ID            int    `json:"id"`
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	YearPublished int    `json:"yearPublished"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	DownloadURL   string   `json:"downloadUrl"`
	PublisherName string   `json:"publisher"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
}

func mapCOREWork(w coreWork) *paper.Paper {
	authors := make([]string, 0, len(w.Authors))
	for _, a := range w.Authors {
		authors = append(authors, a.Name)
	}

	availability := paper.MetadataOnly
	if w.Abstract != "" {
		availability = paper.WithAbstract
	}
	if w.DownloadURL != "" {
		availability = paper.WithPDFLink
	}

	return &paper.Paper{
		ID:               paper.DeriveID(w.DOI, "core", strconv.Itoa(w.ID)),
		Title:            w.Title,
		Authors:          authors,
		Year:             w.YearPublished,
		Abstract:         w.Abstract,
		Journal:          w.PublisherName,
		DOI:              w.DOI,
		Subjects:         w.FieldsOfStudy,
		DataAvailability: availability,
		SourceOrigin:     []string{"core"},
		OpenAccess:       true, // CORE aggregates open-access repositories only
		PDFURL:           w.DownloadURL,
	}
}
