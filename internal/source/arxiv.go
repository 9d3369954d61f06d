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
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// ArxivConfig configures the arXiv client.
type ArxivConfig struct {
	BaseURL string // default http://export.arxiv.org/api/query
}

// ArxivClient implements Client against the arXiv Atom export API. arXiv
// has no distinct "credentialed" tier, so its rate never rises.
type ArxivClient struct {
	cfg      ArxivConfig
	client   *http.Client
	throttle *Throttle
}

// NewArxivClient builds an ArxivClient.
func NewArxivClient(cfg ArxivConfig) *ArxivClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://export.arxiv.org/api/query"
	}
	return &ArxivClient{
		cfg:      cfg,
		client:   newHTTPClient(0),
		throttle: NewThrottle(RateLimiterConfig{RequestsPerSecond: 1.0 / 3}, false), // arXiv asks for >=3s between requests
	}
}

func (c *ArxivClient) Name() string { return "arxiv" }

func (c *ArxivClient) IsAvailable(ctx context.Context) bool {
	if err := c.throttle.Wait(ctx); err != nil {
		return false
	}
	_, err := c.fetch(ctx, url.Values{"search_query": {"all:test"}, "max_results": {"1"}})
	return err == nil
}

func (c *ArxivClient) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("search_query", "all:"+opts.Query)
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", arxivSort(opts.SortBy))
	q.Set("sortOrder", "descending")

	feed, err := c.fetch(ctx, q)
	if err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	papers := make([]*paper.Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		p := mapArxivEntry(e)
		if opts.YearFrom > 0 && p.Year < opts.YearFrom {
			continue
		}
		if opts.YearTo > 0 && p.Year > opts.YearTo {
			continue
		}
		papers = append(papers, p)
	}
	return SearchResult{Papers: papers, TotalHits: feed.TotalResults, Source: c.Name()}, nil
}

func (c *ArxivClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	feed, err := c.fetch(ctx, url.Values{"id_list": {nativeID}})
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("arxiv: no entry for %s", nativeID)
	}
	return mapArxivEntry(feed.Entries[0]), nil
}

func (c *ArxivClient) fetch(ctx context.Context, q url.Values) (*arxivFeed, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "deep-research-orchestrator/1.0 ("+userAgentContact+")")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("arxiv: status %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode atom feed: %w", err)
	}
	return &feed, nil
}

func arxivSort(s SortBy) string {
	switch s {
	case SortDate:
		return "submittedDate"
	default:
		return "relevance"
	}
}

type arxivFeed struct {
	TotalResults int          `xml:"totalResults"`
	Entries      []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href string `xml:"href,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}

func mapArxivEntry(e arxivEntry) *paper.Paper {
	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		authors = append(authors, a.Name)
	}
	subjects := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		subjects = append(subjects, c.Term)
	}

	arxivID := strings.TrimPrefix(e.ID, "http://arxiv.org/abs/")
	arxivID = strings.TrimPrefix(arxivID, "https://arxiv.org/abs/")

	var pdfURL string
	for _, l := range e.Links {
		if l.Type == "application/pdf" {
			pdfURL = l.Href
		}
	}

	year := 0
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		year = t.Year()
	}

	availability := paper.WithAbstract // arXiv entries always carry an abstract
	if pdfURL != "" {
		availability = paper.WithPDFLink
	}

	return &paper.Paper{
		ID:               paper.DeriveID("", "arxiv", arxivID),
		Title:            strings.TrimSpace(e.Title),
		Authors:          authors,
		Year:             year,
		Abstract:         strings.TrimSpace(e.Summary),
		ArxivID:          arxivID,
		Subjects:         subjects,
		DataAvailability: availability,
		SourceOrigin:     []string{"arxiv"},
		OpenAccess:       true, // every arXiv preprint is open access
		PDFURL:           pdfURL,
	}
}
