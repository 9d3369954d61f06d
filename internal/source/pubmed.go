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
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// PubMedConfig configures the PubMed client.
type PubMedConfig struct {
	BaseURL string // default https://eutils.ncbi.nlm.nih.gov/entrez/eutils
	APIKey  string
}

// PubMedClient implements Client against NCBI's E-utilities (esearch +
// efetch). Credentials raise the rate from 3 req/s to 10 req/s per
// spec.md §4.3's literal example.
type PubMedClient struct {
	cfg      PubMedConfig
	client   *http.Client
	throttle *Throttle
}

// NewPubMedClient builds a PubMedClient.
func NewPubMedClient(cfg PubMedConfig) *PubMedClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	return &PubMedClient{
		cfg:    cfg,
		client: newHTTPClient(0),
		throttle: NewThrottle(RateLimiterConfig{
			RequestsPerSecond:                3,
			RequestsPerSecondWithCredentials: 10,
		}, cfg.APIKey != ""),
	}
}

func (c *PubMedClient) Name() string { return "pubmed" }

func (c *PubMedClient) apiKeyParam(q url.Values) {
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
}

func (c *PubMedClient) IsAvailable(ctx context.Context) bool {
	if err := c.throttle.Wait(ctx); err != nil {
		return false
	}
	q := url.Values{"db": {"pubmed"}, "term": {"test"}, "retmax": {"1"}, "retmode": {"json"}}
	c.apiKeyParam(q)
	var out pubmedSearchResponse
	err := getJSON(ctx, c.client, c.cfg.BaseURL+"/esearch.fcgi", q, nil, &out)
	return err == nil
}

func (c *PubMedClient) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}

	term := opts.Query
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		from, to := opts.YearFrom, opts.YearTo
		if from == 0 {
			from = 1900
		}
		if to == 0 {
			to = 2100
		}
		term = fmt.Sprintf("%s AND %d:%d[pdat]", term, from, to)
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmax", strconv.Itoa(limit))
	q.Set("sort", pubmedSort(opts.SortBy))
	q.Set("retmode", "json")
	c.apiKeyParam(q)

	var searchOut pubmedSearchResponse
	if err := getJSON(ctx, c.client, c.cfg.BaseURL+"/esearch.fcgi", q, nil, &searchOut); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}
	if len(searchOut.Result.IDList) == 0 {
		return SearchResult{Source: c.Name()}, nil
	}

	if err := c.throttle.Wait(ctx); err != nil {
		return SearchResult{Source: c.Name()}, nil
	}
	summaries, err := c.summarize(ctx, searchOut.Result.IDList)
	if err != nil {
		return SearchResult{Source: c.Name()}, nil
	}

	total, _ := strconv.Atoi(searchOut.Result.Count)
	return SearchResult{Papers: summaries, TotalHits: total, Source: c.Name()}, nil
}

func (c *PubMedClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	papers, err := c.summarize(ctx, []string{nativeID})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, fmt.Errorf("pubmed: no record for %s", nativeID)
	}
	return papers[0], nil
}

// summarize uses efetch (not esummary) so the abstract text is available,
// which esummary never returns.
func (c *PubMedClient) summarize(ctx context.Context, ids []string) ([]*paper.Paper, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")
	c.apiKeyParam(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/efetch.fcgi", nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "deep-research-orchestrator/1.0 ("+userAgentContact+")")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pubmed: status %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("pubmed: decode efetch xml: %w", err)
	}

	papers := make([]*paper.Paper, 0, len(set.Articles))
	for _, a := range set.Articles {
		papers = append(papers, mapPubMedArticle(a))
	}
	return papers, nil
}

func pubmedSort(s SortBy) string {
	switch s {
	case SortDate:
		return "pub_date"
	default:
		return "relevance"
	}
}

type pubmedSearchResponse struct {
	Result struct {
		Count   string   `json:"count"`
		IDList  []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title    string `xml:"Title"`
				PubDate  struct {
					Year string `xml:"Year"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					ForeName string `xml:"ForeName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			MeshHeadingList struct {
				Headings []struct {
					DescriptorName string `xml:"DescriptorName"`
				} `xml:"MeshHeading"`
			} `xml:"MeshHeadingList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDList struct {
			IDs []struct {
				IDType string `xml:"IdType,attr"`
				Value  string `xml:",chardata"`
			} `xml:"ArticleId"`
		} `xml:"ArticleIdList"`
	} `xml:"PubmedData"`
}

func mapPubMedArticle(a pubmedArticle) *paper.Paper {
	art := a.MedlineCitation.Article

	authors := make([]string, 0, len(art.AuthorList.Authors))
	for _, au := range art.AuthorList.Authors {
		name := strings.TrimSpace(au.ForeName + " " + au.LastName)
		if name != "" {
			authors = append(authors, name)
		}
	}

	subjects := make([]string, 0, len(art.MeshHeadingList.Headings))
	for _, h := range art.MeshHeadingList.Headings {
		subjects = append(subjects, h.DescriptorName)
	}

	abstract := strings.Join(art.Abstract.AbstractText, " ")

	var doi string
	for _, id := range a.PubmedData.ArticleIDList.IDs {
		if id.IDType == "doi" {
			doi = id.Value
		}
	}

	year, _ := strconv.Atoi(art.Journal.PubDate.Year)

	availability := paper.MetadataOnly
	if abstract != "" {
		availability = paper.WithAbstract
	}

	return &paper.Paper{
		ID:               paper.DeriveID(doi, "pubmed", a.MedlineCitation.PMID),
		Title:            art.ArticleTitle,
		Authors:          authors,
		Year:             year,
		Abstract:         abstract,
		Journal:          art.Journal.Title,
		DOI:              doi,
		PMID:             a.MedlineCitation.PMID,
		Subjects:         subjects,
		DataAvailability: availability,
		SourceOrigin:     []string{"pubmed"},
	}
}
