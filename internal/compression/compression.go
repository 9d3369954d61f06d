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

package compression

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kadirpekel/deepresearch/internal/federator"
	"github.com/kadirpekel/deepresearch/internal/llmclient"
	"github.com/kadirpekel/deepresearch/internal/paper"
)

// extractLongAbstractThreshold is the point past which a structured LLM
// call replaces a direct truncation, per spec.md §4.6.
const extractLongAbstractThreshold = 300

// Config bounds a Service's output, per spec.md §4.6's budgets.
type Config struct {
	MaxTokensPerPaper int
	MaxTotalTokens    int
	// StopFraction is the fraction of MaxTotalTokens at which no further
	// papers are added, even if one more would still technically fit.
	StopFraction float64
}

func (c Config) withDefaults() Config {
	if c.MaxTokensPerPaper <= 0 {
		c.MaxTokensPerPaper = 200
	}
	if c.MaxTotalTokens <= 0 {
		c.MaxTotalTokens = 8000
	}
	if c.StopFraction <= 0 {
		c.StopFraction = 0.9
	}
	return c
}

// Service is CompressionService, spec.md §4.6.
type Service struct {
	cfg Config
	llm *llmclient.Client
}

// New builds a Service. llm may be nil, in which case every abstract is
// truncated directly regardless of length (useful for tests and for a
// degraded mode when no LLM credential is configured).
func New(cfg Config, llm *llmclient.Client) *Service {
	return &Service{cfg: cfg.withDefaults(), llm: llm}
}

// EstimateTokens implements spec.md §4.6's fixed estimator. A real
// tokenizer is deliberately not used: the budget math in this package is a
// testable invariant against this exact formula.
func EstimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4))
}

type extraction struct {
	KeyFindings []string `json:"keyFindings" jsonschema:"required,description=Up to 3 key findings from the abstract"`
	Methodology string   `json:"methodology,omitempty" jsonschema:"description=One short phrase naming the study's method, if stated"`
	Relevance   string   `json:"relevance" jsonschema:"required,description=One sentence on relevance to the research query"`
}

// Compress deduplicates and prioritises papers against query (reusing the
// Federator's exact merge and scoring rules), then compresses each into a
// CompressedPaper record until the token budgets of Config are spent.
func (s *Service) Compress(ctx context.Context, papers []*paper.Paper, query string) (Bundle, error) {
	deduped := dedupe(papers)
	federator.Prioritise(deduped, query, federator.DefaultWeights)

	budget := int(float64(s.cfg.MaxTotalTokens) * s.cfg.StopFraction)

	compressed := make([]CompressedPaper, 0, len(deduped))
	total := 0
	dropped := 0

	for _, p := range deduped {
		if total >= budget {
			dropped++
			continue
		}

		cp, err := s.compressOne(ctx, p)
		if err != nil {
			return Bundle{}, fmt.Errorf("compression: compress paper %s: %w", p.ID, err)
		}

		if total+cp.TokenEstimate > s.cfg.MaxTotalTokens {
			dropped++
			continue
		}

		compressed = append(compressed, cp)
		total += cp.TokenEstimate
	}

	ratio := 0.0
	if len(papers) > 0 {
		ratio = float64(len(compressed)) / float64(len(papers))
	}

	return Bundle{
		Papers:              compressed,
		TotalTokensEstimate: total,
		CompressionRatio:    ratio,
		Summary:             summarize(compressed, dropped),
		DroppedCount:        dropped,
	}, nil
}

func (s *Service) compressOne(ctx context.Context, p *paper.Paper) (CompressedPaper, error) {
	findings, methodology, relevance := s.extract(ctx, p)

	cp := CompressedPaper{
		Title:        p.Title,
		ShortAuthors: shortAuthors(p.Authors),
		Year:         p.Year,
		KeyFindings:  findings,
		Methodology:  methodology,
		Relevance:    relevance,
		DOI:          p.DOI,
		CitationKey:  citationKey(p),
	}

	budget := s.cfg.MaxTokensPerPaper
	estimate := EstimateTokens(cp.Title + cp.ShortAuthors + strings.Join(cp.KeyFindings, " ") + cp.Methodology + cp.Relevance)
	if estimate > budget {
		estimate = budget
	}
	cp.TokenEstimate = estimate
	return cp, nil
}

// extract returns up to 3 key findings, an optional methodology phrase, and
// a one-sentence relevance note. Abstracts over the length threshold go
// through a structured LLM call; shorter ones are truncated directly.
func (s *Service) extract(ctx context.Context, p *paper.Paper) (findings []string, methodology, relevance string) {
	if s.llm == nil || len(p.Abstract) <= extractLongAbstractThreshold {
		return truncateFindings(p.Abstract), "", ""
	}

	result, err := llmclient.StructuredGenerate[extraction](ctx, s.llm, llmclient.GenerateOptions{
		Prompt: fmt.Sprintf("Extract up to 3 key findings, the methodology (if stated), and one sentence on relevance from this abstract:\n\n%s", p.Abstract),
	})
	if err != nil {
		return truncateFindings(p.Abstract), "", ""
	}

	if len(result.KeyFindings) > 3 {
		result.KeyFindings = result.KeyFindings[:3]
	}
	return result.KeyFindings, result.Methodology, result.Relevance
}

func truncateFindings(abstract string) []string {
	if abstract == "" {
		return nil
	}
	if len(abstract) > extractLongAbstractThreshold {
		abstract = abstract[:extractLongAbstractThreshold] + "..."
	}
	return []string{abstract}
}

func shortAuthors(authors []string) string {
	switch {
	case len(authors) == 0:
		return ""
	case len(authors) == 1:
		return authors[0]
	default:
		return authors[0] + " et al."
	}
}

func citationKey(p *paper.Paper) string {
	first := "unknown"
	if len(p.Authors) > 0 {
		fields := strings.Fields(p.Authors[0])
		if len(fields) > 0 {
			first = fields[len(fields)-1]
		}
	}
	first = strings.ToLower(strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, first))
	if first == "" {
		first = "unknown"
	}
	year := ""
	if p.Year > 0 {
		year = strconv.Itoa(p.Year)
	}
	return first + year
}

func summarize(papers []CompressedPaper, dropped int) string {
	if len(papers) == 0 {
		return "no papers compressed"
	}

	n := len(papers)
	if n > 5 {
		n = 5
	}
	names := make([]string, n)
	minYear, maxYear := papers[0].Year, papers[0].Year
	for i, p := range papers {
		if i < n {
			names[i] = p.Title
		}
		if p.Year > 0 && (minYear == 0 || p.Year < minYear) {
			minYear = p.Year
		}
		if p.Year > maxYear {
			maxYear = p.Year
		}
	}

	summary := fmt.Sprintf("%d papers compressed (%s", len(papers), strings.Join(names, "; "))
	if len(papers) > n {
		summary += fmt.Sprintf(", +%d more", len(papers)-n)
	}
	summary += ")"
	if minYear > 0 {
		summary += fmt.Sprintf(", %d-%d", minYear, maxYear)
	}
	if dropped > 0 {
		summary += fmt.Sprintf(", %d dropped", dropped)
	}
	return summary
}

func dedupe(papers []*paper.Paper) []*paper.Paper {
	merged := make(map[string]*paper.Paper, len(papers))
	order := make([]string, 0, len(papers))
	for _, p := range papers {
		key := paper.CanonicalKey(p)
		if existing, ok := merged[key]; ok {
			merged[key] = paper.Merge(existing, p)
			continue
		}
		merged[key] = p
		order = append(order, key)
	}
	out := make([]*paper.Paper, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}
