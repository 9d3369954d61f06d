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

// Package federator fans a single query out to every enabled bibliographic
// source in parallel, merges and prioritises the results, and front-ends
// the whole call with the two-tier QueryCache. Its fan-out shape is modeled
// on the teacher's workflowagent.ParallelAgent: an errgroup running each
// branch, a results channel, and first-class cancellation on a shared
// context.
package federator

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/deepresearch/internal/paper"
	"github.com/kadirpekel/deepresearch/internal/querycache"
	"github.com/kadirpekel/deepresearch/internal/source"
)

// Weights are the prioritisation score coefficients of spec.md §4.4.
type Weights struct {
	Citations float64
	Recency   float64
	Keyword   float64
	OpenAccess float64
}

// DefaultWeights matches spec.md §4.4's literal defaults.
var DefaultWeights = Weights{Citations: 0.3, Recency: 0.2, Keyword: 0.4, OpenAccess: 0.1}

// PaperUpdater is the narrow PaperCache interface the Federator merges
// duplicate records through.
type PaperUpdater interface {
	Update(p *paper.Paper)
}

// Config configures a Federator.
type Config struct {
	Sources []source.Client
	Cache   *querycache.Cache
	Papers  PaperUpdater
	Weights Weights
	// TopN bounds the number of papers returned after prioritisation.
	// Zero means unbounded.
	TopN int
	// Deadline bounds how long the fan-out waits for every source; zero
	// means no additional deadline beyond ctx's own.
	Deadline time.Duration
	Logger   *slog.Logger
	// BreakerThreshold is the number of consecutive Search failures a
	// source tolerates before it is skipped for BreakerCooldown. Zero uses
	// DefaultBreakerThreshold.
	BreakerThreshold int
	// BreakerCooldown is how long a tripped source is skipped. Zero uses
	// DefaultBreakerCooldown.
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Federator is the multi-source search aggregator of spec.md §4.4.
type Federator struct {
	cfg     Config
	breaker *breaker
}

// New builds a Federator.
func New(cfg Config) *Federator {
	cfg = cfg.withDefaults()
	return &Federator{
		cfg:     cfg,
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// Result is what Search returns: the merged, prioritised paper set plus a
// per-source contribution breakdown.
type Result struct {
	Papers          []*paper.Paper
	TotalHits       int
	SourceBreakdown map[string]int
}

type sourceOutcome struct {
	name   string
	papers []*paper.Paper
	hits   int
}

// Search fans query out to every enabled source in parallel, consulting
// the QueryCache first when sessionID is non-empty (or even for an empty
// sessionID, against the global tier only).
func (f *Federator) Search(ctx context.Context, query string, opts source.SearchOptions, sessionID string) (Result, error) {
	cacheOpts := querycache.SearchOptions{
		YearFrom:   opts.YearFrom,
		YearTo:     opts.YearTo,
		OpenAccess: opts.OpenAccess,
		SortBy:     string(opts.SortBy),
	}

	if f.cfg.Cache != nil {
		res, err := f.cfg.Cache.GetOrCompute(query, cacheOpts, sessionID, func() (querycache.Result, error) {
			r := f.federate(ctx, query, opts)
			return querycache.Result{Papers: r.Papers, TotalHits: r.TotalHits, SourceBreakdown: r.SourceBreakdown}, nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Papers: res.Papers, TotalHits: res.TotalHits, SourceBreakdown: res.SourceBreakdown}, nil
	}

	return f.federate(ctx, query, opts), nil
}

// federate performs the actual network fan-out; never returns an error —
// individual source failures are tolerated and reflected as a zero count
// in SourceBreakdown (spec.md §4.4 and the federation-partial-failure
// scenario in §8).
func (f *Federator) federate(ctx context.Context, query string, opts source.SearchOptions) Result {
	fanCtx := ctx
	var cancel context.CancelFunc
	if f.cfg.Deadline > 0 {
		fanCtx, cancel = context.WithTimeout(ctx, f.cfg.Deadline)
		defer cancel()
	}

	eg, egCtx := errgroup.WithContext(fanCtx)
	// One slot per source, merged in Sources order once all have finished,
	// so an overlapping record is credited to the earliest-listed source.
	outcomes := make([]sourceOutcome, len(f.cfg.Sources))

	for i, s := range f.cfg.Sources {
		i, s := i, s
		eg.Go(func() error {
			now := time.Now()
			if f.breaker.open(s.Name(), now) {
				f.cfg.Logger.Debug("federator: source in cooldown, skipping", "source", s.Name())
				outcomes[i] = sourceOutcome{name: s.Name()}
				return nil
			}

			res, err := s.Search(egCtx, opts)
			if err != nil {
				f.breaker.recordFailure(s.Name(), now)
				f.cfg.Logger.Warn("federator: source search failed", "source", s.Name(), "error", err)
				outcomes[i] = sourceOutcome{name: s.Name()}
				return nil
			}
			f.breaker.recordSuccess(s.Name())
			outcomes[i] = sourceOutcome{name: s.Name(), papers: res.Papers, hits: res.TotalHits}
			return nil
		})
	}

	_ = eg.Wait()

	breakdown := make(map[string]int, len(f.cfg.Sources))
	merged := make(map[string]*paper.Paper)
	order := make([]string, 0)
	totalHits := 0

	for _, o := range outcomes {
		breakdown[o.name] = 0
		totalHits += o.hits
		for _, p := range o.papers {
			key := paper.CanonicalKey(p)
			if existing, ok := merged[key]; ok {
				merged[key] = paper.Merge(existing, p)
				if f.cfg.Papers != nil {
					f.cfg.Papers.Update(merged[key])
				}
				continue
			}
			merged[key] = p
			order = append(order, key)
			breakdown[o.name]++
			if f.cfg.Papers != nil {
				f.cfg.Papers.Update(p)
			}
		}
	}

	papers := make([]*paper.Paper, 0, len(order))
	for _, key := range order {
		papers = append(papers, merged[key])
	}

	Prioritise(papers, query, f.cfg.Weights)

	if f.cfg.TopN > 0 && len(papers) > f.cfg.TopN {
		papers = papers[:f.cfg.TopN]
	}

	return Result{Papers: papers, TotalHits: totalHits, SourceBreakdown: breakdown}
}

// Prioritise sorts papers in place, highest score first, per spec.md §4.4's
// composite formula. Exported so CompressionService (spec.md §4.6, which
// reuses "deduplicate, prioritise" verbatim) can apply the identical
// ordering without duplicating the formula.
func Prioritise(papers []*paper.Paper, query string, weights Weights) {
	maxCitations := 1
	for _, p := range papers {
		if p.Citations != nil && *p.Citations > maxCitations {
			maxCitations = *p.Citations
		}
	}

	keywords := queryKeywords(query)
	now := time.Now().Year()

	scores := make(map[string]float64, len(papers))
	for _, p := range papers {
		scores[p.ID] = score(p, keywords, maxCitations, now, weights)
	}

	sort.SliceStable(papers, func(i, j int) bool {
		return scores[papers[i].ID] > scores[papers[j].ID]
	})
}

func score(p *paper.Paper, keywords []string, maxCitations, currentYear int, w Weights) float64 {
	citationsNorm := 0.0
	if p.Citations != nil {
		citationsNorm = float64(*p.Citations) / float64(maxCitations)
	}

	recency := 0.0
	if p.Year > 0 {
		age := float64(currentYear - p.Year)
		recency = math.Max(0, 1-age/20)
	}

	keywordRelevance := keywordScore(p, keywords)

	openAccess := 0.0
	if p.OpenAccess {
		openAccess = 1
	}

	return w.Citations*citationsNorm + w.Recency*recency + w.Keyword*keywordRelevance + w.OpenAccess*openAccess
}

func queryKeywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// keywordScore is the fraction of significant query keywords present in
// the paper's title or abstract.
func keywordScore(p *paper.Paper, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(p.Title + " " + p.Abstract)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
