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

// Package source defines the bibliographic SourceClient contract shared by
// every concrete catalog client (CORE, Semantic Scholar, OpenAlex, arXiv,
// PubMed), per spec.md §4.3. Each concrete client lives in its own file,
// mirroring the teacher's "one file per provider, same interface" layout
// for its embedder clients.
package source

import (
	"context"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// SortBy is the abstract sort order a caller requests; each SourceClient
// translates it to its native equivalent, falling back to relevance when
// unsupported.
type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortCitations SortBy = "citations"
	SortDate      SortBy = "date"
)

// SearchOptions parametrizes a Search call.
type SearchOptions struct {
	Query      string
	Limit      int
	YearFrom   int
	YearTo     int
	OpenAccess bool
	SortBy     SortBy
}

// SearchResult is what a SourceClient.Search call returns.
type SearchResult struct {
	Papers    []*paper.Paper
	TotalHits int
	Source    string
}

// Client is the contract every bibliographic SourceClient satisfies.
type Client interface {
	// Name is the stable source identifier used in SourceOrigin and
	// sourceBreakdown (e.g. "semantic_scholar").
	Name() string

	// IsAvailable reports whether the source responded successfully to a
	// cheap health probe. Returns false on any error; never panics.
	IsAvailable(ctx context.Context) bool

	// Search runs options.Query against the source. Non-2xx responses are
	// logged and mapped to an empty SearchResult, never an error — the
	// Federator tolerates individual source failures.
	Search(ctx context.Context, opts SearchOptions) (SearchResult, error)

	// GetPaper fetches a single record by the source's native id.
	GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error)
}

// RateLimiterConfig configures the single-permit interval gate common to
// every client (spec.md §4.3).
type RateLimiterConfig struct {
	RequestsPerSecond float64
	// RequestsPerSecondWithCredentials overrides RequestsPerSecond when the
	// client was constructed with an email/API key.
	RequestsPerSecondWithCredentials float64
}

func (c RateLimiterConfig) effectiveRate(hasCredentials bool) float64 {
	if hasCredentials && c.RequestsPerSecondWithCredentials > 0 {
		return c.RequestsPerSecondWithCredentials
	}
	if c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	return 1
}
