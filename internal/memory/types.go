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

// Package memory implements ResearchMemory, the per-session mutable
// working set described in spec.md §4.5: plan, search rounds, papers,
// citations, report versions, processed-topic and gap trackers. Modeled on
// the shape of the teacher's v2/session.Service (create/get/mutate over a
// guarded critical section) minus the SQL persistence layer, which has no
// counterpart here (sessions are process-lifetime only).
package memory

import "time"

// SearchStrategy is one entry of a ResearchPlan's searchStrategies list.
type SearchStrategy struct {
	Keywords         []string
	YearFrom         int
	YearTo           int
	SourcePreferences []string
}

// ResearchPlan is produced by the Planner stage executor.
type ResearchPlan struct {
	MainQuestion     string
	SubQuestions     []string
	SearchStrategies []SearchStrategy
	ExpectedSections []string
}

// SearchRound records one Federator call and the papers it newly
// contributed to the session (already deduplicated against memory).
type SearchRound struct {
	Round           int
	Query           string
	Strategy        string
	PaperIDs        []string
	SourceBreakdown map[string]int
	Timestamp       time.Time
}

// Citation attributes one or more claims to a paper.
type Citation struct {
	ID        string
	PaperID   string
	InTextRef string
	Claims    []string
}

// QualityMetrics scores a report draft, spec.md §3.
type QualityMetrics struct {
	OverallScore          float64
	CoverageScore         float64
	CitationDensity       float64
	RecencyScore          float64
	UniqueSourcesUsed     int
	OpenAccessPercentage  float64
	PerSubQuestionCoverage map[string]float64
}

// CriticAnalysis is the Critic stage's structured verdict on a draft.
type CriticAnalysis struct {
	OverallScore           float64
	GapsIdentified         []string
	ImprovementSuggestions []string
	PerSectionNotes        map[string]string
}

// ReportVersion is one append-only entry in the report history.
type ReportVersion struct {
	Version   int
	Content   string
	Metrics   *QualityMetrics
	Analysis  *CriticAnalysis
	CreatedAt time.Time
}

// GapStatus is a TrackedGap's lifecycle state.
type GapStatus string

const (
	GapOpen       GapStatus = "open"
	GapInProgress GapStatus = "in_progress"
	GapAddressed  GapStatus = "addressed"
	GapWontFix    GapStatus = "wont_fix"
)

// TrackedGap is a structured, per-session gap-tracking record (spec.md §3),
// distinct from the legacy addGap/resolveGap set-of-strings interface that
// ResearchMemory preserves alongside it.
type TrackedGap struct {
	ID                string
	Description       string
	Notes             string
	Status            GapStatus
	SearchesAttempted []string
	PapersFound       []string
	Iteration         int
	AddressedIteration int
}

// ProcessedTopic tracks how thoroughly a sub-question has been searched.
type ProcessedTopic struct {
	Topic         string
	SearchQueries []string
	PaperIDs      []string
	Coverage      float64
	Iteration     int
	Timestamp     time.Time
}

// Stats is the point-in-time summary returned by GetStats.
type Stats struct {
	Iteration        int
	SearchRounds     int
	PaperCount       int
	CitationCount    int
	ReportVersions   int
	ProcessedTopics  int
	OpenGaps         int
	LastUpdateTime   time.Time
}

// Export is the full serialisable snapshot of a Memory's state, used by
// Export()/Import() to satisfy the round-trip law of spec.md §8.
type Export struct {
	Plan            *ResearchPlan
	SearchRounds    []SearchRound
	PaperIDs        []string
	Citations       map[string]*Citation
	ReportVersions  []ReportVersion
	Insights        []string
	Gaps            map[string]struct{}
	TrackedGaps     map[string]*TrackedGap
	ProcessedTopics map[string]*ProcessedTopic
	Iteration       int
	LastUpdateTime  time.Time
}
