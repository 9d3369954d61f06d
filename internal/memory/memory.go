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

package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// PaperStore is the narrow PaperCache interface Memory borrows records
// through; papers are owned exactly once by the cache, never copied into
// Memory itself (spec.md §3's ownership/lifecycle rule).
type PaperStore interface {
	Get(id string) (*paper.Paper, bool)
	Set(p *paper.Paper)
}

// Memory is the per-session ResearchMemory of spec.md §4.5. A single mutex
// guards the whole struct; the contract is observational (spec.md §9
// permits a sharded design but does not require one).
type Memory struct {
	mu sync.Mutex

	papers PaperStore

	plan         *ResearchPlan
	searchRounds []SearchRound
	paperIDs     map[string]struct{}
	paperOrder   []string

	citations map[string]*Citation

	reportVersions []ReportVersion

	insights []string
	gaps     map[string]struct{}

	trackedGaps map[string]*TrackedGap

	processedTopics map[string]*ProcessedTopic

	iteration      int
	lastUpdateTime time.Time
}

// New creates an empty Memory backed by papers for paper lookups.
func New(papers PaperStore) *Memory {
	return &Memory{
		papers:          papers,
		paperIDs:        make(map[string]struct{}),
		citations:       make(map[string]*Citation),
		gaps:            make(map[string]struct{}),
		trackedGaps:     make(map[string]*TrackedGap),
		processedTopics: make(map[string]*ProcessedTopic),
		lastUpdateTime:  time.Now(),
	}
}

func (m *Memory) touch() {
	m.lastUpdateTime = time.Now()
}

// SetPlan installs the ResearchPlan produced by the Planner.
func (m *Memory) SetPlan(p ResearchPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = &p
	m.touch()
}

// Plan returns the current plan, or nil if none has been set.
func (m *Memory) Plan() *ResearchPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan
}

// AddSearchRound records a round and inserts any papers new to this
// session, per spec.md §4.5 ("also inserts any new papers").
func (m *Memory) AddSearchRound(query, strategy string, papers []*paper.Paper, sourceBreakdown map[string]int) SearchRound {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.addPapersLocked(papers)
	round := SearchRound{
		Round:           len(m.searchRounds) + 1,
		Query:           query,
		Strategy:        strategy,
		PaperIDs:        ids,
		SourceBreakdown: sourceBreakdown,
		Timestamp:       time.Now(),
	}
	m.searchRounds = append(m.searchRounds, round)
	m.touch()
	return round
}

// SearchRounds returns every round recorded so far, in order.
func (m *Memory) SearchRounds() []SearchRound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SearchRound, len(m.searchRounds))
	copy(out, m.searchRounds)
	return out
}

// AddPapers inserts papers into the session's known set without recording
// a search round (used e.g. by the Analyzer when it pulls in a citing
// work directly via SourceClient.GetPaper).
func (m *Memory) AddPapers(papers []*paper.Paper) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.addPapersLocked(papers)
	m.touch()
	return ids
}

// addPapersLocked requires m.mu held; stores each paper exactly once
// (spec.md §3 invariant) and returns the ids that were new to this session.
func (m *Memory) addPapersLocked(papers []*paper.Paper) []string {
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		if m.papers != nil {
			m.papers.Set(p)
		}
		if _, seen := m.paperIDs[p.ID]; !seen {
			m.paperIDs[p.ID] = struct{}{}
			m.paperOrder = append(m.paperOrder, p.ID)
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// GetPaper borrows a paper by id from the backing PaperStore. Returns
// (nil, false) if the id was never added to this session or has expired
// out of the cache.
func (m *Memory) GetPaper(id string) (*paper.Paper, bool) {
	m.mu.Lock()
	_, known := m.paperIDs[id]
	m.mu.Unlock()
	if !known || m.papers == nil {
		return nil, false
	}
	return m.papers.Get(id)
}

// PaperIDs returns every paper id known to this session, insertion order.
func (m *Memory) PaperIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.paperOrder))
	copy(out, m.paperOrder)
	return out
}

// RecordCitation keys a citation by id; repeated calls for the same id
// accumulate claims rather than overwrite them.
func (m *Memory) RecordCitation(citationID, paperID, claim string) *Citation {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.citations[citationID]
	if !ok {
		c = &Citation{ID: citationID, PaperID: paperID, InTextRef: citationID}
		m.citations[citationID] = c
	}
	if claim != "" {
		c.Claims = append(c.Claims, claim)
	}
	m.touch()
	return c
}

// Citations returns every recorded citation.
func (m *Memory) Citations() []*Citation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Citation, 0, len(m.citations))
	for _, c := range m.citations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SaveReportVersion appends a new, immutable report version.
func (m *Memory) SaveReportVersion(content string, metrics *QualityMetrics, analysis *CriticAnalysis) ReportVersion {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := ReportVersion{
		Version:   len(m.reportVersions) + 1,
		Content:   content,
		Metrics:   metrics,
		Analysis:  analysis,
		CreatedAt: time.Now(),
	}
	m.reportVersions = append(m.reportVersions, v)
	m.touch()
	return v
}

// GetLatest returns the most recent report version, or (zero, false) if
// none exist yet.
func (m *Memory) GetLatest() (ReportVersion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reportVersions) == 0 {
		return ReportVersion{}, false
	}
	return m.reportVersions[len(m.reportVersions)-1], true
}

// GetPrevious returns the version before the latest, or (zero, false) if
// fewer than two versions exist.
func (m *Memory) GetPrevious() (ReportVersion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reportVersions) < 2 {
		return ReportVersion{}, false
	}
	return m.reportVersions[len(m.reportVersions)-2], true
}

// GetHistory returns every report version in order.
func (m *Memory) GetHistory() []ReportVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReportVersion, len(m.reportVersions))
	copy(out, m.reportVersions)
	return out
}

// AddInsight appends to the legacy set-of-strings insight list.
func (m *Memory) AddInsight(insight string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insight)
	m.touch()
}

// Insights returns the legacy insight list.
func (m *Memory) Insights() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.insights))
	copy(out, m.insights)
	return out
}

// AddGap records a gap in the legacy set-of-strings interface, preserved
// alongside the structured TrackedGap interface per spec.md §4.5.
func (m *Memory) AddGap(gap string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaps[gap] = struct{}{}
	m.touch()
}

// ResolveGap removes a gap from the legacy set-of-strings interface.
func (m *Memory) ResolveGap(gap string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gaps, gap)
	m.touch()
}

// Gaps returns the legacy gap set, sorted for determinism.
func (m *Memory) Gaps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.gaps))
	for g := range m.gaps {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func normalizeTopic(topic string) string {
	return strings.TrimSpace(strings.ToLower(topic))
}

// TrackProcessedTopic normalises topic, unions queries and paper ids with
// any existing record, and keeps the maximum coverage observed so far —
// the contract only requires coverage to be monotonically non-decreasing
// per (topic, session), per spec.md §9's open-question resolution.
func (m *Memory) TrackProcessedTopic(topic, query string, paperIDs []string, coverage float64) *ProcessedTopic {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeTopic(topic)
	pt, ok := m.processedTopics[key]
	if !ok {
		pt = &ProcessedTopic{Topic: topic}
		m.processedTopics[key] = pt
	}
	pt.SearchQueries = unionAppend(pt.SearchQueries, query)
	for _, id := range paperIDs {
		pt.PaperIDs = unionAppend(pt.PaperIDs, id)
	}
	if coverage > pt.Coverage {
		pt.Coverage = coverage
	}
	pt.Iteration = m.iteration
	pt.Timestamp = time.Now()
	m.touch()
	return pt
}

func unionAppend(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// IsTopicProcessed reports whether topic has reached at least minCoverage.
func (m *Memory) IsTopicProcessed(topic string, minCoverage float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.processedTopics[normalizeTopic(topic)]
	return ok && pt.Coverage >= minCoverage
}

// GetUncoveredTopics returns every tracked topic below threshold.
func (m *Memory) GetUncoveredTopics(threshold float64) []*ProcessedTopic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProcessedTopic, 0)
	for _, pt := range m.processedTopics {
		if pt.Coverage < threshold {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// AddTrackedGap creates a new structured gap record and returns its id.
func (m *Memory) AddTrackedGap(description, notes string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.trackedGaps[id] = &TrackedGap{
		ID:          id,
		Description: description,
		Notes:       notes,
		Status:      GapOpen,
		Iteration:   m.iteration,
	}
	m.touch()
	return id
}

// UpdateGapStatus transitions a tracked gap's status, optionally recording
// a search attempt and the papers it found.
func (m *Memory) UpdateGapStatus(id string, status GapStatus, searchQuery string, papersFound []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.trackedGaps[id]
	if !ok {
		return fmt.Errorf("memory: no tracked gap %q", id)
	}
	g.Status = status
	if searchQuery != "" {
		g.SearchesAttempted = unionAppend(g.SearchesAttempted, searchQuery)
	}
	for _, p := range papersFound {
		g.PapersFound = unionAppend(g.PapersFound, p)
	}
	if status == GapAddressed {
		g.AddressedIteration = m.iteration
	}
	m.touch()
	return nil
}

// TrackedGaps returns every structured gap, sorted by id for determinism.
func (m *Memory) TrackedGaps() []*TrackedGap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TrackedGap, 0, len(m.trackedGaps))
	for _, g := range m.trackedGaps {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsSearchRedundant reports whether query has effectively already been
// run: either the exact normalised query appears in a prior round, or any
// significant token (len > 3) names a topic already at >= 80% coverage.
func (m *Memory) IsSearchRedundant(query string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	norm := normalizeQuery(query)
	for _, r := range m.searchRounds {
		if normalizeQuery(r.Query) == norm {
			return true
		}
	}

	for _, tok := range strings.Fields(norm) {
		if len(tok) <= 3 {
			continue
		}
		if pt, ok := m.processedTopics[tok]; ok && pt.Coverage >= 80 {
			return true
		}
	}
	return false
}

func normalizeQuery(q string) string {
	lower := strings.ToLower(q)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// IncrementIteration advances the monotonic iteration counter and returns
// the new value.
func (m *Memory) IncrementIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration++
	m.touch()
	return m.iteration
}

// Iteration returns the current iteration count.
func (m *Memory) Iteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iteration
}

// GetStats returns a point-in-time summary for observability.
func (m *Memory) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := 0
	for _, g := range m.trackedGaps {
		if g.Status == GapOpen || g.Status == GapInProgress {
			open++
		}
	}

	return Stats{
		Iteration:       m.iteration,
		SearchRounds:    len(m.searchRounds),
		PaperCount:      len(m.paperIDs),
		CitationCount:   len(m.citations),
		ReportVersions:  len(m.reportVersions),
		ProcessedTopics: len(m.processedTopics),
		OpenGaps:        open,
		LastUpdateTime:  m.lastUpdateTime,
	}
}

// GetContextSummary is a short, human-readable status line describing the
// session's progress — cheap to compute, used in logs and stage prompts
// that want a quick orientation without the full relevant-context budget.
func (m *Memory) GetContextSummary() string {
	s := m.GetStats()
	question := ""
	if p := m.Plan(); p != nil {
		question = p.MainQuestion
	}
	return fmt.Sprintf("iteration %d: %d papers across %d rounds, %d citations, %d open gaps (%q)",
		s.Iteration, s.PaperCount, s.SearchRounds, s.CitationCount, s.OpenGaps, question)
}

// GetRelevantContext assembles a bounded-size textual digest of the
// session for use as LLM context: the plan, then the most recent search
// rounds and insights, truncated at maxTokens (estimated as ceil(chars/4),
// matching the estimator CompressionService uses).
func (m *Memory) GetRelevantContext(maxTokens int) string {
	m.mu.Lock()
	plan := m.plan
	rounds := append([]SearchRound{}, m.searchRounds...)
	insights := append([]string{}, m.insights...)
	m.mu.Unlock()

	var b strings.Builder
	if plan != nil {
		b.WriteString("Question: " + plan.MainQuestion + "\n")
		for _, sq := range plan.SubQuestions {
			b.WriteString("- " + sq + "\n")
		}
	}
	for i := len(rounds) - 1; i >= 0 && i >= len(rounds)-5; i-- {
		b.WriteString(fmt.Sprintf("Round %d: %q (%d papers)\n", rounds[i].Round, rounds[i].Query, len(rounds[i].PaperIDs)))
	}
	for _, insight := range insights {
		b.WriteString("Insight: " + insight + "\n")
	}

	text := b.String()
	maxChars := maxTokens * 4
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text
}

// Export serialises the full public state for out-of-band rehydration.
func (m *Memory) Export() Export {
	m.mu.Lock()
	defer m.mu.Unlock()

	citations := make(map[string]*Citation, len(m.citations))
	for k, v := range m.citations {
		cp := *v
		citations[k] = &cp
	}
	gaps := make(map[string]struct{}, len(m.gaps))
	for k := range m.gaps {
		gaps[k] = struct{}{}
	}
	trackedGaps := make(map[string]*TrackedGap, len(m.trackedGaps))
	for k, v := range m.trackedGaps {
		cp := *v
		trackedGaps[k] = &cp
	}
	topics := make(map[string]*ProcessedTopic, len(m.processedTopics))
	for k, v := range m.processedTopics {
		cp := *v
		topics[k] = &cp
	}

	var plan *ResearchPlan
	if m.plan != nil {
		cp := *m.plan
		plan = &cp
	}

	return Export{
		Plan:            plan,
		SearchRounds:    append([]SearchRound{}, m.searchRounds...),
		PaperIDs:        append([]string{}, m.paperOrder...),
		Citations:       citations,
		ReportVersions:  append([]ReportVersion{}, m.reportVersions...),
		Insights:        append([]string{}, m.insights...),
		Gaps:            gaps,
		TrackedGaps:     trackedGaps,
		ProcessedTopics: topics,
		Iteration:       m.iteration,
		LastUpdateTime:  m.lastUpdateTime,
	}
}

// Import replaces the Memory's state with a previously-exported snapshot.
// Export() followed by Import() is the identity over every public getter
// (spec.md §8's round-trip law).
func (m *Memory) Import(e Export) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plan = e.Plan
	m.searchRounds = append([]SearchRound{}, e.SearchRounds...)

	m.paperIDs = make(map[string]struct{}, len(e.PaperIDs))
	m.paperOrder = append([]string{}, e.PaperIDs...)
	for _, id := range e.PaperIDs {
		m.paperIDs[id] = struct{}{}
	}

	m.citations = make(map[string]*Citation, len(e.Citations))
	for k, v := range e.Citations {
		cp := *v
		m.citations[k] = &cp
	}

	m.reportVersions = append([]ReportVersion{}, e.ReportVersions...)
	m.insights = append([]string{}, e.Insights...)

	m.gaps = make(map[string]struct{}, len(e.Gaps))
	for k := range e.Gaps {
		m.gaps[k] = struct{}{}
	}

	m.trackedGaps = make(map[string]*TrackedGap, len(e.TrackedGaps))
	for k, v := range e.TrackedGaps {
		cp := *v
		m.trackedGaps[k] = &cp
	}

	m.processedTopics = make(map[string]*ProcessedTopic, len(e.ProcessedTopics))
	for k, v := range e.ProcessedTopics {
		cp := *v
		m.processedTopics[k] = &cp
	}

	m.iteration = e.Iteration
	m.lastUpdateTime = e.LastUpdateTime
}
