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

// Package citation implements the external citation formatter contract of
// spec.md §6: a pure function against a schema, deliberately kept outside
// the orchestrator core (spec.md §1's non-goals list "the citation
// formatters (pure functions against a schema)" as an external
// collaborator). Nothing here touches ResearchMemory or the network.
package citation

import (
	"fmt"
	"sort"
	"strings"
)

// Style is a recognised citation style, spec.md §6.
type Style string

const (
	APA     Style = "apa"
	MLA     Style = "mla"
	Chicago Style = "chicago"
	IEEE    Style = "ieee"
	GBT7714 Style = "gbt7714"
)

// numericStyles sort by order of appearance and render a bracketed index;
// the rest are author-year styles that sort alphabetically by author.
var numericStyles = map[Style]bool{IEEE: true, GBT7714: true}

// CitationData is the minimal bibliographic record a formatter needs —
// distinct from paper.Paper, since the formatter is an external
// collaborator that should not import the orchestrator's internal types.
type CitationData struct {
	ID      string
	Authors []string
	Title   string
	Year    int
	Venue   string
	DOI     string
}

// Formatted is the result of Format: a closure-free, repeatable view over
// one ordered citation list.
type Formatted struct {
	style  Style
	order  []string
	byID   map[string]CitationData
	number map[string]int
}

// Format builds a Formatted view of citations in style. Numeric styles
// (ieee, gbt7714) number citations by their position in the input slice
// ("sort by appearance"); author-year styles (apa, mla, chicago) sort
// alphabetically by the first author's surname.
func Format(style Style, citations []CitationData) (*Formatted, error) {
	if !isKnownStyle(style) {
		return nil, fmt.Errorf("citation: unknown style %q", style)
	}

	ordered := make([]CitationData, len(citations))
	copy(ordered, citations)

	if !numericStyles[style] {
		sort.SliceStable(ordered, func(i, j int) bool {
			return surname(ordered[i]) < surname(ordered[j])
		})
	}

	f := &Formatted{
		style:  style,
		order:  make([]string, len(ordered)),
		byID:   make(map[string]CitationData, len(ordered)),
		number: make(map[string]int, len(ordered)),
	}
	for i, c := range ordered {
		f.order[i] = c.ID
		f.byID[c.ID] = c
		f.number[c.ID] = i + 1
	}
	return f, nil
}

func isKnownStyle(s Style) bool {
	switch s {
	case APA, MLA, Chicago, IEEE, GBT7714:
		return true
	default:
		return false
	}
}

// InText renders the in-text marker for id, e.g. "(Doe, 2021)" or "[3]".
func (f *Formatted) InText(id string) string {
	c, ok := f.byID[id]
	if !ok {
		return ""
	}
	if numericStyles[f.style] {
		return fmt.Sprintf("[%d]", f.number[id])
	}

	author := authorLabel(c.Authors)
	switch f.style {
	case MLA:
		return fmt.Sprintf("(%s)", author)
	default: // APA, Chicago
		return fmt.Sprintf("(%s, %d)", author, c.Year)
	}
}

// Reference renders the full bibliography entry for id.
func (f *Formatted) Reference(id string) string {
	c, ok := f.byID[id]
	if !ok {
		return ""
	}
	return formatReference(f.style, f.number[id], c)
}

// List renders every reference in this Formatted's order, one per line.
func (f *Formatted) List() string {
	lines := make([]string, len(f.order))
	for i, id := range f.order {
		lines[i] = f.Reference(id)
	}
	return strings.Join(lines, "\n")
}

func authorLabel(authors []string) string {
	switch len(authors) {
	case 0:
		return "Anon."
	case 1:
		return surnameOf(authors[0])
	case 2:
		return surnameOf(authors[0]) + " & " + surnameOf(authors[1])
	default:
		return surnameOf(authors[0]) + " et al."
	}
}

func surname(c CitationData) string {
	if len(c.Authors) == 0 {
		return ""
	}
	return strings.ToLower(surnameOf(c.Authors[0]))
}

func surnameOf(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[len(fields)-1]
}
