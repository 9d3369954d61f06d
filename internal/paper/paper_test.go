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

package paper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.1/x", NormalizeDOI("https://doi.org/10.1/X"))
	assert.Equal(t, "10.1/x", NormalizeDOI("doi:10.1/X"))
	assert.Equal(t, "10.1/x", NormalizeDOI("  10.1/X  "))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "attentionisallyouneed", NormalizeTitle("Attention Is All You Need"))

	long := NormalizeTitle("A Study of Something Very Long That Exceeds Fifty Characters In Length")
	assert.LessOrEqual(t, len(long), 50)
}

func TestCanonicalKeyPrefersDOI(t *testing.T) {
	withDOI := &Paper{DOI: "10.1/X", Title: "Some Title"}
	assert.Equal(t, "doi:10.1/x", CanonicalKey(withDOI))

	withoutDOI := &Paper{Title: "Some Title"}
	assert.Equal(t, "title:sometitle", CanonicalKey(withoutDOI))
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "doi:10.1/x", DeriveID("10.1/X", "arxiv", "1234.5678"))
	assert.Equal(t, "arxiv:1234.5678", DeriveID("", "arxiv", "1234.5678"))
}

func TestMergePrefersHigherAvailabilityAsBase(t *testing.T) {
	a := &Paper{
		ID:               "p1",
		Title:            "Full text title",
		DataAvailability: WithFullText,
		SourceOrigin:     []string{"arxiv"},
		Subjects:         []string{"cs.LG"},
		Authors:          []string{"Alice"},
	}
	b := &Paper{
		ID:               "p1",
		Title:            "Abstract-only title",
		Abstract:         "an abstract",
		DataAvailability: WithAbstract,
		SourceOrigin:     []string{"openalex"},
		Subjects:         []string{"cs.AI"},
	}

	merged := Merge(a, b)

	assert.Equal(t, "Full text title", merged.Title)
	assert.Equal(t, WithFullText, merged.DataAvailability)
	assert.Equal(t, "an abstract", merged.Abstract)
	assert.ElementsMatch(t, []string{"arxiv", "openalex"}, merged.SourceOrigin)
	assert.ElementsMatch(t, []string{"cs.LG", "cs.AI"}, merged.Subjects)
	assert.Equal(t, []string{"Alice"}, merged.Authors)
}

func TestMergeTakesMaxCitationsAndUnionsOpenAccess(t *testing.T) {
	ca, cb := 10, 25
	a := &Paper{ID: "p1", Citations: &ca, OpenAccess: false}
	b := &Paper{ID: "p1", Citations: &cb, OpenAccess: true}

	merged := Merge(a, b)

	require.NotNil(t, merged.Citations)
	assert.Equal(t, 25, *merged.Citations)
	assert.True(t, merged.OpenAccess)
}

func TestMergeFillsAuthorsFromOtherWhenBaseEmpty(t *testing.T) {
	a := &Paper{ID: "p1", DataAvailability: WithFullText}
	b := &Paper{ID: "p1", DataAvailability: WithAbstract, Authors: []string{"Bob"}}

	merged := Merge(a, b)

	assert.Equal(t, []string{"Bob"}, merged.Authors)
}

func TestAvailabilityString(t *testing.T) {
	assert.Equal(t, "metadata_only", MetadataOnly.String())
	assert.Equal(t, "with_full_text", WithFullText.String())
	assert.Equal(t, "unknown", Availability(99).String())
}
