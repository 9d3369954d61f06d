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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

func TestOpenAlexClientSearchReconstructsAbstract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "test@example.com", r.URL.Query().Get("mailto"))
		w.Write([]byte(`{
			"meta": {"count": 1},
			"results": [{
				"id": "https://openalex.org/W123",
				"doi": "https://doi.org/10.1/x",
				"display_name": "Some Title",
				"publication_year": 2021,
				"cited_by_count": 5,
				"is_oa": true,
				"abstract_inverted_index": {"Hello": [0], "world": [1]},
				"authorships": [{"author": {"display_name": "Jane Doe"}}],
				"primary_location": {"source": {"display_name": "Journal X"}, "pdf_url": "https://x/pdf"},
				"concepts": [{"display_name": "AI"}]
			}]
		}`))
	}))
	defer server.Close()

	c := NewOpenAlexClient(OpenAlexConfig{BaseURL: server.URL, Email: "test@example.com"})
	result, err := c.Search(t.Context(), SearchOptions{Query: "q"})
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)

	p := result.Papers[0]
	assert.Equal(t, "Hello world", p.Abstract)
	assert.Equal(t, "doi:10.1/x", p.ID)
	assert.Equal(t, paper.WithPDFLink, p.DataAvailability)
	assert.Equal(t, []string{"AI"}, p.Subjects)
	require.NotNil(t, p.Citations)
	assert.Equal(t, 5, *p.Citations)
}

func TestOpenAlexClientSearchOpenAccessFilter(t *testing.T) {
	var gotFilter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		w.Write([]byte(`{"meta": {"count": 0}, "results": []}`))
	}))
	defer server.Close()

	c := NewOpenAlexClient(OpenAlexConfig{BaseURL: server.URL})
	_, err := c.Search(t.Context(), SearchOptions{Query: "q", OpenAccess: true, YearFrom: 2020})
	require.NoError(t, err)
	assert.Contains(t, gotFilter, "is_oa:true")
	assert.Contains(t, gotFilter, "from_publication_date:2020-01-01")
}

func TestReconstructAbstractEmptyIndex(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
}
