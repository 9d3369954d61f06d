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

func TestCOREClientSearchMapsResults(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/search/works", r.URL.Path)
		assert.Equal(t, "neural networks", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalHits": 1,
			"results": [{
				"id": 42,
				"doi": "10.1/abc",
				"title": "A Paper",
				"abstract": "an abstract",
				"yearPublished": 2020,
				"authors": [{"name": "A. Author"}],
				"downloadUrl": "https://core.ac.uk/download/42.pdf",
				"publisher": "Some Press",
				"fieldsOfStudy": ["cs.AI"]
			}]
		}`))
	}))
	defer server.Close()

	c := NewCOREClient(COREConfig{BaseURL: server.URL, APIKey: "test-key"})
	result, err := c.Search(t.Context(), SearchOptions{Query: "neural networks", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)

	p := result.Papers[0]
	assert.Equal(t, "doi:10.1/abc", p.ID)
	assert.Equal(t, "A Paper", p.Title)
	assert.Equal(t, paper.WithPDFLink, p.DataAvailability)
	assert.True(t, p.OpenAccess)
	assert.Equal(t, []string{"core"}, p.SourceOrigin)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, 1, result.TotalHits)
}

func TestCOREClientSearchAppliesYearFilters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"totalHits": 0, "results": []}`))
	}))
	defer server.Close()

	c := NewCOREClient(COREConfig{BaseURL: server.URL})
	_, err := c.Search(t.Context(), SearchOptions{Query: "q", YearFrom: 2018, YearTo: 2022})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "yearPublished>=2018")
	assert.Contains(t, gotQuery, "yearPublished<=2022")
}

func TestCOREClientIsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalHits": 0, "results": []}`))
	}))
	defer server.Close()

	c := NewCOREClient(COREConfig{BaseURL: server.URL})
	assert.True(t, c.IsAvailable(t.Context()))
}

func TestCOREClientGetPaperWithoutAbstractIsMetadataOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/99", r.URL.Path)
		w.Write([]byte(`{"id": 99, "title": "No abstract"}`))
	}))
	defer server.Close()

	c := NewCOREClient(COREConfig{BaseURL: server.URL})
	p, err := c.GetPaper(t.Context(), "99")
	require.NoError(t, err)
	assert.Equal(t, paper.MetadataOnly, p.DataAvailability)
	assert.Equal(t, "core:99", p.ID)
}
