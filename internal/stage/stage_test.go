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

package stage

import (
	"context"

	"github.com/kadirpekel/deepresearch/internal/memory"
	"github.com/kadirpekel/deepresearch/internal/paper"
	"github.com/kadirpekel/deepresearch/internal/source"
)

// fakePaperStore is a minimal in-memory memory.PaperStore for tests.
type fakePaperStore struct {
	papers map[string]*paper.Paper
}

func newFakePaperStore() *fakePaperStore {
	return &fakePaperStore{papers: map[string]*paper.Paper{}}
}

func (f *fakePaperStore) Get(id string) (*paper.Paper, bool) {
	p, ok := f.papers[id]
	return p, ok
}

func (f *fakePaperStore) Set(p *paper.Paper) { f.papers[p.ID] = p }

func newTestMemory() *memory.Memory {
	return memory.New(newFakePaperStore())
}

// fakeSourceClient returns a fixed set of papers for every query.
type fakeSourceClient struct {
	name   string
	papers []*paper.Paper
}

func (f *fakeSourceClient) Name() string { return f.name }

func (f *fakeSourceClient) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeSourceClient) Search(ctx context.Context, opts source.SearchOptions) (source.SearchResult, error) {
	return source.SearchResult{Papers: f.papers, TotalHits: len(f.papers), Source: f.name}, nil
}

func (f *fakeSourceClient) GetPaper(ctx context.Context, nativeID string) (*paper.Paper, error) {
	for _, p := range f.papers {
		if p.ID == nativeID {
			return p, nil
		}
	}
	return nil, nil
}

func samplePapers() []*paper.Paper {
	return []*paper.Paper{
		{ID: "p1", Title: "Quantum Error Correction Advances", Authors: []string{"A. One"}, Year: 2023},
		{ID: "p2", Title: "Surface Codes at Scale", Authors: []string{"B. Two"}, Year: 2022},
		{ID: "p3", Title: "Logical Qubit Benchmarks", Authors: []string{"C. Three"}, Year: 2021},
	}
}

// collectEvents drains a stage Seq2 into a slice, stopping at the first
// error (inclusive).
func collectEvents(seq func(func(Event, error) bool)) ([]Event, error) {
	var out []Event
	var retErr error
	seq(func(ev Event, err error) bool {
		out = append(out, ev)
		if err != nil {
			retErr = err
			return false
		}
		return true
	})
	return out, retErr
}
