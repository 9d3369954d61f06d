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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// TestConcurrentMutationsPreserveInvariants hammers Memory from many
// goroutines at once (run with -race) and checks the invariants spec.md
// §3/§8 require to survive concurrent access: iteration is monotonic,
// every paper is stored exactly once, and the mutex never deadlocks.
func TestConcurrentMutationsPreserveInvariants(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	const goroutines = 20
	const opsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				id := fmt.Sprintf("p%d", i%10) // overlapping ids across goroutines
				m.AddSearchRound(fmt.Sprintf("query-%d-%d", g, i), "strategy", []*paper.Paper{
					{ID: id, Title: id, DataAvailability: paper.MetadataOnly},
				}, map[string]int{"src": 1})
				m.RecordCitation(fmt.Sprintf("c%d", i%10), id, "claim")
				m.TrackProcessedTopic("shared-topic", "q", []string{id}, float64(i%100))
				m.IncrementIteration()
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, goroutines*opsPerGoroutine, m.Iteration())
	assert.Len(t, m.PaperIDs(), 10, "overlapping ids must collapse to exactly 10 distinct papers")
	assert.LessOrEqual(t, len(m.Citations()), 10)
	assert.Equal(t, goroutines*opsPerGoroutine, len(m.SearchRounds()))
}
