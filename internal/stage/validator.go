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
	"fmt"
	"iter"
	"regexp"
	"time"

	"github.com/kadirpekel/deepresearch/internal/memory"
)

// ValidatorStageName identifies the validator executor.
const ValidatorStageName = "validator"

// inTextCitation matches a bracketed citation marker such as "[p_abc123]",
// the convention the Writer prompt asks the model to use.
var inTextCitation = regexp.MustCompile(`\[([A-Za-z0-9_\-:.]+)\]`)

// ValidationResult reports which in-text citation markers in the latest
// draft resolve to a known paper and which don't.
type ValidationResult struct {
	Resolved   []string
	Unresolved []string
}

// Validator checks that every in-text citation marker in the latest
// report version resolves to a paper recorded in mem, recording a
// Citation for each resolved marker and a TrackedGap for each that
// doesn't, per spec.md §4.7's citation-integrity duty.
func Validator(mem *memory.Memory) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		ev := startEvent(ValidatorStageName, "Validating citations")
		if !yield(ev, nil) {
			return
		}

		latest, ok := mem.GetLatest()
		if !ok {
			yield(completeEvent(ev.ID, ValidatorStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: validator: no report draft to validate"))
			return
		}

		result := ValidationResult{}
		seen := map[string]bool{}
		for _, match := range inTextCitation.FindAllStringSubmatch(latest.Content, -1) {
			id := match[1]
			if seen[id] {
				continue
			}
			seen[id] = true

			if _, ok := mem.GetPaper(id); ok {
				mem.RecordCitation(id, id, "")
				result.Resolved = append(result.Resolved, id)
				continue
			}
			result.Unresolved = append(result.Unresolved, id)
			mem.AddTrackedGap(fmt.Sprintf("unresolved citation marker %q", id), "flagged by validator")
		}

		yield(completeEvent(ev.ID, ValidatorStageName, StatusDone, time.Since(start), map[string]any{
			"resolved":   len(result.Resolved),
			"unresolved": len(result.Unresolved),
		}), nil)
	}
}
