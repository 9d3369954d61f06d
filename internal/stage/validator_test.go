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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

func TestValidatorResolvesKnownCitationsAndFlagsUnknown(t *testing.T) {
	mem := newTestMemory()
	mem.AddPapers([]*paper.Paper{{ID: "p1", Title: "Known Paper"}})
	mem.SaveReportVersion("Evidence shows X [p1]. Disputed claim [p999].", nil, nil)

	_, err := collectEvents(Validator(mem))
	require.NoError(t, err)

	citations := mem.Citations()
	require.Len(t, citations, 1)
	assert.Equal(t, "p1", citations[0].PaperID)

	gaps := mem.TrackedGaps()
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0].Description, "p999")
}

func TestValidatorErrorsWithoutDraft(t *testing.T) {
	mem := newTestMemory()
	_, err := collectEvents(Validator(mem))
	require.Error(t, err)
}
