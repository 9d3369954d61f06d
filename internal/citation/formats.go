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

package citation

import (
	"fmt"
	"strings"
)

func formatReference(style Style, number int, c CitationData) string {
	switch style {
	case APA:
		return formatAPA(c)
	case MLA:
		return formatMLA(c)
	case Chicago:
		return formatChicago(c)
	case IEEE:
		return formatIEEE(number, c)
	case GBT7714:
		return formatGBT7714(number, c)
	default:
		return c.Title
	}
}

func joinAuthorsAmpersand(authors []string) string {
	switch len(authors) {
	case 0:
		return "Anon."
	case 1:
		return authors[0]
	default:
		return strings.Join(authors[:len(authors)-1], ", ") + " & " + authors[len(authors)-1]
	}
}

func formatAPA(c CitationData) string {
	s := fmt.Sprintf("%s (%d). %s.", joinAuthorsAmpersand(c.Authors), c.Year, c.Title)
	if c.Venue != "" {
		s += fmt.Sprintf(" %s.", c.Venue)
	}
	if c.DOI != "" {
		s += fmt.Sprintf(" https://doi.org/%s", c.DOI)
	}
	return s
}

func formatMLA(c CitationData) string {
	s := fmt.Sprintf("%s. \"%s.\"", joinAuthorsAmpersand(c.Authors), c.Title)
	if c.Venue != "" {
		s += fmt.Sprintf(" %s,", c.Venue)
	}
	s += fmt.Sprintf(" %d.", c.Year)
	return s
}

func formatChicago(c CitationData) string {
	s := fmt.Sprintf("%s. %q. %s", joinAuthorsAmpersand(c.Authors), c.Title, fmt.Sprint(c.Year))
	if c.Venue != "" {
		s += fmt.Sprintf(" %s.", c.Venue)
	}
	return s
}

func formatIEEE(number int, c CitationData) string {
	s := fmt.Sprintf("[%d] %s, \"%s,\"", number, joinAuthorsAmpersand(c.Authors), c.Title)
	if c.Venue != "" {
		s += fmt.Sprintf(" %s,", c.Venue)
	}
	s += fmt.Sprintf(" %d.", c.Year)
	return s
}

func formatGBT7714(number int, c CitationData) string {
	s := fmt.Sprintf("[%d]%s. %s[J].", number, joinAuthorsAmpersand(c.Authors), c.Title)
	if c.Venue != "" {
		s += fmt.Sprintf(" %s,", c.Venue)
	}
	s += fmt.Sprintf(" %d.", c.Year)
	return s
}
