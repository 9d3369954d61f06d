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

// Package paper defines the canonical bibliographic record shared by every
// source client, the federator, and the two paper caches.
package paper

import (
	"regexp"
	"strings"
)

// Availability is the ordered content-richness tier of a Paper record.
// Values compare numerically: a higher Availability always carries at
// least the data of a lower one.
type Availability int

const (
	MetadataOnly Availability = iota
	WithAbstract
	WithPDFLink
	WithFullText
)

func (a Availability) String() string {
	switch a {
	case MetadataOnly:
		return "metadata_only"
	case WithAbstract:
		return "with_abstract"
	case WithPDFLink:
		return "with_pdf_link"
	case WithFullText:
		return "with_full_text"
	default:
		return "unknown"
	}
}

// Paper is the canonical bibliographic record. It is produced by a
// SourceClient (or restored from PaperCache), owned by PaperCache, and
// borrowed by id into a session's ResearchMemory.
type Paper struct {
	ID string

	Title    string
	Authors  []string
	Year     int
	Abstract string

	Journal string
	Venue   string
	Volume  string
	Issue   string
	Pages   string

	DOI     string
	ArxivID string
	PMID    string

	Subjects []string

	DataAvailability Availability
	SourceOrigin     []string

	Citations  *int
	OpenAccess bool

	PDFURL string
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeDOI strips URL prefixes and lowercases a DOI so that
// "https://doi.org/10.1/X" and "10.1/x" collapse to the same key.
func NormalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	} {
		d = strings.TrimPrefix(d, prefix)
	}
	return d
}

// NormalizeTitle reduces a title to alphanumerics, truncated to 50 chars,
// so that near-duplicate titles from different sources collapse to the
// same dedup key when neither record (or only one) carries a DOI.
func NormalizeTitle(title string) string {
	t := nonAlnum.ReplaceAllString(strings.ToLower(title), "")
	if len(t) > 50 {
		t = t[:50]
	}
	return t
}

// CanonicalKey returns the dedup/identity key for a paper: the normalized
// DOI when present, else a normalized-title key. This is the key the
// Federator and PaperCache use to decide whether two records describe the
// same work (spec.md §3 invariant).
func CanonicalKey(p *Paper) string {
	if p.DOI != "" {
		return "doi:" + NormalizeDOI(p.DOI)
	}
	return "title:" + NormalizeTitle(p.Title)
}

// DeriveID computes the stable-within-a-session Paper.ID: the normalized
// DOI if present, else "<source>:<nativeID>" using the first source that
// contributed the record and the raw native id supplied by that source.
func DeriveID(doi, sourcePrefix, nativeID string) string {
	if doi != "" {
		return "doi:" + NormalizeDOI(doi)
	}
	return sourcePrefix + ":" + nativeID
}

// Merge combines two records describing the same work, preferring the
// higher-availability side as the base and filling gaps from the other.
// It implements the merge invariant from spec.md §3 and §4.1's `update`:
// the maximum DataAvailability, the union of SourceOrigin and Subjects,
// the maximum Citations, and non-empty scalar fields preferred from the
// higher-availability side.
func Merge(a, b *Paper) *Paper {
	base, other := a, b
	if b.DataAvailability > a.DataAvailability {
		base, other = b, a
	}

	merged := *base
	merged.SourceOrigin = unionStrings(a.SourceOrigin, b.SourceOrigin)
	merged.Subjects = unionStrings(a.Subjects, b.Subjects)

	if a.DataAvailability > b.DataAvailability {
		merged.DataAvailability = a.DataAvailability
	} else {
		merged.DataAvailability = b.DataAvailability
	}

	merged.Citations = maxCitations(a.Citations, b.Citations)
	merged.OpenAccess = a.OpenAccess || b.OpenAccess

	merged.Abstract = preferNonEmpty(base.Abstract, other.Abstract)
	merged.Journal = preferNonEmpty(base.Journal, other.Journal)
	merged.Venue = preferNonEmpty(base.Venue, other.Venue)
	merged.Volume = preferNonEmpty(base.Volume, other.Volume)
	merged.Issue = preferNonEmpty(base.Issue, other.Issue)
	merged.Pages = preferNonEmpty(base.Pages, other.Pages)
	merged.DOI = preferNonEmpty(base.DOI, other.DOI)
	merged.ArxivID = preferNonEmpty(base.ArxivID, other.ArxivID)
	merged.PMID = preferNonEmpty(base.PMID, other.PMID)
	merged.PDFURL = preferNonEmpty(base.PDFURL, other.PDFURL)

	if len(base.Authors) == 0 {
		merged.Authors = other.Authors
	}

	return &merged
}

func preferNonEmpty(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

func maxCitations(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
