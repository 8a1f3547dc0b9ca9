package feed

import (
	"time"
)

// Feed processing types

// Metadata is the channel-level information applied to every entry.
type Metadata struct {
	Title    string
	Language string
}

type Entry struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time // nil when neither published nor updated parses
}

// Candidate is a raw record from any source adapter, before filtering and
// identity assignment.
type Candidate struct {
	Title        string
	Link         string
	Snippet      string
	Publisher    string // empty falls back to the domain
	Language     string
	PublishedAt  *time.Time
	FilterText   string   // screened for negative keywords
	KeywordTexts []string // tried in order until one yields keyword hits
}

// Run identifies one collection batch.
type Run struct {
	ID          string
	RetrievedAt time.Time
}

type Reason string

const (
	ReasonMissingLink     Reason = "missing_link"
	ReasonNegativeKeyword Reason = "negative_keyword"
	ReasonNoKeywordHit    Reason = "no_keyword_hit"
)

// Stats counts what happened to every candidate a source produced.
type Stats struct {
	Seen     int
	Admitted int
	Rejected map[Reason]int
}

func (s *Stats) reject(reason Reason) {
	if s.Rejected == nil {
		s.Rejected = make(map[Reason]int)
	}
	s.Rejected[reason]++
}
