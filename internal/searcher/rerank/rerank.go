// Package rerank adjusts ranked results after BM25 scoring. It never touches
// the ranker's scoring loop.
package rerank

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/ranker"
)

const (
	DefaultYearField  = "ano"
	DefaultYearWeight = 0.05
)

var trailingYear = regexp.MustCompile(`(19|20)\d{2}$`)

// MetadataFunc returns the raw record for a document, or nil.
type MetadataFunc func(docID int) corpus.Record

// YearPenalty favors listings whose model year is close to a year the query
// ends with.
type YearPenalty struct {
	Field  string
	Weight float64
}

// NewYearPenalty fills empty settings with the "ano" field and a 0.05
// penalty per year of difference.
func NewYearPenalty(field string, weight float64) YearPenalty {
	if field == "" {
		field = DefaultYearField
	}
	if weight == 0 {
		weight = DefaultYearWeight
	}
	return YearPenalty{Field: field, Weight: weight}
}

// QueryYear extracts a 19xx or 20xx year that ends the trimmed query.
func QueryYear(query string) (int, bool) {
	m := trailingYear.FindString(strings.TrimSpace(query))
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}

// Apply subtracts Weight × |query year − listing year| from each result whose
// metadata year is an integer, then stable-sorts by descending score. When
// the query carries no trailing year the results come back unchanged. The
// input slice is not modified.
func (y YearPenalty) Apply(query string, results []ranker.ScoredDoc, lookup MetadataFunc) []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, len(results))
	copy(out, results)

	year, ok := QueryYear(query)
	if !ok || lookup == nil {
		return out
	}
	for i := range out {
		meta := lookup(out[i].DocID)
		if meta == nil {
			continue
		}
		docYear, ok := meta.Int(y.Field)
		if !ok {
			continue
		}
		out[i].Score -= y.Weight * math.Abs(float64(year-docYear))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
