// Package parser turns a raw query string into a QueryPlan: the distinct
// normalized terms the ranker scores and the trailing model year the
// re-rank stage reads.
package parser

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/rerank"
)

type QueryPlan struct {
	RawQuery string
	Terms    []string
	Year     int
	HasYear  bool
}

// Parse normalizes query with n, which must be the normalizer the index
// was built with.
func Parse(n *tokenizer.Normalizer, query string) *QueryPlan {
	plan := &QueryPlan{
		RawQuery: query,
		Terms:    ranker.Distinct(n.Normalize(query)),
	}
	plan.Year, plan.HasYear = rerank.QueryYear(query)
	return plan
}

// Empty reports whether nothing in the query survived normalization.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Canonical is a stable textual form of the plan: two queries with the
// same canonical form produce the same results.
func (p *QueryPlan) Canonical() string {
	var b strings.Builder
	b.WriteString(strings.Join(p.Terms, ","))
	if p.HasYear {
		b.WriteString("|year=")
		b.WriteString(strconv.Itoa(p.Year))
	}
	return b.String()
}
