// Package ranker scores documents of an inverted index against a query with
// Okapi BM25 and selects the top k.
package ranker

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

const (
	DefaultK1   = 1.5
	DefaultB    = 0.75
	DefaultTopK = 10
)

// ScoredDoc is one ranked document. Score is the raw BM25 sum, never
// clamped or rounded.
type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Params are the BM25 free parameters and the result cutoff.
type Params struct {
	K1   float64
	B    float64
	TopK int
}

// DefaultParams returns k1=1.5, b=0.75, topk=10.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB, TopK: DefaultTopK}
}

// validate checks p and the index before any scoring work.
func (p Params) validate(idx *index.Index) error {
	if p.TopK < 1 {
		return fmt.Errorf("topk %d: %w", p.TopK, apperrors.ErrInvalidTopK)
	}
	if p.K1 < 0 || math.IsNaN(p.K1) || math.IsInf(p.K1, 0) {
		return fmt.Errorf("k1 %v must be finite and non-negative: %w", p.K1, apperrors.ErrInvalidInput)
	}
	if !(p.B >= 0 && p.B <= 1) {
		return fmt.Errorf("b %v must be within [0,1]: %w", p.B, apperrors.ErrInvalidInput)
	}
	if idx == nil || idx.N() == 0 {
		return apperrors.ErrEmptyCorpus
	}
	return nil
}

// Search normalizes query with the index's own normalizer and ranks the
// matching documents. A query with no terms after normalization returns an
// empty result and no error.
func Search(idx *index.Index, query string, p Params) ([]ScoredDoc, error) {
	if err := p.validate(idx); err != nil {
		return nil, err
	}
	return rank(idx, idx.Analyze(query), p), nil
}

// Rank scores already-normalized terms. Repeated terms count once and
// terms missing from the index are ignored.
func Rank(idx *index.Index, terms []string, p Params) ([]ScoredDoc, error) {
	if err := p.validate(idx); err != nil {
		return nil, err
	}
	return rank(idx, terms, p), nil
}

type candidate struct {
	docID   int
	score   float64
	ordinal int
}

func rank(idx *index.Index, terms []string, p Params) []ScoredDoc {
	if len(terms) == 0 {
		return []ScoredDoc{}
	}

	n := idx.N()
	avgdl := idx.AvgDocLength()

	slot := make(map[int]int)
	var cands []candidate
	contrib := make([]float64, 0)

	for _, term := range Distinct(terms) {
		entry, ok := idx.Lookup(term)
		if !ok {
			continue
		}
		idf := IDF(n, entry.DocFreq)

		contrib = contrib[:0]
		finite := true
		for _, posting := range entry.Postings {
			c := idf * TFNorm(float64(posting.Frequency), float64(idx.DocLength(posting.DocID)), avgdl, p.K1, p.B)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				finite = false
				break
			}
			contrib = append(contrib, c)
		}
		if !finite {
			continue
		}

		for i, posting := range entry.Postings {
			s, seen := slot[posting.DocID]
			if !seen {
				s = len(cands)
				slot[posting.DocID] = s
				cands = append(cands, candidate{docID: posting.DocID, ordinal: s})
			}
			cands[s].score += contrib[i]
		}
	}

	top := selectTop(cands, p.TopK)
	out := make([]ScoredDoc, len(top))
	for i, c := range top {
		out[i] = ScoredDoc{DocID: c.docID, Score: c.score}
	}
	return out
}

// IDF is ln(1 + (N - df + 0.5) / (df + 0.5)).
func IDF(n, df int) float64 {
	return math.Log1p((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
}

// TFNorm is the length-normalized term frequency
// tf·(k1+1) / (tf + k1·(1 − b + b·dl/avgdl)).
func TFNorm(tf, docLength, avgDocLength, k1, b float64) float64 {
	return tf * (k1 + 1) / (tf + k1*(1-b+b*docLength/avgDocLength))
}

// Distinct returns terms without repeats, in first-occurrence order.
func Distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
