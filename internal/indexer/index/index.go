// Package index holds the inverted index: normalized term to postings, with
// per-term document frequency, per-document length and the corpus average
// length. An Index is immutable and safe for concurrent readers.
package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// Index is a frozen inverted index.
type Index struct {
	normalizer  *tokenizer.Normalizer
	terms       map[string]*Term
	docLengths  []int
	totalLength int64
	avgdl       float64
}

func newIndex(n *tokenizer.Normalizer, terms map[string]*Term, docLengths []int, total int64) *Index {
	idx := &Index{
		normalizer:  n,
		terms:       terms,
		docLengths:  docLengths,
		totalLength: total,
	}
	if len(docLengths) > 0 {
		idx.avgdl = float64(total) / float64(len(docLengths))
	}
	return idx
}

// N returns the number of documents, including zero-length ones.
func (idx *Index) N() int {
	return len(idx.docLengths)
}

// AvgDocLength returns the mean document length. It is 0 when N is 0;
// callers must check N before scoring.
func (idx *Index) AvgDocLength() float64 {
	return idx.avgdl
}

// TotalLength returns the sum of all document lengths.
func (idx *Index) TotalLength() int64 {
	return idx.totalLength
}

// DocLength returns the token count of docID, or 0 when out of range.
func (idx *Index) DocLength(docID int) int {
	if docID < 0 || docID >= len(idx.docLengths) {
		return 0
	}
	return idx.docLengths[docID]
}

// DocLengths returns a copy of all document lengths in ID order.
func (idx *Index) DocLengths() []int {
	out := make([]int, len(idx.docLengths))
	copy(out, idx.docLengths)
	return out
}

// Lookup returns the entry for an already-normalized term. The returned
// postings are shared and must not be modified.
func (idx *Index) Lookup(term string) (Term, bool) {
	t, ok := idx.terms[term]
	if !ok {
		return Term{}, false
	}
	return *t, true
}

// TermCount returns the number of distinct terms.
func (idx *Index) TermCount() int {
	return len(idx.terms)
}

// Terms returns every entry sorted by surface.
func (idx *Index) Terms() []TermEntry {
	entries := make([]TermEntry, 0, len(idx.terms))
	for s, t := range idx.terms {
		entries = append(entries, TermEntry{Surface: s, Term: *t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Surface < entries[j].Surface
	})
	return entries
}

// Normalizer returns the pipeline the index was built with.
func (idx *Index) Normalizer() *tokenizer.Normalizer {
	return idx.normalizer
}

// Analyze normalizes text exactly as documents were normalized at build
// time.
func (idx *Index) Analyze(text string) []string {
	return idx.normalizer.Normalize(text)
}

// Restore rebuilds a frozen Index from persisted parts. It checks that
// every posting points at a known document in ascending order, that
// document frequencies match posting counts, and that each document length
// equals the sum of its term frequencies.
func Restore(n *tokenizer.Normalizer, docLengths []int, terms map[string]Term) (*Index, error) {
	if n == nil {
		n = tokenizer.Default()
	}
	numDocs := len(docLengths)
	sums := make([]int, numDocs)
	out := make(map[string]*Term, len(terms))

	for surface, t := range terms {
		if t.DocFreq != len(t.Postings) {
			return nil, fmt.Errorf("term %q: df %d with %d postings: %w",
				surface, t.DocFreq, len(t.Postings), apperrors.ErrCorruptSnapshot)
		}
		prev := -1
		for _, p := range t.Postings {
			if p.DocID <= prev || p.DocID >= numDocs {
				return nil, fmt.Errorf("term %q: posting for document %d out of order or range: %w",
					surface, p.DocID, apperrors.ErrCorruptSnapshot)
			}
			if p.Frequency < 1 {
				return nil, fmt.Errorf("term %q: document %d has frequency %d: %w",
					surface, p.DocID, p.Frequency, apperrors.ErrCorruptSnapshot)
			}
			sums[p.DocID] += p.Frequency
			prev = p.DocID
		}
		tc := t
		out[surface] = &tc
	}

	var total int64
	for id, l := range docLengths {
		if l != sums[id] {
			return nil, fmt.Errorf("document %d: length %d but postings sum to %d: %w",
				id, l, sums[id], apperrors.ErrCorruptSnapshot)
		}
		total += int64(l)
	}

	lengths := make([]int, numDocs)
	copy(lengths, docLengths)
	return newIndex(n, out, lengths, total), nil
}
