package index

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// Builder accumulates documents for a single build pass. Documents must be
// added in ID order starting at 0. After Build the builder is frozen.
type Builder struct {
	mu          sync.Mutex
	normalizer  *tokenizer.Normalizer
	postings    map[string]PostingList
	docLengths  []int
	totalLength int64
	size        int64
	built       *Index
}

// NewBuilder returns an empty Builder that analyzes text with n. A nil n
// means tokenizer.Default().
func NewBuilder(n *tokenizer.Normalizer) *Builder {
	if n == nil {
		n = tokenizer.Default()
	}
	return &Builder{
		normalizer: n,
		postings:   make(map[string]PostingList),
	}
}

// AddDocument normalizes text and appends one posting per distinct term.
// docID must equal DocCount(). A document with no terms still counts
// towards N with length zero.
func (b *Builder) AddDocument(docID int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built != nil {
		return apperrors.ErrIndexFrozen
	}
	if docID != len(b.docLengths) {
		return fmt.Errorf("document %d added at position %d: %w", docID, len(b.docLengths), apperrors.ErrOutOfOrder)
	}

	terms := b.normalizer.Normalize(text)

	// First-occurrence order keeps the postings map update deterministic.
	freqs := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, t := range terms {
		if freqs[t] == 0 {
			order = append(order, t)
		}
		freqs[t]++
	}

	for _, t := range order {
		b.postings[t] = append(b.postings[t], Posting{DocID: docID, Frequency: freqs[t]})
		b.size += int64(len(t) + 16)
	}
	b.docLengths = append(b.docLengths, len(terms))
	b.totalLength += int64(len(terms))
	return nil
}

// DocCount returns the number of documents added so far.
func (b *Builder) DocCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docLengths)
}

// Size is a rough estimate of posting memory in bytes.
func (b *Builder) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Build freezes the builder and returns the immutable Index. Calling Build
// again returns the same Index.
func (b *Builder) Build() *Index {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built != nil {
		return b.built
	}
	terms := make(map[string]*Term, len(b.postings))
	for t, pl := range b.postings {
		terms[t] = &Term{DocFreq: len(pl), Postings: pl}
	}
	b.built = newIndex(b.normalizer, terms, b.docLengths, b.totalLength)
	b.postings = nil
	return b.built
}

// BuildIndex indexes every document of c in order.
func BuildIndex(n *tokenizer.Normalizer, c *corpus.Corpus) (*Index, error) {
	b := NewBuilder(n)
	for _, doc := range c.Documents {
		if err := b.AddDocument(doc.ID, doc.Text); err != nil {
			return nil, fmt.Errorf("indexing document %d: %w", doc.ID, err)
		}
	}
	return b.Build(), nil
}
