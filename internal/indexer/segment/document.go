package segment

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// Document is the persisted-index interchange document. Maps keyed by
// document ID are decoded back into dense slices on load.
type Document struct {
	Version    uint32              `json:"version" cbor:"version"`
	Generation uint64              `json:"generation" cbor:"generation"`
	N          int                 `json:"N" cbor:"N"`
	AvgDL      float64             `json:"avgdl" cbor:"avgdl"`
	DocLengths map[int]int         `json:"doc_lengths" cbor:"doc_lengths"`
	Terms      map[string]TermData `json:"terms" cbor:"terms"`
	Normalizer tokenizer.Options   `json:"normalizer" cbor:"normalizer"`
	Fields     []string            `json:"fields,omitempty" cbor:"fields,omitempty"`
	Metadata   []corpus.Record     `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// TermData is one term of the interchange document.
type TermData struct {
	DocumentFrequency int         `json:"document_frequency" cbor:"document_frequency"`
	Postings          map[int]int `json:"postings" cbor:"postings"`
}

// FromIndex converts idx and its display metadata into a Document.
func FromIndex(idx *index.Index, metadata []corpus.Record, fields []string, generation uint64) *Document {
	lengths := idx.DocLengths()
	doc := &Document{
		Version:    FormatVersion,
		Generation: generation,
		N:          idx.N(),
		AvgDL:      idx.AvgDocLength(),
		DocLengths: make(map[int]int, len(lengths)),
		Terms:      make(map[string]TermData, idx.TermCount()),
		Normalizer: idx.Normalizer().Options(),
		Fields:     fields,
		Metadata:   metadata,
	}
	for id, l := range lengths {
		doc.DocLengths[id] = l
	}
	for _, e := range idx.Terms() {
		postings := make(map[int]int, len(e.Postings))
		for _, p := range e.Postings {
			postings[p.DocID] = p.Frequency
		}
		doc.Terms[e.Surface] = TermData{
			DocumentFrequency: e.DocFreq,
			Postings:          postings,
		}
	}
	return doc
}

// Index rebuilds the frozen index described by the document, including its
// normalizer, and validates it.
func (d *Document) Index() (*index.Index, error) {
	n, err := tokenizer.New(d.Normalizer)
	if err != nil {
		return nil, fmt.Errorf("restoring normalizer: %w", err)
	}
	if d.N != len(d.DocLengths) {
		return nil, fmt.Errorf("N is %d but %d document lengths stored: %w",
			d.N, len(d.DocLengths), apperrors.ErrCorruptSnapshot)
	}
	if len(d.Metadata) != 0 && len(d.Metadata) != d.N {
		return nil, fmt.Errorf("N is %d but %d metadata records stored: %w",
			d.N, len(d.Metadata), apperrors.ErrCorruptSnapshot)
	}

	lengths := make([]int, d.N)
	for id, l := range d.DocLengths {
		if id < 0 || id >= d.N {
			return nil, fmt.Errorf("document length for unknown document %d: %w", id, apperrors.ErrCorruptSnapshot)
		}
		lengths[id] = l
	}

	terms := make(map[string]index.Term, len(d.Terms))
	for surface, td := range d.Terms {
		pl := make(index.PostingList, 0, len(td.Postings))
		for id, tf := range td.Postings {
			pl = append(pl, index.Posting{DocID: id, Frequency: tf})
		}
		sort.Slice(pl, func(i, j int) bool { return pl[i].DocID < pl[j].DocID })
		terms[surface] = index.Term{DocFreq: td.DocumentFrequency, Postings: pl}
	}

	idx, err := index.Restore(n, lengths, terms)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
