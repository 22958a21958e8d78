package indexer

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
)

// Snapshot is one immutable generation of the searchable corpus: a frozen
// index plus the display metadata of every document. Snapshots are never
// modified after publication; a rebuild publishes a new one.
type Snapshot struct {
	Index      *index.Index
	Metadata   []corpus.Record
	Fields     []string
	Generation uint64
	BuiltAt    time.Time
	Malformed  int
}

// Record returns the metadata of docID, or an empty record.
func (s *Snapshot) Record(docID int) corpus.Record {
	if docID < 0 || docID >= len(s.Metadata) || s.Metadata[docID] == nil {
		return corpus.Record{}
	}
	return s.Metadata[docID]
}

// Stats describes a snapshot for the stats endpoint and the CLI.
type Stats struct {
	Generation   uint64            `json:"generation"`
	Documents    int               `json:"documents"`
	Terms        int               `json:"terms"`
	AvgDocLength float64           `json:"avg_doc_length"`
	Malformed    int               `json:"malformed"`
	Fields       []string          `json:"fields"`
	Normalizer   tokenizer.Options `json:"normalizer"`
	BuiltAt      time.Time         `json:"built_at"`
}

func (s *Snapshot) Stats() Stats {
	return Stats{
		Generation:   s.Generation,
		Documents:    s.Index.N(),
		Terms:        s.Index.TermCount(),
		AvgDocLength: s.Index.AvgDocLength(),
		Malformed:    s.Malformed,
		Fields:       s.Fields,
		Normalizer:   s.Index.Normalizer().Options(),
		BuiltAt:      s.BuiltAt,
	}
}

// IndexCompleteEvent is published on the index-complete topic after a
// rebuild has been persisted.
type IndexCompleteEvent struct {
	Generation   uint64    `json:"generation"`
	Documents    int       `json:"documents"`
	Terms        int       `json:"terms"`
	SnapshotPath string    `json:"snapshot_path"`
	BuiltAt      time.Time `json:"built_at"`
}

// EventIndexComplete is the event-type header of IndexCompleteEvent.
const EventIndexComplete = "index.complete"
