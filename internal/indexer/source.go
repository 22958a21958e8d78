package indexer

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

// Source yields the ordered raw record stream a rebuild indexes. Record
// order becomes document-ID order.
type Source interface {
	Records(ctx context.Context) ([]corpus.Record, error)
}

// FileSource reads a scraped JSON export on every rebuild.
type FileSource struct {
	Path string
}

func (s FileSource) Records(ctx context.Context) ([]corpus.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return corpus.LoadJSON(s.Path)
}

// StaticSource serves a fixed record slice.
type StaticSource []corpus.Record

func (s StaticSource) Records(context.Context) ([]corpus.Record, error) {
	return s, nil
}

// NewSource builds the Source named by cfg.Type: "json" reads cfg.Path,
// "postgres" reads the listing store over db.
func NewSource(cfg config.SourceConfig, db *postgres.Client) (Source, error) {
	switch cfg.Type {
	case "", "json":
		if cfg.Path == "" {
			return nil, fmt.Errorf("json source needs a path")
		}
		return FileSource{Path: cfg.Path}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres source needs a database connection")
		}
		return store.New(db), nil
	default:
		return nil, fmt.Errorf("unknown record source %q", cfg.Type)
	}
}
