package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
)

// BenchmarkSearchParallel measures concurrent query throughput against one
// published snapshot.
func BenchmarkSearchParallel(b *testing.B) {
	models := []string{"Gol", "Uno", "Civic", "Corolla", "Onix"}
	records := make(indexer.StaticSource, 10000)
	for i := range records {
		records[i] = corpus.Record{
			"marca":  "Marca",
			"modelo": models[i%len(models)],
			"ano":    fmt.Sprint(2005 + i%18),
		}
	}
	e, err := indexer.NewEngine(indexer.Options{Fields: corpus.DefaultFields}, records, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := e.Rebuild(context.Background()); err != nil {
		b.Fatal(err)
	}
	ex := New(e, config.Default().Search, nil)
	rerank := true

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := ex.Search(context.Background(), Request{Query: "civic 2014", Rerank: &rerank}); err != nil {
				b.Fatal(err)
			}
		}
	})
}
