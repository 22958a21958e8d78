package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/ranker"
)

type termReport struct {
	Term     string  `json:"term"`
	DocFreq  int     `json:"doc_freq"`
	IDF      float64 `json:"idf"`
	Postings int     `json:"postings"`
}

type inspectReport struct {
	Path        string       `json:"path"`
	Codec       string       `json:"codec"`
	Compression string       `json:"compression"`
	PayloadSize uint64       `json:"payload_size"`
	RawSize     uint64       `json:"raw_size"`
	Stats       any          `json:"stats"`
	Terms       []termReport `json:"terms,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [term...]",
		Short: "Describe the persisted snapshot and, optionally, some terms",
		Long: `Inspect prints the snapshot header and index statistics as JSON.
Terms given as arguments are normalized with the snapshot's own normalizer
and reported with their document frequency and idf.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Indexer.SnapshotPath()
			header, err := segment.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("reading snapshot header: %w", err)
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			snap, err := e.LoadSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			report := inspectReport{
				Path:        path,
				Codec:       header.Codec.String(),
				Compression: header.Compression.String(),
				PayloadSize: header.PayloadSize,
				RawSize:     header.RawSize,
				Stats:       snap.Stats(),
			}
			n := snap.Index.N()
			for _, arg := range args {
				for _, t := range ranker.Distinct(snap.Index.Analyze(arg)) {
					tr := termReport{Term: t}
					if entry, ok := snap.Index.Lookup(t); ok {
						tr.DocFreq = entry.DocFreq
						tr.IDF = ranker.IDF(n, entry.DocFreq)
						tr.Postings = len(entry.Postings)
					}
					report.Terms = append(report.Terms, tr)
				}
			}

			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}
