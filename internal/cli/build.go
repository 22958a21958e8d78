package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd(a *app) *cobra.Command {
	var codec, compression string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and persist the index snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if codec != "" {
				a.cfg.Indexer.Codec = codec
			}
			if compression != "" {
				a.cfg.Indexer.Compression = compression
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			snap, err := e.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			stats := snap.Stats()
			fmt.Fprintf(a.out, "indexed %d listings, %d terms (avgdl %.2f, %d malformed) into %s\n",
				stats.Documents, stats.Terms, stats.AvgDocLength, stats.Malformed, a.cfg.Indexer.SnapshotPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&codec, "codec", "", "snapshot codec (json, cbor)")
	cmd.Flags().StringVar(&compression, "compression", "", "snapshot compression (none, zstd, lz4)")
	return cmd
}
