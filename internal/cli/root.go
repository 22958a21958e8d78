// Package cli implements the carsearch command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/logger"
)

// app holds the flags shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	source     string
	snapshot   string
	keepDigits bool

	cfg *config.Config
	out io.Writer
	in  io.Reader
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return newRootCmd(os.Stdin, os.Stdout).Execute()
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}
	root := &cobra.Command{
		Use:   "carsearch",
		Short: "BM25 search over used-car listings",
		Long: `carsearch builds an inverted index over scraped vehicle listings and
ranks them with Okapi BM25.

Build a snapshot once with "carsearch build", then query it with
"carsearch search".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if cmd.Flags().Changed("keep-digits") {
				a.cfg.Normalizer.KeepDigits = a.keepDigits
			}
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&a.source, "source", "", "JSON listings file (overrides the configured source)")
	flags.StringVar(&a.snapshot, "snapshot", "", "snapshot file (overrides the configured path)")
	flags.BoolVar(&a.keepDigits, "keep-digits", false, "index and match digit runs such as model years (overrides the configured normalizer)")

	root.AddCommand(newBuildCmd(a), newSearchCmd(a), newInspectCmd(a))
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.source != "" {
		cfg.Indexer.Source = config.SourceConfig{Type: "json", Path: a.source}
	}
	if a.snapshot != "" {
		cfg.Indexer.DataDir = ""
		cfg.Indexer.SnapshotFile = a.snapshot
	}
	// Logs go to stderr so results on stdout stay pipeable.
	logger.SetupWriter(os.Stderr, a.logLevel, "text")
	a.cfg = cfg
	return nil
}

// engine creates an engine over the configured source and snapshot path.
func (a *app) engine() (*indexer.Engine, error) {
	opts, err := indexer.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	var source indexer.Source
	if a.cfg.Indexer.Source.Type == "json" {
		source, err = indexer.NewSource(a.cfg.Indexer.Source, nil)
		if err != nil {
			return nil, err
		}
	}
	return indexer.NewEngine(opts, source, nil, nil)
}

// openIndex loads the persisted snapshot, building it from the source on
// first use.
func (a *app) openIndex(ctx context.Context) (*indexer.Engine, error) {
	e, err := a.engine()
	if err != nil {
		return nil, err
	}
	snap, err := e.LoadSnapshot(ctx)
	if errors.Is(err, apperrors.ErrIndexNotReady) {
		_, err = e.Rebuild(ctx)
	} else if err == nil {
		err = a.reconcileNormalizer(ctx, e, snap)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// reconcileNormalizer rebuilds when the snapshot was indexed with other
// normalizer options than the ones requested. Without a source to rebuild
// from, the snapshot's options are kept and a warning is logged.
func (a *app) reconcileNormalizer(ctx context.Context, e *indexer.Engine, snap *indexer.Snapshot) error {
	have := snap.Index.Normalizer().Options()
	want := e.NormalizerOptions()
	if have == want {
		return nil
	}
	if a.cfg.Indexer.Source.Type != "json" {
		slog.Warn("snapshot normalizer differs from the requested one; no source to rebuild from, serving the snapshot as built",
			"snapshot", have, "requested", want)
		return nil
	}
	slog.Warn("snapshot normalizer differs from the requested one; rebuilding",
		"snapshot", have, "requested", want)
	_, err := e.Rebuild(ctx)
	return err
}
