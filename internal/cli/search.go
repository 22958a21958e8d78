package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		topK   int
		file   string
		output string
		rerank bool
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search the listings",
		Long: `Search the listings with a single query, a file of queries (one per
line), or interactively when neither is given. An empty line ends an
interactive session.`,
		Example: `  carsearch search hilux 2022 diesel
  carsearch search -f consultas.txt -o saida.csv -k 20
  carsearch search`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK < 1 {
				return fmt.Errorf("-k %d: %w", topK, apperrors.ErrInvalidTopK)
			}
			if output != "" && file == "" {
				return fmt.Errorf("--output requires --file")
			}
			ctx := cmd.Context()
			e, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			ex := executor.New(e, a.cfg.Search, nil)
			search := func(q string) (*executor.SearchResult, error) {
				req := executor.Request{Query: q, Limit: topK}
				if cmd.Flags().Changed("rerank") {
					req.Rerank = &rerank
				}
				return ex.Search(ctx, req)
			}
			styled := isTerminal(a.out)

			switch {
			case file != "":
				return runBatch(a, file, output, topK, search, styled)
			case len(args) > 0:
				res, err := search(strings.Join(args, " "))
				if err != nil {
					return err
				}
				printResults(a.out, res.Results, styled)
				return nil
			default:
				return runREPL(ctx, a.in, a.out, isTerminal(a.in), func(q string) error {
					res, err := search(q)
					if err != nil {
						return err
					}
					printResults(a.out, res.Results, styled)
					return nil
				})
			}
		},
	}
	cmd.Flags().IntVarP(&topK, "topk", "k", 10, "number of results per query")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one query per line")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV file for the results of --file")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "favor listings of the year a query ends with")
	return cmd
}

func runBatch(
	a *app,
	path, output string,
	topK int,
	search func(string) (*executor.SearchResult, error),
	styled bool,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening queries: %w", err)
	}
	defer f.Close()
	queries, err := readQueries(f)
	if err != nil {
		return err
	}

	rows := make([]batchRow, 0, len(queries))
	for _, q := range queries {
		res, err := search(q)
		if err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
		rows = append(rows, batchRow{Query: q, Hits: res.Results})
	}

	if output == "" {
		for _, row := range rows {
			fmt.Fprintf(a.out, "\n%s\n", row.Query)
			printResults(a.out, row.Hits, styled)
		}
		return nil
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	if err := writeBatchCSV(out, rows, topK); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", output, err)
	}
	fmt.Fprintf(a.out, "results saved to %s\n", output)
	return nil
}

// readQueries returns the non-blank lines of r, trimmed.
func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return queries, nil
}

// runREPL answers one query per line until an empty line, EOF, or ctx is
// done. The prompt is only shown on a terminal.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, prompt bool, search func(string) error) error {
	if prompt {
		fmt.Fprintln(out, "interactive mode (empty line to quit)")
	}
	reader := bufio.NewReader(in)
	for ctx.Err() == nil {
		if prompt {
			fmt.Fprint(out, "consulta> ")
		}
		line, err := reader.ReadString('\n')
		q := strings.TrimSpace(line)
		if q == "" {
			return nil
		}
		if serr := search(q); serr != nil {
			return serr
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading query: %w", err)
		}
	}
	return nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
