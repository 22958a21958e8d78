package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/executor"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	scoreStyle  = cellStyle.Align(lipgloss.Right)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var resultColumns = []string{"Score", "Marca", "Modelo", "Ano", "Preço", "URL"}

// formatScore rounds for display only; ranking keeps full precision.
func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func field(r corpus.Record, name string) string {
	v, _ := r.Field(name)
	return v
}

func resultRow(h executor.Hit) []string {
	return []string{
		formatScore(h.Score),
		field(h.Metadata, "marca"),
		field(h.Metadata, "modelo"),
		field(h.Metadata, "ano"),
		field(h.Metadata, "preco"),
		field(h.Metadata, "url"),
	}
}

// printResults renders hits as a table on a terminal and as plain lines
// otherwise.
func printResults(w io.Writer, hits []executor.Hit, styled bool) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	if !styled {
		for _, h := range hits {
			r := resultRow(h)
			fmt.Fprintf(w, "[%s] %s %s %s  -> %s\n", r[0], r[1], r[2], r[3], r[4])
			if r[5] != "" {
				fmt.Fprintf(w, "    %s\n", r[5])
			}
		}
		return
	}
	rows := make([][]string, len(hits))
	for i, h := range hits {
		rows[i] = resultRow(h)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(resultColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return scoreStyle
			default:
				return cellStyle
			}
		})
	fmt.Fprintln(w, t.Render())
}

type batchRow struct {
	Query string
	Hits  []executor.Hit
}

// writeBatchCSV writes one row per query: the query, then one
// "marca modelo ano|score" cell per hit, padded with empty cells to topK.
func writeBatchCSV(w io.Writer, rows []batchRow, topK int) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, topK+1)
	header = append(header, "consulta")
	for i := 1; i <= topK; i++ {
		header = append(header, fmt.Sprintf("doc%d_score", i))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, 1, topK+1)
		record[0] = row.Query
		for i, h := range row.Hits {
			if i == topK {
				break
			}
			record = append(record, fmt.Sprintf("%s %s %s|%s",
				field(h.Metadata, "marca"),
				field(h.Metadata, "modelo"),
				field(h.Metadata, "ano"),
				formatScore(h.Score),
			))
		}
		for len(record) < topK+1 {
			record = append(record, "")
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
