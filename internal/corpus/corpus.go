// Package corpus turns heterogeneous scraped listings into a uniform,
// ordered document list: one text blob per record built from a fixed list of
// attributes, plus the untouched record kept for display.
package corpus

import (
	"log/slog"
	"strings"
)

// DefaultFields is the attribute order used when the caller configures none.
var DefaultFields = []string{"marca", "modelo", "ano", "preco", "cambio", "quilometragem", "cor"}

// Document is a record prepared for indexing. IDs are 0-based in insertion
// order and never change.
type Document struct {
	ID       int
	Text     string
	Metadata Record
}

// Corpus is the ordered output of a Builder.
type Corpus struct {
	Documents []Document
	Fields    []string
	// Malformed lists the IDs of records that had no data in any configured
	// attribute. They are still part of Documents.
	Malformed []int
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	return len(c.Documents)
}

// Metadata returns the raw record for id, or nil if id is out of range.
func (c *Corpus) Metadata(id int) Record {
	if id < 0 || id >= len(c.Documents) {
		return nil
	}
	return c.Documents[id].Metadata
}

// AllMetadata returns the raw records in document order.
func (c *Corpus) AllMetadata() []Record {
	out := make([]Record, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = d.Metadata
	}
	return out
}

// Builder extracts a fixed attribute list from each record.
type Builder struct {
	fields []string
	logger *slog.Logger
}

// NewBuilder returns a Builder for fields. An empty list means DefaultFields.
func NewBuilder(fields []string) *Builder {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	f := make([]string, len(fields))
	copy(f, fields)
	return &Builder{
		fields: f,
		logger: slog.Default().With("component", "corpus-builder"),
	}
}

// Fields returns the configured attribute order.
func (b *Builder) Fields() []string {
	return b.fields
}

// Text renders the configured attributes of r joined by single spaces.
// Missing attributes contribute an empty string so field positions stay
// fixed.
func (b *Builder) Text(r Record) string {
	parts := make([]string, len(b.fields))
	for i, name := range b.fields {
		parts[i], _ = r.Field(name)
	}
	return strings.Join(parts, " ")
}

// Build assigns sequential IDs and never fails: records with no usable data
// become empty documents and are reported in Corpus.Malformed.
func (b *Builder) Build(records []Record) *Corpus {
	c := &Corpus{
		Documents: make([]Document, 0, len(records)),
		Fields:    b.fields,
	}
	for i, r := range records {
		if r == nil {
			r = Record{}
		}
		text := b.Text(r)
		if strings.TrimSpace(text) == "" {
			c.Malformed = append(c.Malformed, i)
			b.logger.Warn("record has no data in configured fields",
				"doc_id", i,
				"fields", b.fields,
			)
		}
		c.Documents = append(c.Documents, Document{
			ID:       i,
			Text:     text,
			Metadata: r,
		})
	}
	if len(c.Malformed) > 0 {
		b.logger.Info("corpus built with malformed records",
			"documents", len(c.Documents),
			"malformed", len(c.Malformed),
		)
	}
	return c
}
