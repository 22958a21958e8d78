// Package store keeps raw scraped listings in PostgreSQL. Rows are
// deduplicated by content hash and read back in insertion order, which is
// the document-ID order of every index built from them.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
    id           BIGSERIAL PRIMARY KEY,
    source       TEXT        NOT NULL,
    content_hash TEXT        NOT NULL UNIQUE,
    attributes   JSONB       NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Listing is one stored row.
type Listing struct {
	ID          int64
	Source      string
	ContentHash string
	Attributes  corpus.Record
	CreatedAt   time.Time
}

// Store reads and writes the listings table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store over db.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "listing-store"),
	}
}

// Migrate creates the listings table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, "listings", schema)
}

// Insert stores a listing unless one with the same content hash exists.
// The returned bool reports whether a new row was written; for duplicates
// the existing row is returned.
func (s *Store) Insert(ctx context.Context, source string, attrs corpus.Record) (*Listing, bool, error) {
	hash, err := ContentHash(source, attrs)
	if err != nil {
		return nil, false, err
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, false, fmt.Errorf("encoding attributes: %w", err)
	}

	l := &Listing{Source: source, ContentHash: hash, Attributes: attrs}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO listings (source, content_hash, attributes)
			VALUES ($1, $2, $3)
			ON CONFLICT (content_hash) DO NOTHING
			RETURNING id, created_at`, source, hash, payload).Scan(&l.ID, &l.CreatedAt)
	})
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting listing: %w", err)
	}

	existing, err := s.FindByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("listing %s vanished after conflict", hash)
	}
	s.logger.Debug("duplicate listing", "content_hash", hash, "existing_id", existing.ID)
	return existing, false, nil
}

// FindByHash returns the listing with the given content hash, or nil.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Listing, error) {
	var (
		l       Listing
		payload []byte
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, source, content_hash, attributes, created_at FROM listings WHERE content_hash = $1`,
		hash).Scan(&l.ID, &l.Source, &l.ContentHash, &payload, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying listing by hash: %w", err)
	}
	if l.Attributes, err = decodeRecord(payload); err != nil {
		return nil, err
	}
	return &l, nil
}

// Records returns every listing's attributes ordered by ID. Rows whose
// attributes no longer decode are returned as empty records so document
// IDs stay aligned with row order; the corpus builder flags them as
// malformed.
func (s *Store) Records(ctx context.Context) ([]corpus.Record, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT id, attributes FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []corpus.Record
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			s.logger.Warn("undecodable listing attributes", "listing_id", id, "error", err)
			rec = corpus.Record{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating listings: %w", err)
	}
	return records, nil
}

// Count returns the number of stored listings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return n, nil
}

func decodeRecord(payload []byte) (corpus.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var rec corpus.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding listing attributes: %w", err)
	}
	if rec == nil {
		rec = corpus.Record{}
	}
	return rec, nil
}
