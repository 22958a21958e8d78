package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/postgres"
)

func TestContentHash_KeyOrderIndependent(t *testing.T) {
	var a, b corpus.Record
	require.NoError(t, json.Unmarshal([]byte(`{"marca":"Fiat","modelo":"Uno","ano":2010}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"ano":2010,"modelo":"Uno","marca":"Fiat"}`), &b))

	ha, err := ContentHash("webmotors", a)
	require.NoError(t, err)
	hb, err := ContentHash("webmotors", b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestContentHash_SourceMatters(t *testing.T) {
	rec := corpus.Record{"marca": "Fiat"}
	h1, err := ContentHash("webmotors", rec)
	require.NoError(t, err)
	h2, err := ContentHash("icarros", rec)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestDecodeRecord_KeepsNumbers(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"ano":2015,"preco":45000.5}`))
	require.NoError(t, err)
	ano, ok := rec.Field("ano")
	assert.True(t, ok)
	assert.Equal(t, "2015", ano)

	rec, err = decodeRecord([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, rec)

	_, err = decodeRecord([]byte(`[1,2]`))
	assert.Error(t, err)
}

// TestStore_Postgres runs against a live database when
// CARSEARCH_TEST_POSTGRES_DSN names one.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("CARSEARCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CARSEARCH_TEST_POSTGRES_DSN not set")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	db := postgres.Wrap(sqlDB)
	defer db.Close()

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE listings RESTART IDENTITY`)
	require.NoError(t, err)

	first, inserted, err := s.Insert(ctx, "webmotors", corpus.Record{"marca": "Fiat", "modelo": "Uno"})
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := s.Insert(ctx, "webmotors", corpus.Record{"modelo": "Uno", "marca": "Fiat"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = s.Insert(ctx, "icarros", corpus.Record{"marca": "VW", "modelo": "Gol"})
	require.NoError(t, err)

	records, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	marca, _ := records[1].Field("marca")
	assert.Equal(t, "VW", marca)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
