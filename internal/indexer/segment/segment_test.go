package segment

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

func sampleSnapshot(t *testing.T) (*index.Index, *Document) {
	t.Helper()
	records := []corpus.Record{
		{"marca": "Toyota", "modelo": "Corolla", "ano": "2020", "cambio": "automatico"},
		{"marca": "Toyota", "modelo": "Hilux", "ano": "2022", "cambio": "diesel"},
		{"marca": "Honda", "modelo": "Civic", "ano": "2020", "cambio": "automatico"},
		{"url": "https://example.com/sem-dados"},
	}
	fields := []string{"marca", "modelo", "ano", "cambio"}
	c := corpus.NewBuilder(fields).Build(records)
	n, err := tokenizer.New(tokenizer.Options{KeepDigits: true, Stemmer: tokenizer.StemmerSuffix})
	require.NoError(t, err)
	idx, err := index.BuildIndex(n, c)
	require.NoError(t, err)
	return idx, FromIndex(idx, c.AllMetadata(), fields, 7)
}

func TestWriteRead_RoundTripEveryEncoding(t *testing.T) {
	idx, doc := sampleSnapshot(t)
	queries := []string{"corolla 2020", "toyota", "honda automatico", "2022 diesel"}

	for _, codec := range []Codec{CodecJSON, CodecCBOR} {
		for _, comp := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
			t.Run(codec.String()+"/"+comp.String(), func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "snap", "listings.csix")
				header, err := NewWriter(path, codec, comp).Write(doc)
				require.NoError(t, err)
				assert.Equal(t, uint32(4), header.DocCount)

				got, readHeader, err := Read(path)
				require.NoError(t, err)
				assert.Equal(t, header.Checksum, readHeader.Checksum)
				assert.Equal(t, codec, readHeader.Codec)
				assert.Equal(t, uint64(7), got.Generation)
				assert.Equal(t, []string{"marca", "modelo", "ano", "cambio"}, got.Fields)
				require.Len(t, got.Metadata, 4)
				assert.Equal(t, "Hilux", got.Metadata[1]["modelo"])

				restored, err := got.Index()
				require.NoError(t, err)
				assert.Equal(t, idx.N(), restored.N())
				assert.Equal(t, idx.AvgDocLength(), restored.AvgDocLength())
				assert.Equal(t, idx.Terms(), restored.Terms())
				assert.Equal(t, idx.Normalizer().Options(), restored.Normalizer().Options())

				for _, q := range queries {
					want, err := ranker.Search(idx, q, ranker.DefaultParams())
					require.NoError(t, err)
					have, err := ranker.Search(restored, q, ranker.DefaultParams())
					require.NoError(t, err)
					assert.Equal(t, want, have, q)
				}

				_, err = os.Stat(path + ".tmp")
				assert.True(t, os.IsNotExist(err))
			})
		}
	}
}

func TestRead_MetadataTypesMatchAcrossCodecs(t *testing.T) {
	records := []corpus.Record{{
		"marca": "Fiat",
		"ano":   json.Number("2019"),
		"preco": json.Number("45990.5"),
		"km":    json.Number("-3"),
		"ano_s": "2020",
		"fotos": []any{json.Number("1"), "capa"},
		"ficha": map[string]any{"portas": json.Number("4")},
	}}
	c := corpus.NewBuilder([]string{"marca", "ano"}).Build(records)
	idx, err := index.BuildIndex(nil, c)
	require.NoError(t, err)
	doc := FromIndex(idx, c.AllMetadata(), c.Fields, 1)

	var got []corpus.Record
	for _, codec := range []Codec{CodecJSON, CodecCBOR} {
		path := filepath.Join(t.TempDir(), "listings.csix")
		_, err := NewWriter(path, codec, CompressionNone).Write(doc)
		require.NoError(t, err)
		read, _, err := Read(path)
		require.NoError(t, err)
		got = append(got, read.Metadata[0])
	}
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, json.Number("2019"), got[1]["ano"])
	assert.Equal(t, "2020", got[1]["ano_s"])
	assert.Equal(t, json.Number("2019"), records[0]["ano"], "encoding leaves the caller's records alone")
}

func TestWrite_CBORIsDeterministic(t *testing.T) {
	_, doc := sampleSnapshot(t)
	a, err := encode(CodecCBOR, doc)
	require.NoError(t, err)
	b, err := encode(CodecCBOR, doc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWrite_JSONUsesInterchangeKeys(t *testing.T) {
	_, doc := sampleSnapshot(t)
	raw, err := encode(CodecJSON, doc)
	require.NoError(t, err)
	s := string(raw)
	for _, key := range []string{`"N":4`, `"avgdl":`, `"doc_lengths":`, `"document_frequency":`, `"postings":`} {
		assert.True(t, strings.Contains(s, key), key)
	}
}

func TestRead_DetectsCorruption(t *testing.T) {
	_, doc := sampleSnapshot(t)
	path := filepath.Join(t.TempDir(), "listings.csix")
	_, err := NewWriter(path, CodecJSON, CompressionNone).Write(doc)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, flipped, 0o644))
	_, _, err = Read(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	require.NoError(t, os.WriteFile(path, badMagic, 0o644))
	_, _, err = Read(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)

	require.NoError(t, os.WriteFile(path, data[:HeaderSize-1], 0o644))
	_, err = ReadHeader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)

	require.NoError(t, os.WriteFile(path, data[:len(data)-10], 0o644))
	_, _, err = Read(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestRead_RejectsBadRawSize(t *testing.T) {
	_, doc := sampleSnapshot(t)
	for _, comp := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "listings.csix")
			header, err := NewWriter(path, CodecJSON, comp).Write(doc)
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)

			for _, size := range []uint64{1 << 62, header.RawSize + 1} {
				bad := append([]byte(nil), data...)
				binary.LittleEndian.PutUint64(bad[32:40], size)
				require.NoError(t, os.WriteFile(path, bad, 0o644))
				_, _, err = Read(path)
				assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot, "raw size %d", size)
			}
		})
	}
}

func TestDocument_IndexRejectsInconsistentCounts(t *testing.T) {
	_, doc := sampleSnapshot(t)
	doc.N = 5
	_, err := doc.Index()
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestWriteRead_EmptyIndex(t *testing.T) {
	idx := index.NewBuilder(nil).Build()
	path := filepath.Join(t.TempDir(), "empty.csix")
	_, err := NewWriter(path, CodecCBOR, CompressionZstd).Write(FromIndex(idx, nil, nil, 1))
	require.NoError(t, err)

	doc, _, err := Read(path)
	require.NoError(t, err)
	restored, err := doc.Index()
	require.NoError(t, err)
	assert.Equal(t, 0, restored.N())
}

func TestParseCodecAndCompression(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c)
	_, err = ParseCodec("protobuf")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	comp, err := ParseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, comp)
	_, err = ParseCompression("brotli")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
