package corpus

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_TextKeepsFieldPositions(t *testing.T) {
	b := NewBuilder([]string{"marca", "modelo", "ano", "preco"})
	got := b.Text(Record{"marca": "Fiat", "ano": json.Number("2019"), "preco": 45990.5})
	assert.Equal(t, "Fiat  2019 45990.5", got)
}

func TestBuilder_BuildAssignsSequentialIDs(t *testing.T) {
	records := []Record{
		{"marca": "Toyota", "modelo": "Corolla"},
		{"marca": "Honda", "modelo": "Civic"},
		{"marca": "Jeep", "modelo": "Renegade"},
	}
	c := NewBuilder([]string{"marca", "modelo"}).Build(records)

	require.Equal(t, 3, c.Len())
	for i, d := range c.Documents {
		assert.Equal(t, i, d.ID)
		assert.Equal(t, records[i], d.Metadata)
	}
	assert.Equal(t, "Honda Civic", c.Documents[1].Text)
	assert.Empty(t, c.Malformed)
}

func TestBuilder_MalformedRecordsKeepTheirID(t *testing.T) {
	records := []Record{
		{"marca": "Toyota"},
		{"url": "https://example.com/anuncio/1"},
		nil,
		{"marca": "   "},
	}
	c := NewBuilder([]string{"marca", "modelo"}).Build(records)

	require.Equal(t, 4, c.Len())
	assert.Equal(t, []int{1, 2, 3}, c.Malformed)
	assert.Equal(t, " ", c.Documents[1].Text)
	assert.NotNil(t, c.Metadata(2))
	assert.Nil(t, c.Metadata(4))
}

func TestBuilder_EmptyFieldsUseDefaults(t *testing.T) {
	assert.Equal(t, DefaultFields, NewBuilder(nil).Fields())
}

func TestRecord_Field(t *testing.T) {
	r := Record{
		"ano":      json.Number("2020"),
		"preco":    json.Number("89900.00"),
		"blindado": false,
		"cor":      nil,
		"opcional": []any{"teto solar", "multimídia"},
		"motor":    map[string]any{"potencia": "116 cv", "cilindrada": "2.0"},
	}
	tests := []struct {
		name   string
		want   string
		exists bool
	}{
		{"ano", "2020", true},
		{"preco", "89900", true},
		{"blindado", "false", true},
		{"cor", "", true},
		{"opcional", "teto solar multimídia", true},
		{"motor", "2.0 116 cv", true},
		{"cambio", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Field(tt.name)
			assert.Equal(t, tt.exists, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_Int(t *testing.T) {
	r := Record{
		"a": json.Number("2021"),
		"b": " 2019 ",
		"c": 2018.0,
		"d": "2019/2020",
		"e": int64(2017),
	}
	for key, want := range map[string]int{"a": 2021, "b": 2019, "c": 2018, "e": 2017} {
		got, ok := r.Int(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := r.Int("d")
	assert.False(t, ok)
	_, ok = r.Int("missing")
	assert.False(t, ok)
}

func TestRecord_IntRejectsOutOfRangeFloats(t *testing.T) {
	r := Record{"huge": 1e300, "neg": -1e12, "inf": math.Inf(1), "nan": math.NaN(), "edge": float64(math.MaxInt32)}
	for _, key := range []string{"huge", "neg", "inf", "nan"} {
		_, ok := r.Int(key)
		assert.False(t, ok, key)
	}
	got, ok := r.Int("edge")
	require.True(t, ok)
	assert.Equal(t, math.MaxInt32, got)
}
