package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

func TestDecodeJSON_Array(t *testing.T) {
	records, err := DecodeJSON(strings.NewReader(`[
		{"marca": "Toyota", "modelo": "Corolla", "ano": 2020},
		{"marca": "Honda", "modelo": "Civic"}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, json.Number("2020"), records[0]["ano"])
	assert.Equal(t, "Civic", records[1]["modelo"])
}

func TestDecodeJSON_ObjectKeepsFileOrder(t *testing.T) {
	records, err := DecodeJSON(strings.NewReader(`{
		"doc_2": {"modelo": "c"},
		"doc_0": {"modelo": "a"},
		"doc_1": {"modelo": "b"}
	}`))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0]["modelo"])
	assert.Equal(t, "a", records[1]["modelo"])
	assert.Equal(t, "b", records[2]["modelo"])
}

func TestDecodeJSON_WebmotorsExport(t *testing.T) {
	records, err := DecodeJSON(strings.NewReader(`{
		"fonte": "webmotors",
		"dados": [
			{"marca": "Toyota", "carros": [
				{"modelo": "Corolla", "anos": [
					{"ano": "2020", "preco": "R$ 110.000", "url": "u1"},
					{"ano": "2021", "preco": "R$ 120.000", "url": "u2"}
				]},
				{"modelo": "Hilux", "anos": [
					{"ano": "2022", "preco": "R$ 250.000", "url": "u3"}
				]}
			]}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Record{"marca": "Toyota", "modelo": "Corolla", "ano": "2021", "preco": "R$ 120.000", "url": "u2"}, records[1])
	assert.Equal(t, "Hilux", records[2]["modelo"])
}

func TestDecodeJSON_ICarrosExport(t *testing.T) {
	records, err := DecodeJSON(strings.NewReader(`{
		"fonte": "icarros.com.br",
		"dados": [
			{"modelo": "Onix", "url_modelo": "m1", "versoes": [
				{"versao": "1.0 LT", "ficha_tecnica_url": "f1",
				 "ficha_tecnica": [{"titulo": "Motor", "dados": {"Potência": "82 cv"}}]},
				{"versao": "1.0 Premier", "ficha_tecnica_url": "f2"}
			]}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Onix", records[0]["modelo"])
	assert.Equal(t, "1.0 LT", records[0]["versao"])
	spec, ok := records[0].Field("ficha_tecnica")
	require.True(t, ok)
	assert.Equal(t, "82 cv Motor", spec)
	assert.Equal(t, "1.0 Premier", records[1]["versao"])
}

func TestDecodeJSON_Empty(t *testing.T) {
	records, err := DecodeJSON(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = DecodeJSON(strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeJSON_Rejects(t *testing.T) {
	_, err := DecodeJSON(strings.NewReader(`"just a string"`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = DecodeJSON(strings.NewReader(`[{"marca": `))
	assert.Error(t, err)
}

func TestDecodeJSON_NonObjectEntriesKeepTheirSlot(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Record
	}{
		{
			name:  "array",
			input: `[{"marca": "Fiat"}, 42, {"marca": "Honda"}]`,
			want:  []Record{{"marca": "Fiat"}, {}, {"marca": "Honda"}},
		},
		{
			name:  "object",
			input: `{"doc_0": 42, "doc_1": {"marca": "Honda"}}`,
			want:  []Record{{}, {"marca": "Honda"}},
		},
		{
			name:  "export",
			input: `{"dados": [{"marca": "Fiat"}, "lixo", {"marca": "Honda"}]}`,
			want:  []Record{{"marca": "Fiat"}, {}, {"marca": "Honda"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeJSON(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, records)
		})
	}

	records, err := DecodeJSON(strings.NewReader(`[{"marca": "Fiat"}, null, {"marca": "Honda"}]`))
	require.NoError(t, err)
	c := NewBuilder([]string{"marca"}).Build(records)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []int{1}, c.Malformed)
	assert.Equal(t, "Honda", c.Metadata(2)["marca"])
}

func TestDecodeJSON_MultipleNestedKeysExpandInFixedOrder(t *testing.T) {
	input := `{"dados": [
		{"marca": "Chevrolet", "versoes": [{"versao": "LT"}], "carros": [{"modelo": "Onix"}]}
	]}`
	for range 20 {
		records, err := DecodeJSON(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, []Record{
			{"marca": "Chevrolet", "modelo": "Onix"},
			{"marca": "Chevrolet", "versao": "LT"},
		}, records)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anuncios.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"marca":"Fiat"}]`), 0o644))

	records, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
