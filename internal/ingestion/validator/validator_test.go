package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
)

func TestValidate(t *testing.T) {
	v := New(corpus.DefaultFields)
	tests := []struct {
		name      string
		req       ingestion.ListingRequest
		badFields []string
	}{
		{"valid", ingestion.ListingRequest{Source: "webmotors", Attributes: corpus.Record{"marca": "Fiat"}}, nil},
		{"missing source", ingestion.ListingRequest{Attributes: corpus.Record{"marca": "Fiat"}}, []string{"source"}},
		{"punctuation-only source", ingestion.ListingRequest{Source: "!!!", Attributes: corpus.Record{"marca": "Fiat"}}, []string{"source"}},
		{"no attributes", ingestion.ListingRequest{Source: "icarros"}, []string{"attributes"}},
		{"only unindexed attributes", ingestion.ListingRequest{Source: "icarros", Attributes: corpus.Record{"url": "https://x"}}, []string{"attributes"}},
		{"blank indexed value", ingestion.ListingRequest{Source: "icarros", Attributes: corpus.Record{"marca": "  "}}, []string{"attributes"}},
		{"empty attribute name", ingestion.ListingRequest{Source: "icarros", Attributes: corpus.Record{"": "x", "marca": "VW"}}, []string{"attributes"}},
		{"everything wrong", ingestion.ListingRequest{}, []string{"source", "attributes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.badFields == nil {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Fields, len(tt.badFields))
			for _, f := range tt.badFields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidate_SlugsSource(t *testing.T) {
	req := ingestion.ListingRequest{Source: "  Web Motors ", Attributes: corpus.Record{"modelo": "Gol"}}
	require.NoError(t, New(corpus.DefaultFields).Validate(&req))
	assert.Equal(t, "web-motors", req.Source)
}

func TestValidate_SourceTooLong(t *testing.T) {
	req := ingestion.ListingRequest{Source: strings.Repeat("a", 100), Attributes: corpus.Record{"modelo": "Gol"}}
	err := New(corpus.DefaultFields).Validate(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}
