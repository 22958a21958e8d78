package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/validator"
)

type fakeIngester struct {
	got  *ingestion.ListingRequest
	resp *ingestion.ListingResponse
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, req *ingestion.ListingRequest) (*ingestion.ListingResponse, error) {
	f.got = req
	return f.resp, f.err
}

func serve(t *testing.T, ing Ingester, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	New(ing, validator.New(corpus.DefaultFields)).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body)))
	return rec
}

func TestIngest_Accepted(t *testing.T) {
	ing := &fakeIngester{resp: &ingestion.ListingResponse{ListingID: 7, Status: ingestion.StatusAccepted}}
	rec := serve(t, ing, `{"source":"Web Motors","attributes":{"marca":"Fiat","ano":2012}}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, ing.got)
	assert.Equal(t, "web-motors", ing.got.Source)
	assert.Equal(t, json.Number("2012"), ing.got.Attributes["ano"])

	var resp ingestion.ListingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ListingID)
}

func TestIngest_Duplicate(t *testing.T) {
	ing := &fakeIngester{resp: &ingestion.ListingResponse{ListingID: 7, Status: ingestion.StatusDuplicate}}
	rec := serve(t, ing, `{"source":"icarros","attributes":{"modelo":"Gol"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "invalid JSON body"},
		{"validation", `{"source":"","attributes":{}}`, "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{}
			rec := serve(t, ing, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Nil(t, ing.got)
		})
	}
}

func TestIngest_StoreFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("db down")}
	rec := serve(t, ing, `{"source":"icarros","attributes":{"modelo":"Gol"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngest_RejectsTrailingData(t *testing.T) {
	ing := &fakeIngester{}
	rec := serve(t, ing, `{"source":"icarros","attributes":{"modelo":"Gol"}} {"source":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ing.got)
}

func TestIngest_BodyTooLarge(t *testing.T) {
	ing := &fakeIngester{}
	body := `{"source":"icarros","attributes":{"descricao":"` + strings.Repeat("a", maxBodyBytes) + `"}}`
	rec := serve(t, ing, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds 1 MiB")
}
