package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid topk", fmt.Errorf("searching: %w", ErrInvalidTopK), http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"empty corpus", fmt.Errorf("ranking: %w", ErrEmptyCorpus), http.StatusServiceUnavailable},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"conflict", ErrIdempotencyConflict, http.StatusConflict},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %q missing", "marca")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, `invalid input: field "marca" missing`, err.Error())
}

func TestAppError_WithoutMessage(t *testing.T) {
	assert.Equal(t, "index not loaded", New(ErrIndexNotReady, http.StatusServiceUnavailable, "").Error())
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "searching: topk must be at least 1", PublicMessage(fmt.Errorf("searching: %w", ErrInvalidTopK)))
	assert.Equal(t, "index not loaded", PublicMessage(ErrIndexNotReady))
	assert.Equal(t, "internal error", PublicMessage(fmt.Errorf("reading segment /var/lib/carsearch/gen-3: %w", ErrCorruptSnapshot)))
	assert.Equal(t, "internal error: listing store unavailable",
		PublicMessage(New(ErrInternal, http.StatusInternalServerError, "listing store unavailable")))
}
