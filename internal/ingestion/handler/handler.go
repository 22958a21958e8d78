// Package handler serves the listing intake HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Ingester stores a validated listing. *publisher.Publisher implements it.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.ListingRequest) (*ingestion.ListingResponse, error)
}

type Handler struct {
	ingester  Ingester
	validator *validator.Validator
	logger    *slog.Logger
}

func New(ing Ingester, v *validator.Validator) *Handler {
	return &Handler{
		ingester:  ing,
		validator: v,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/listings", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)
}

// Ingest answers 202 for a new listing and 200 for one already stored.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	req, status, err := decodeListing(w, r)
	if err != nil {
		h.writeError(w, status, err.Error())
		return
	}
	if err := h.validator.Validate(req); err != nil {
		body := map[string]any{"error": "validation failed"}
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			body["fields"] = verr.Fields
		}
		h.writeJSON(w, http.StatusBadRequest, body)
		return
	}

	log := logger.FromContext(r.Context())
	resp, err := h.ingester.Ingest(r.Context(), req)
	if err != nil {
		code := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "source", req.Source, "status_code", code, "error", err)
		h.writeError(w, code, "ingestion failed")
		return
	}
	log.Info("listing ingested", "listing_id", resp.ListingID, "source", req.Source, "status", resp.Status)

	code := http.StatusAccepted
	if resp.Status == ingestion.StatusDuplicate {
		code = http.StatusOK
	}
	h.writeJSON(w, code, resp)
}

// decodeListing reads exactly one JSON object of at most maxBodyBytes.
// Numbers stay json.Number so prices and years keep their spelling.
func decodeListing(w http.ResponseWriter, r *http.Request) (*ingestion.ListingRequest, int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var req ingestion.ListingRequest
	err := dec.Decode(&req)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("trailing data")
	}
	if err == nil {
		return &req, 0, nil
	}
	if tooLarge := (*http.MaxBytesError)(nil); errors.As(err, &tooLarge) {
		return nil, http.StatusRequestEntityTooLarge, errors.New("request body exceeds 1 MiB")
	}
	return nil, http.StatusBadRequest, errors.New("invalid JSON body")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
