// Package ingestion defines the request/response types and Kafka event
// schemas of the listing intake pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/corpus"
)

// EventListingIngested is the event-type header of ListingEvent messages.
const EventListingIngested = "listing.ingested"

// ListingRequest is the JSON body accepted by POST /api/v1/listings. Source
// names the scraper ("webmotors", "icarros", ...); Attributes is the raw
// scraped record.
type ListingRequest struct {
	Source     string        `json:"source"`
	Attributes corpus.Record `json:"attributes"`
}

// ListingResponse is returned once a listing is stored.
type ListingResponse struct {
	ListingID   int64  `json:"listing_id"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
}

// Listing statuses reported to callers.
const (
	StatusAccepted  = "ACCEPTED"
	StatusDuplicate = "DUPLICATE"
)

// ListingEvent is published to the listing-ingest topic after a new
// listing is persisted. The indexer only needs to know that the corpus
// changed; the record itself is re-read from the store on rebuild.
type ListingEvent struct {
	ListingID   int64     `json:"listing_id"`
	Source      string    `json:"source"`
	ContentHash string    `json:"content_hash"`
	IngestedAt  time.Time `json:"ingested_at"`
}
