// Package validator checks listing intake requests and canonicalizes the
// source name. Failures carry per-field messages.
package validator

import (
	"fmt"
	"sort"
	"strings"

	goslug "github.com/gosimple/slug"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/ingestion"
)

const (
	maxSourceLength  = 64
	maxAttributes    = 256
	maxAttributeName = 128
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// Validator checks requests against the indexed field list: a listing
// must carry a non-blank value for at least one of them, otherwise it
// would only ever become an empty document.
type Validator struct {
	fields []string
}

// New creates a Validator for the given indexed fields.
func New(fields []string) *Validator {
	return &Validator{fields: fields}
}

// SourceSlug canonicalizes a source name ("Web Motors" → "web-motors").
func SourceSlug(source string) string {
	return goslug.Make(strings.TrimSpace(source))
}

// Validate checks req and rewrites req.Source to its slug.
func (v *Validator) Validate(req *ingestion.ListingRequest) error {
	errs := make(map[string]string)

	source := SourceSlug(req.Source)
	switch {
	case source == "":
		errs["source"] = "source is required"
	case len(source) > maxSourceLength:
		errs["source"] = fmt.Sprintf("source must be at most %d characters", maxSourceLength)
	default:
		req.Source = source
	}

	switch {
	case len(req.Attributes) == 0:
		errs["attributes"] = "attributes are required"
	case len(req.Attributes) > maxAttributes:
		errs["attributes"] = fmt.Sprintf("at most %d attributes allowed", maxAttributes)
	default:
		for name := range req.Attributes {
			if strings.TrimSpace(name) == "" || len(name) > maxAttributeName {
				errs["attributes"] = fmt.Sprintf("attribute names must be 1 to %d characters", maxAttributeName)
				break
			}
		}
		if _, bad := errs["attributes"]; !bad && !v.hasIndexedValue(req) {
			errs["attributes"] = fmt.Sprintf("at least one of %s must be set", strings.Join(v.fields, ", "))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (v *Validator) hasIndexedValue(req *ingestion.ListingRequest) bool {
	for _, f := range v.fields {
		if val, ok := req.Attributes.Field(f); ok && strings.TrimSpace(val) != "" {
			return true
		}
	}
	return false
}
