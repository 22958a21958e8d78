package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// nestedKeys maps the child collection a scraper nests under each parent
// object. Webmotors nests marca → carros → anos; iCarros nests
// modelo → versoes.
var nestedKeys = []string{"carros", "anos", "versoes"}

// LoadJSON reads records from a scraped JSON file. See DecodeJSON for the
// accepted shapes.
func LoadJSON(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening records file %s: %w", path, err)
	}
	defer f.Close()

	records, err := DecodeJSON(f)
	if err != nil {
		return nil, fmt.Errorf("decoding records file %s: %w", path, err)
	}
	return records, nil
}

// DecodeJSON accepts:
//   - an array of objects, one record each;
//   - an object whose values are records (e.g. {"doc_0": {...}}), kept in
//     file order;
//   - a scraper export {"dados": [...]} whose entries may nest child
//     collections (carros, anos, versoes). Each leaf becomes one record
//     carrying its ancestors' scalar attributes.
//
// An entry that is well-formed JSON but not an object keeps its slot as an
// empty Record so later IDs stay aligned; the builder reports it as
// malformed. Only syntax errors abort the load.
func DecodeJSON(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("reading first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("top-level value must be an array or object: %w", apperrors.ErrInvalidInput)
	}

	switch delim {
	case '[':
		return decodeArray(dec)
	case '{':
		return decodeObject(dec)
	default:
		return nil, fmt.Errorf("unexpected delimiter %q: %w", delim, apperrors.ErrInvalidInput)
	}
}

func decodeArray(dec *json.Decoder) ([]Record, error) {
	records := make([]Record, 0)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding record %d: %w", len(records), err)
		}
		records = append(records, recordOrEmpty(fmt.Sprintf("record %d", len(records)), raw))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("closing array: %w", err)
	}
	return records, nil
}

func decodeObject(dec *json.Decoder) ([]Record, error) {
	type entry struct {
		key string
		raw json.RawMessage
	}
	var entries []entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading key: %w", err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding value for %q: %w", key, err)
		}
		entries = append(entries, entry{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("closing object: %w", err)
	}

	for _, e := range entries {
		if e.key == "dados" && isArray(e.raw) {
			return decodeExport(e.raw)
		}
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, recordOrEmpty(fmt.Sprintf("record %q", e.key), e.raw))
	}
	return records, nil
}

func decodeExport(raw json.RawMessage) ([]Record, error) {
	var items []any
	if err := decodeNumbers(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding dados: %w", err)
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			slog.Warn("keeping empty record for non-object entry", "entry", fmt.Sprintf("dados[%d]", i))
			records = append(records, Record{})
			continue
		}
		records = flatten(records, Record{}, obj)
	}
	return records, nil
}

// flatten appends one record per leaf of obj. Scalar attributes of parents
// are inherited by children; a child attribute with the same name wins.
func flatten(out []Record, inherited Record, obj map[string]any) []Record {
	current := make(Record, len(inherited)+len(obj))
	for k, v := range inherited {
		current[k] = v
	}
	var children []any
	nested := false
	for _, k := range nestedKeys {
		if arr, ok := obj[k].([]any); ok {
			children = append(children, arr...)
			nested = true
		}
	}
	for k, v := range obj {
		if _, isArr := v.([]any); isArr && isNestedKey(k) {
			continue
		}
		current[k] = v
	}
	if !nested {
		return append(out, current)
	}
	for _, child := range children {
		childObj, ok := child.(map[string]any)
		if !ok {
			continue
		}
		out = flatten(out, current, childObj)
	}
	return out
}

func isNestedKey(k string) bool {
	for _, n := range nestedKeys {
		if k == n {
			return true
		}
	}
	return false
}

// recordOrEmpty decodes raw as a record, or logs and returns an empty one.
func recordOrEmpty(label string, raw json.RawMessage) Record {
	rec, err := decodeRecord(raw)
	if err != nil {
		slog.Warn("keeping empty record", "entry", label, "error", err)
		return Record{}
	}
	return rec
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	var v any
	if err := decodeNumbers(raw, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record is not an object: %w", apperrors.ErrInvalidInput)
	}
	return Record(obj), nil
}

func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
