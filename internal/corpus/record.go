package corpus

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one raw listing as scraped: attribute name to value. Values keep
// whatever JSON shape the source produced.
type Record map[string]any

// Field returns the text rendering of the named attribute and whether the
// attribute exists. A missing attribute renders as "".
func (r Record) Field(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}
	return render(v), true
}

// Int parses the named attribute as an integer, tolerating surrounding
// whitespace and numeric JSON values with no fractional part. Floats outside
// the int32 range are rejected.
func (r Record) Int(name string) (int, bool) {
	v, ok := r[name]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= math.MaxInt32 {
			return int(x), true
		}
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(render(v)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// render converts a decoded JSON value into the text that gets indexed.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		if f, err := x.Float64(); err == nil && !strings.ContainsAny(x.String(), "eE") {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case map[string]any:
		return renderMap(x)
	case Record:
		return renderMap(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := render(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func renderMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := render(m[k]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
