package scan

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawRecord is one loosely typed item of an upstream page, as decoded from
// JSON. Fields may be missing or carry unexpected types.
type RawRecord map[string]any

// Lookup walks a dotted path ("unidadeOrgao.ufSigla") through nested objects.
func (r RawRecord) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the trimmed string at path. Numbers are rendered, other
// types yield "".
func (r RawRecord) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// FirstString returns the first non-empty String among paths.
func (r RawRecord) FirstString(paths ...string) string {
	for _, p := range paths {
		if s := r.String(p); s != "" {
			return s
		}
	}
	return ""
}

// Number returns the finite number at path. Numeric strings are accepted.
func (r RawRecord) Number(path string) (float64, bool) {
	v, ok := r.Lookup(path)
	if !ok {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FirstNumber returns the first numeric value among paths, or 0.
func (r RawRecord) FirstNumber(paths ...string) float64 {
	for _, p := range paths {
		if f, ok := r.Number(p); ok {
			return f
		}
	}
	return 0
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return t, true
	}
	return nil, false
}
