package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DataError reports a single field that could not be parsed. The extractor
// recovers from it with a documented default and never returns it.
type DataError struct {
	Field string
	Value string
	Err   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("unparsable %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate accepts an ISO date or datetime and returns it in UTC.
func ParseDate(field, raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, &DataError{Field: field, Value: raw, Err: fmt.Errorf("empty")}
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, &DataError{Field: field, Value: raw, Err: lastErr}
}

// AsList normalises a loosely typed list field into trimmed, non-empty entries.
func AsList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return single(v)
	case []byte:
		return fromJSON(v)
	case json.RawMessage:
		return fromJSON(v)
	case []string:
		return compact(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, entryString(item))
		}
		return compact(out)
	case []map[string]any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, joinValues(item))
		}
		return compact(out)
	case map[string]any:
		return single(joinValues(v))
	case map[string]string:
		generic := make(map[string]any, len(v))
		for k, s := range v {
			generic[k] = s
		}
		return single(joinValues(generic))
	case bool:
		if !v {
			return nil
		}
		return single(fmt.Sprint(v))
	case int:
		if v == 0 {
			return nil
		}
	case float64:
		if v == 0 {
			return nil
		}
	}
	return single(fmt.Sprint(value))
}

func fromJSON(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return single(string(raw))
	}
	return AsList(decoded)
}

func entryString(item any) string {
	switch v := item.(type) {
	case nil:
		return ""
	case map[string]any:
		return joinValues(v)
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// joinValues joins an object's values in key order so the result is stable.
func joinValues(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if m[k] == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(m[k])); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func single(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
