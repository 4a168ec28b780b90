package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/layer-3/forum/ports"
)

// applyQuery filters, orders and pages documents the same way for every backend
func applyQuery(docs []ports.Document, q ports.Query) []ports.Document {
	matched := make([]ports.Document, 0, len(docs))
	for _, doc := range docs {
		if matches(doc, q.Where) {
			matched = append(matched, doc)
		}
	}

	less := func(a, b ports.Document) bool {
		if q.OrderBy != "" {
			c := compareValues(a[q.OrderBy], b[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return fmt.Sprint(a["id"]) < fmt.Sprint(b["id"])
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j])
	})

	// The cursor is positioned by its sort key, so it need not match the filter
	if q.After != "" {
		var cursor ports.Document
		for _, doc := range docs {
			if doc["id"] == q.After {
				cursor = doc
				break
			}
		}
		if cursor == nil {
			return []ports.Document{}
		}
		start := sort.Search(len(matched), func(i int) bool {
			return less(cursor, matched[i])
		})
		matched = matched[start:]
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

func matches(doc ports.Document, where map[string]any) bool {
	for field, want := range where {
		got, ok := doc[field]
		if !ok || compareValues(got, want) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders numbers numerically, strings lexically and false before true.
// Missing values sort first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	return compareValues(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func encodeDocument(doc ports.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (ports.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc ports.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func decodeValue(data string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode field: %w", err)
	}
	return v, nil
}
