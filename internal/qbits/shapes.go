package qbits

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"plant-console/internal/observability/metrics"
)

// ErrUnexpectedShape is returned when no known payload shape holds a record list.
var ErrUnexpectedShape = errors.New("qbits: unexpected response shape")

// listShape is one place a list endpoint may put its records, with the paths
// of its pagination metadata. Shapes are probed in declaration order.
type listShape struct {
	path     string
	lastPage []string
	total    []string
	// objects accepts an object whose values are all objects (keyed lists)
	// and a single object as a one-record list.
	objects bool
}

// listResult is a decoded list payload.
type listResult struct {
	Records  []map[string]any
	Shape    string
	LastPage int
	Total    int
}

func (c *Client) decodeList(endpoint string, payload any, shapes []listShape) (listResult, error) {
	for _, s := range shapes {
		node, ok := lookup(payload, s.path)
		if !ok {
			continue
		}
		records, ok := asRecords(node, s.objects)
		if !ok {
			continue
		}
		name := s.path
		if name == "" {
			name = "root"
		}
		res := listResult{Records: records, Shape: name}
		res.LastPage, _ = firstInt(payload, s.lastPage)
		res.Total, _ = firstInt(payload, s.total)
		c.logger.Debug("upstream list shape",
			zap.String("endpoint", endpoint),
			zap.String("shape", name),
			zap.Int("records", len(records)),
		)
		metrics.IncResponseShape(endpoint, name)
		return res, nil
	}
	metrics.IncResponseShape(endpoint, "")
	return listResult{}, fmt.Errorf("%w: %s", ErrUnexpectedShape, endpoint)
}

// lookup walks a dotted path through nested objects. The empty path is the payload itself.
func lookup(payload any, path string) (any, bool) {
	if path == "" {
		return payload, payload != nil
	}
	node := payload
	for _, key := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[key]
		if !ok || node == nil {
			return nil, false
		}
	}
	return node, true
}

func asRecords(node any, objects bool) ([]map[string]any, bool) {
	switch value := node.(type) {
	case []any:
		out := make([]map[string]any, 0, len(value))
		for _, item := range value {
			if record, ok := item.(map[string]any); ok {
				out = append(out, record)
			}
		}
		return out, true
	case map[string]any:
		if !objects || len(value) == 0 {
			return nil, false
		}
		keys := make([]string, 0, len(value))
		allObjects := true
		for key, item := range value {
			if _, ok := item.(map[string]any); !ok {
				allObjects = false
				break
			}
			keys = append(keys, key)
		}
		if !allObjects {
			return []map[string]any{value}, true
		}
		sort.Strings(keys)
		out := make([]map[string]any, 0, len(keys))
		for _, key := range keys {
			out = append(out, value[key].(map[string]any))
		}
		return out, true
	default:
		return nil, false
	}
}

func firstInt(payload any, paths []string) (int, bool) {
	for _, path := range paths {
		node, ok := lookup(payload, path)
		if !ok {
			continue
		}
		if n, ok := toInt(node); ok {
			return n, true
		}
	}
	return 0, false
}

func firstString(payload any, paths []string) string {
	for _, path := range paths {
		node, ok := lookup(payload, path)
		if !ok {
			continue
		}
		if s, ok := node.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toInt(v any) (int, bool) {
	switch value := v.(type) {
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return int(n), true
		}
		if f, err := value.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(value), true
	case int:
		return value, true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n, true
		}
	}
	return 0, false
}
