package listing

import "strings"

// NormalizeQuery trims and lower-cases a search query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Filter keeps the records where any searchable field contains query as a
// case-insensitive substring. An empty query returns records unchanged.
func Filter(records []Record, query string, fields []string) []Record {
	needle := NormalizeQuery(query)
	if needle == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if matches(record, needle, fields) {
			out = append(out, record)
		}
	}
	return out
}

func matches(record Record, needle string, fields []string) bool {
	for _, field := range fields {
		value := record.Text(field)
		if value == "" {
			continue
		}
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// FilterFacets keeps the records whose fields equal every non-empty facet value.
func FilterFacets(records []Record, facets map[string]string) []Record {
	active := 0
	for _, value := range facets {
		if value != "" {
			active++
		}
	}
	if active == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if facetMatch(record, facets) {
			out = append(out, record)
		}
	}
	return out
}

func facetMatch(record Record, facets map[string]string) bool {
	for field, want := range facets {
		if want == "" {
			continue
		}
		if record.Text(field) != want {
			return false
		}
	}
	return true
}
