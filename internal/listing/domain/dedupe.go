package listing

import "strings"

// DefaultKeyFields are the identity fields probed, in order, when merging user pages.
var DefaultKeyFields = []string{"id", "user_id", "client_id", "uid", "qbits_user_id"}

var fallbackKeyFields = []string{"plant_no", "username", "email"}

// DedupeKey returns the first non-empty key field, or plant_no-username-email.
func DedupeKey(record Record, keyFields []string) string {
	for _, field := range keyFields {
		if value := record.Text(field); value != "" {
			return value
		}
	}
	parts := make([]string, len(fallbackKeyFields))
	for i, field := range fallbackKeyFields {
		parts[i] = record.Text(field)
	}
	return strings.Join(parts, "-")
}

// Dedupe keeps the first record for each key, preserving order.
func Dedupe(records []Record, keyFields []string) []Record {
	if len(keyFields) == 0 {
		keyFields = DefaultKeyFields
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, record := range records {
		key := DedupeKey(record, keyFields)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, record)
	}
	return out
}
