package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_SubstringAnyField(t *testing.T) {
	records := []Record{
		{"username": "bangalore_user", "email": "a@site.io"},
		{"username": "other", "email": "x@foo.com"},
	}
	out := Filter(records, "ba", []string{"username", "email"})
	assert.Equal(t, []Record{records[0]}, out)
}

func TestFilter_TrimsAndLowercasesQuery(t *testing.T) {
	records := []Record{
		{"username": "Ahmed", "phone": "0300-1234567"},
		{"username": "bilal", "phone": nil},
		{"username": "ZAHID", "id": 1234},
	}
	fields := []string{"username", "phone", "id", "missing"}

	assert.Equal(t, []Record{records[0]}, Filter(records, "  AHM ", fields))
	assert.Equal(t, []Record{records[0], records[2]}, Filter(records, "123", fields))
	assert.Empty(t, Filter(records, "nobody", fields))
}

func TestFilter_EmptyQueryIsIdentity(t *testing.T) {
	records := []Record{{"username": "a"}, {"username": "b"}}
	assert.Equal(t, records, Filter(records, "", []string{"username"}))
	assert.Equal(t, records, Filter(records, "   ", []string{"username"}))
}

func TestFilter_NeverGrows(t *testing.T) {
	records := []Record{{"a": "x"}, {"a": "xy"}, {"a": "y"}}
	for _, q := range []string{"x", "y", "xy", "z"} {
		assert.LessOrEqual(t, len(Filter(records, q, []string{"a"})), len(records))
	}
}

func TestFilterFacets(t *testing.T) {
	records := []Record{
		{"city_name": "Lahore", "plant_type": "grid"},
		{"city_name": "Karachi", "plant_type": "grid"},
		{"city_name": "Lahore", "plant_type": "hybrid"},
	}

	assert.Equal(t, records, FilterFacets(records, nil))
	assert.Equal(t, records, FilterFacets(records, map[string]string{"city_name": ""}))
	assert.Equal(t, []Record{records[0], records[2]}, FilterFacets(records, map[string]string{"city_name": "Lahore"}))
	assert.Equal(t, []Record{records[2]}, FilterFacets(records, map[string]string{"city_name": "Lahore", "plant_type": "hybrid"}))
}

func TestDedupe(t *testing.T) {
	records := []Record{
		{"id": 1, "username": "a"},
		{"user_id": "u-2", "username": "b"},
		{"id": 1, "username": "a-dup"},
		{"plant_no": "P1", "username": "c", "email": "c@x"},
		{"plant_no": "P1", "username": "c", "email": "c@x"},
		{"user_id": "u-2", "username": "b-dup"},
	}
	out := Dedupe(records, nil)
	assert.Equal(t, []Record{records[0], records[1], records[3]}, out)
	assert.Equal(t, "P1-c-c@x", DedupeKey(records[3], DefaultKeyFields))
}
