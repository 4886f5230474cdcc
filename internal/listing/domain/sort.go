package listing

import (
	"cmp"
	"slices"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection validates a direction string.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case Asc:
		return Asc, true
	case Desc:
		return Desc, true
	default:
		return "", false
	}
}

// Flip returns the opposite direction. Anything that is not desc flips to desc.
func (d Direction) Flip() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// Rule is the comparison strategy applied to a sortable field.
type Rule string

const (
	// RuleNumeric compares parsed floats; missing or unparsable is 0.
	RuleNumeric Rule = "numeric"
	// RuleString compares lower-cased strings; missing is "".
	RuleString Rule = "caseInsensitiveString"
	// RuleDate compares epoch milliseconds; missing or unparsable is 0.
	RuleDate Rule = "date"
	// RuleGrouped orders letters, then digits, then everything else. Only the
	// within-group comparison follows the direction.
	RuleGrouped Rule = "groupedAlphaNumeric"
)

// Valid reports whether r is a known rule.
func (r Rule) Valid() bool {
	switch r {
	case RuleNumeric, RuleString, RuleDate, RuleGrouped:
		return true
	default:
		return false
	}
}

// FieldRule declares how a field sorts and which direction it starts in.
type FieldRule struct {
	Rule             Rule      `yaml:"rule" json:"rule"`
	DefaultDirection Direction `yaml:"default_direction" json:"default_direction,omitempty"`
}

// Rules maps sortable field names to their rule.
type Rules map[string]FieldRule

// SortSpec is the active sort of a view.
type SortSpec struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Toggle flips the direction when field is already active, otherwise selects
// field with its declared default direction.
func Toggle(current SortSpec, field string, rules Rules) SortSpec {
	if field == current.Field {
		return SortSpec{Field: field, Direction: current.Direction.Flip()}
	}
	direction := Asc
	if rule, ok := rules[field]; ok {
		if d, valid := ParseDirection(string(rule.DefaultDirection)); valid {
			direction = d
		}
	}
	return SortSpec{Field: field, Direction: direction}
}

type sortKey struct {
	group int
	num   float64
	ms    int64
	text  string
}

type keyed struct {
	record Record
	key    sortKey
}

// Sort returns a stably sorted copy of records. Unknown fields keep input order.
func Sort(records []Record, spec SortSpec, rules Rules) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	rule, ok := rules[spec.Field]
	if !ok || !rule.Rule.Valid() || len(out) < 2 {
		return out
	}

	items := make([]keyed, len(out))
	for i, record := range out {
		items[i] = keyed{record: record, key: buildKey(rule.Rule, record.Get(spec.Field))}
	}
	desc := spec.Direction == Desc
	slices.SortStableFunc(items, func(a, b keyed) int {
		return compareKeys(rule.Rule, a.key, b.key, desc)
	})
	for i, item := range items {
		out[i] = item.record
	}
	return out
}

func buildKey(rule Rule, value any) sortKey {
	switch rule {
	case RuleNumeric:
		return sortKey{num: Number(value)}
	case RuleDate:
		return sortKey{ms: Millis(value)}
	case RuleString:
		return sortKey{text: strings.ToLower(Text(value))}
	case RuleGrouped:
		name := strings.TrimSpace(Text(value))
		return sortKey{group: groupOf(name), text: strings.ToLower(name)}
	default:
		return sortKey{}
	}
}

// groupOf: 0 ASCII letter first, 1 ASCII digit first, 2 anything else including empty.
func groupOf(name string) int {
	if name == "" {
		return 2
	}
	switch first := name[0]; {
	case isLetter(first):
		return 0
	case isDigit(first):
		return 1
	default:
		return 2
	}
}

func compareKeys(rule Rule, a, b sortKey, desc bool) int {
	var c int
	switch rule {
	case RuleNumeric:
		c = cmp.Compare(a.num, b.num)
	case RuleDate:
		c = cmp.Compare(a.ms, b.ms)
	case RuleString:
		c = strings.Compare(a.text, b.text)
	case RuleGrouped:
		if a.group != b.group {
			return cmp.Compare(a.group, b.group)
		}
		c = strings.Compare(a.text, b.text)
	}
	if desc {
		return -c
	}
	return c
}
